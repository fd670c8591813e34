/**
 * Qdrant Group Index for the TF page pipeline
 *
 * Embeds merged group text and stores it in Qdrant so that earlier forms of
 * the same type can be found by similarity. Uses Qdrant's native gRPC API.
 */

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/SandySenthilHub/TF-Phase1/internal/document"
)

// Embedder turns text into a fixed-size vector
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// payloadTextChars bounds the text snippet kept in each point's payload
const payloadTextChars = 2000

// GroupIndex is a Store that indexes group text only. The other
// checkpoints are accepted and ignored.
type GroupIndex struct {
	points         qdrant.PointsClient
	collections    qdrant.CollectionsClient
	conn           *grpc.ClientConn
	embedder       Embedder
	collectionName string
	dimensions     int
}

// GroupMatch is one similarity search hit
type GroupMatch struct {
	PointID    string
	SessionID  string
	DocumentID string
	FormLabel  string
	Snippet    string
	IndexedAt  int64
	Score      float32
}

// NewGroupIndex dials Qdrant and ensures the collection exists
func NewGroupIndex(ctx context.Context, address, collectionName string, embedder Embedder, dimensions int) (*GroupIndex, error) {
	if address == "" {
		return nil, fmt.Errorf("qdrant address is required")
	}

	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	gi, err := newGroupIndex(qdrant.NewPointsClient(conn), qdrant.NewCollectionsClient(conn), collectionName, embedder, dimensions)
	if err != nil {
		conn.Close()
		return nil, err
	}
	gi.conn = conn

	if err := gi.ensureCollection(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}
	return gi, nil
}

func newGroupIndex(points qdrant.PointsClient, collections qdrant.CollectionsClient, collectionName string, embedder Embedder, dimensions int) (*GroupIndex, error) {
	if collectionName == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("invalid vector dimensions: %d", dimensions)
	}
	return &GroupIndex{
		points:         points,
		collections:    collections,
		embedder:       embedder,
		collectionName: collectionName,
		dimensions:     dimensions,
	}, nil
}

// ensureCollection creates the collection if it doesn't exist
func (g *GroupIndex) ensureCollection(ctx context.Context) error {
	listResp, err := g.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, col := range listResp.Collections {
		if col.Name == g.collectionName {
			return nil
		}
	}

	_, err = g.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: g.collectionName,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(g.dimensions),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// GroupPointID is stable per (session, document, label) so re-runs overwrite
func GroupPointID(sessionID, documentID, formLabel string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(Key(sessionID, documentID, formLabel))).String()
}

// SaveGroupText embeds the merged text and upserts it
func (g *GroupIndex) SaveGroupText(ctx context.Context, sessionID, documentID, formLabel, text string) error {
	if text == "" || text == document.NoTextFound {
		return nil
	}

	vector, err := g.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed group %s: %w", formLabel, err)
	}
	if len(vector) != g.dimensions {
		return fmt.Errorf("invalid vector dimensions: expected %d, got %d", g.dimensions, len(vector))
	}

	payload := map[string]*qdrant.Value{
		"session_id":  stringValue(sessionID),
		"document_id": stringValue(documentID),
		"form_label":  stringValue(formLabel),
		"snippet":     stringValue(snippet(text, payloadTextChars)),
		"indexed_at":  {Kind: &qdrant.Value_IntegerValue{IntegerValue: time.Now().Unix()}},
	}

	_, err = g.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: g.collectionName,
		Points: []*qdrant.PointStruct{{
			Id: &qdrant.PointId{
				PointIdOptions: &qdrant.PointId_Uuid{Uuid: GroupPointID(sessionID, documentID, formLabel)},
			},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: vector}},
			},
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert group vector: %w", err)
	}
	return nil
}

// SearchSimilarGroups embeds query and returns the nearest indexed groups
func (g *GroupIndex) SearchSimilarGroups(ctx context.Context, query string, limit int) ([]GroupMatch, error) {
	if limit <= 0 {
		limit = 10
	}

	vector, err := g.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	resp, err := g.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: g.collectionName,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}

	matches := make([]GroupMatch, 0, len(resp.Result))
	for _, r := range resp.Result {
		m := GroupMatch{Score: r.Score}
		if r.Id != nil {
			m.PointID = r.Id.GetUuid()
		}
		for k, v := range r.Payload {
			switch k {
			case "session_id":
				m.SessionID = v.GetStringValue()
			case "document_id":
				m.DocumentID = v.GetStringValue()
			case "form_label":
				m.FormLabel = v.GetStringValue()
			case "snippet":
				m.Snippet = v.GetStringValue()
			case "indexed_at":
				m.IndexedAt = v.GetIntegerValue()
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (g *GroupIndex) SaveRawDocument(ctx context.Context, sessionID, documentID, name string, data []byte) error {
	return nil
}

func (g *GroupIndex) SavePageDocument(ctx context.Context, sessionID, documentID, pageLabel string, data []byte) error {
	return nil
}

func (g *GroupIndex) SavePageText(ctx context.Context, sessionID, documentID, pageLabel, text string) error {
	return nil
}

func (g *GroupIndex) SavePageFields(ctx context.Context, sessionID, documentID, pageLabel string, fs *document.FieldSet) error {
	return nil
}

func (g *GroupIndex) SaveGroupDocument(ctx context.Context, sessionID, documentID, formLabel string, data []byte) error {
	return nil
}

func (g *GroupIndex) SaveGroupFields(ctx context.Context, sessionID, documentID, formLabel string, sets []*document.FieldSet) error {
	return nil
}

// GetCollectionInfo returns collection statistics
func (g *GroupIndex) GetCollectionInfo(ctx context.Context) (map[string]interface{}, error) {
	info, err := g.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{
		CollectionName: g.collectionName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get collection info: %w", err)
	}

	return map[string]interface{}{
		"collection_name": g.collectionName,
		"vectors_count":   info.Result.GetVectorsCount(),
		"points_count":    info.Result.GetPointsCount(),
		"status":          info.Result.GetStatus().String(),
	}, nil
}

// Close closes the Qdrant client connection
func (g *GroupIndex) Close() error {
	if g.conn != nil {
		return g.conn.Close()
	}
	return nil
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

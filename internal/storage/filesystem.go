package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/SandySenthilHub/TF-Phase1/internal/document"
	"github.com/SandySenthilHub/TF-Phase1/internal/fields"
)

// Artifact names inside a document directory
const (
	RawDocumentName   = "original"
	GroupDocumentName = "document.pdf"
	GroupTextName     = "text.txt"
	GroupFieldsName   = "fields.json"
)

// FileStore writes run artifacts under Root:
//
//	<root>/<session>/<document>/original.pdf
//	<root>/<session>/<document>/page_NN.pdf|.txt|.fields.json
//	<root>/<session>/<document>/<label>/document.pdf|text.txt|fields.json
type FileStore struct {
	Root string
}

// NewFileStore creates the root directory if needed
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &FileStore{Root: root}, nil
}

// DocumentDir returns the directory holding one document's artifacts
func (f *FileStore) DocumentDir(sessionID, documentID string) (string, error) {
	for _, seg := range []string{sessionID, documentID} {
		if err := checkSegment(seg); err != nil {
			return "", err
		}
	}
	return filepath.Join(f.Root, sessionID, documentID), nil
}

func (f *FileStore) SaveRawDocument(ctx context.Context, sessionID, documentID, name string, data []byte) error {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".pdf"
	}
	return f.write(ctx, sessionID, documentID, "", RawDocumentName+ext, data)
}

func (f *FileStore) SavePageDocument(ctx context.Context, sessionID, documentID, pageLabel string, data []byte) error {
	return f.write(ctx, sessionID, documentID, "", pageLabel+".pdf", data)
}

func (f *FileStore) SavePageText(ctx context.Context, sessionID, documentID, pageLabel, text string) error {
	return f.write(ctx, sessionID, documentID, "", pageLabel+".txt", []byte(text))
}

func (f *FileStore) SavePageFields(ctx context.Context, sessionID, documentID, pageLabel string, fs *document.FieldSet) error {
	data, err := fields.MarshalPage(fs)
	if err != nil {
		return err
	}
	return f.write(ctx, sessionID, documentID, "", pageLabel+".fields.json", data)
}

func (f *FileStore) SaveGroupDocument(ctx context.Context, sessionID, documentID, formLabel string, data []byte) error {
	return f.write(ctx, sessionID, documentID, formLabel, GroupDocumentName, data)
}

func (f *FileStore) SaveGroupText(ctx context.Context, sessionID, documentID, formLabel, text string) error {
	return f.write(ctx, sessionID, documentID, formLabel, GroupTextName, []byte(text))
}

func (f *FileStore) SaveGroupFields(ctx context.Context, sessionID, documentID, formLabel string, sets []*document.FieldSet) error {
	data, err := fields.MarshalGroup(sets)
	if err != nil {
		return err
	}
	return f.write(ctx, sessionID, documentID, formLabel, GroupFieldsName, data)
}

// write stores data atomically through a temp file and rename
func (f *FileStore) write(ctx context.Context, sessionID, documentID, subdir, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := f.DocumentDir(sessionID, documentID)
	if err != nil {
		return err
	}
	if subdir != "" {
		if err := checkSegment(subdir); err != nil {
			return err
		}
		dir = filepath.Join(dir, subdir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	return nil
}

// checkSegment rejects identifiers that would escape the output tree
func checkSegment(seg string) error {
	switch {
	case seg == "", seg == ".", seg == "..":
		return fmt.Errorf("invalid path segment %q", seg)
	case strings.ContainsAny(seg, `/\`), strings.ContainsRune(seg, 0):
		return fmt.Errorf("invalid path segment %q", seg)
	}
	return nil
}

// Command tfsplit runs the page pipeline from a shell: process a PDF in
// place, hand one to the worker queue, look up a job, or search indexed
// group text.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/SandySenthilHub/TF-Phase1/internal/clients"
	"github.com/SandySenthilHub/TF-Phase1/internal/config"
	"github.com/SandySenthilHub/TF-Phase1/internal/logging"
	"github.com/SandySenthilHub/TF-Phase1/internal/processor"
	"github.com/SandySenthilHub/TF-Phase1/internal/queue"
	"github.com/SandySenthilHub/TF-Phase1/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:          "tfsplit",
		Short:        "Split, read, classify and group trade-finance PDFs",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("failed to load %s: %w", envFile, err)
				}
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file to load before reading configuration")

	root.AddCommand(newRunCmd(), newEnqueueCmd(), newStatusCmd(), newSearchCmd(), newStatsCmd())
	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logging.Configure(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

func newRunCmd() *cobra.Command {
	var (
		sessionID  string
		documentID string
		dryRun     bool
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "run <file.pdf>",
		Short: "Process a local PDF synchronously",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			opts := processor.BuildOptions{}
			if dryRun {
				// keep every artifact in memory
				cfg.DatabaseURL, cfg.QdrantURL = "", ""
				if cfg.CatalogSource == "postgres" {
					cfg.CatalogSource = "static"
				}
				opts.SkipFileStore = true
				opts.ExtraStores = []storage.Backend{{Name: "memory", Store: storage.NewMemoryStore()}}
			}

			rt, err := processor.Build(cmd.Context(), cfg, opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			path := args[0]
			if sessionID == "" {
				sessionID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}
			res, err := rt.Processor.ProcessDocument(cmd.Context(), &processor.ProcessRequest{
				SessionID:  sessionID,
				DocumentID: documentID,
				Filename:   filepath.Base(path),
				FilePath:   path,
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printResult(cmd, res)
			if !dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "\nartifacts: %s\n", filepath.Join(cfg.OutputDir, res.SessionID, res.DocumentID))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID (defaults to the file name)")
	cmd.Flags().StringVar(&documentID, "document", "", "document ID (generated when empty)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "process without writing to any configured store")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run result as JSON")
	return cmd
}

func printResult(cmd *cobra.Command, res *processor.ProcessResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s  session %s  document %s\n", res.RunID, res.SessionID, res.DocumentID)
	fmt.Fprintf(out, "%d pages, %d groups, %d unreadable, %d persistence failures, %dms\n\n",
		res.PageCount, len(res.Groups), res.SentinelPages, res.PersistenceFailures, res.ProcessingTimeMs)

	pages := tablewriter.NewWriter(out)
	pages.SetHeader([]string{"Page", "Source", "Confidence", "Label", "Origin", "Fields"})
	for _, p := range res.Pages {
		pages.Append([]string{
			strconv.Itoa(p.Index),
			string(p.Source),
			strconv.FormatFloat(p.Confidence, 'f', 2, 64),
			p.Label,
			string(p.Origin),
			strconv.Itoa(p.FieldCount),
		})
	}
	pages.Render()
	fmt.Fprintln(out)

	groups := tablewriter.NewWriter(out)
	groups.SetHeader([]string{"Group", "Pages", "Catalog", "Score"})
	for _, g := range res.Groups {
		score := ""
		if g.MatchedName != "" {
			score = strconv.FormatFloat(g.MatchScore, 'f', 2, 64)
		}
		groups.Append([]string{g.Label, joinInts(g.Pages), g.MatchedName, score})
	}
	groups.Render()

	engines := make([]string, 0, len(res.EngineCounts))
	for src, n := range res.EngineCounts {
		engines = append(engines, fmt.Sprintf("%s=%d", src, n))
	}
	sort.Strings(engines)
	fmt.Fprintf(out, "\nengines: %s\n", strings.Join(engines, " "))
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}

func newEnqueueCmd() *cobra.Command {
	var (
		sessionID string
		byPath    bool
	)
	cmd := &cobra.Command{
		Use:   "enqueue <file.pdf|url>",
		Short: "Submit a document job to the worker queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			producer, err := queue.NewProducer(&queue.ProducerConfig{
				RedisURL:  cfg.RedisURL,
				Backend:   cfg.QueueBackend,
				QueueName: cfg.QueueName,
			})
			if err != nil {
				return err
			}
			defer producer.Close()

			src := args[0]
			payload := &queue.JobPayload{SessionID: sessionID}
			switch {
			case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
				payload.FileURL = src
				payload.Filename = filepath.Base(src)
			case byPath:
				abs, err := filepath.Abs(src)
				if err != nil {
					return err
				}
				payload.FilePath = abs
				payload.Filename = filepath.Base(src)
			default:
				data, err := os.ReadFile(src)
				if err != nil {
					return err
				}
				payload.FileBuffer = data
				payload.FileSize = int64(len(data))
				payload.Filename = filepath.Base(src)
			}
			payload.MimeType = "application/pdf"

			jobID, err := producer.Enqueue(cmd.Context(), payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), jobID)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID (defaults to the job ID)")
	cmd.Flags().BoolVar(&byPath, "by-path", false, "send the absolute path instead of the file bytes (worker must share the filesystem)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the recorded status of a worker job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.PostgresEnabled() {
				return fmt.Errorf("status needs DATABASE_URL")
			}
			pg, err := storage.NewPostgresStore(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pg.Close()

			job, err := pg.GetJobByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJob(cmd, job)
			return nil
		},
	}
}

func printJob(cmd *cobra.Command, job *storage.JobUpdate) {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Field", "Value"})
	rows := [][]string{
		{"job", job.JobID},
		{"status", job.Status},
		{"session", job.SessionID},
		{"document", job.DocumentID},
		{"file", job.Filename},
		{"pages", strconv.Itoa(job.PageCount)},
		{"groups", strconv.Itoa(job.GroupCount)},
		{"time_ms", strconv.FormatInt(job.ProcessingTimeMs, 10)},
		{"updated", job.UpdatedAt.Format(time.RFC3339)},
	}
	if job.ErrorCode != "" {
		rows = append(rows, []string{"error", job.ErrorCode + ": " + job.ErrorMessage})
	}
	table.AppendBulk(rows)
	table.Render()
}

func newSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find form groups whose merged text is similar to the query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.VectorIndexEnabled() {
				return fmt.Errorf("search needs QDRANT_URL and VOYAGE_API_KEY")
			}
			emb, err := clients.NewEmbeddingClient(cfg.VoyageAPIKey)
			if err != nil {
				return err
			}
			idx, err := storage.NewGroupIndex(cmd.Context(), cfg.QdrantURL, cfg.QdrantCollection, emb, clients.EmbeddingDimensions)
			if err != nil {
				return err
			}
			defer idx.Close()

			matches, err := idx.SearchSimilarGroups(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Score", "Session", "Document", "Group", "Snippet"})
			for _, m := range matches {
				table.Append([]string{
					strconv.FormatFloat(float64(m.Score), 'f', 3, 32),
					m.SessionID,
					m.DocumentID,
					m.FormLabel,
					snippet(m.Snippet, 60),
				})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of matches")
	return cmd
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show list-protocol queue counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			producer, err := queue.NewProducer(&queue.ProducerConfig{
				RedisURL:  cfg.RedisURL,
				Backend:   cfg.QueueBackend,
				QueueName: cfg.QueueName,
			})
			if err != nil {
				return err
			}
			defer producer.Close()

			stats, err := producer.Stats(cmd.Context())
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"State", "Jobs"})
			for _, k := range []string{"waiting", "processing", "completed", "failed"} {
				table.Append([]string{k, strconv.FormatInt(stats[k], 10)})
			}
			table.Render()
			return nil
		},
	}
}

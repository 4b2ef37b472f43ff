package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/neddyKG/ragchatbot-codebase/config"
	"github.com/neddyKG/ragchatbot-codebase/db"
	"github.com/neddyKG/ragchatbot-codebase/models"
	"github.com/neddyKG/ragchatbot-codebase/services/docprocessor"
	"github.com/neddyKG/ragchatbot-codebase/services/vectorstore"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "indexdocs",
		Short:        "Index course documents into the course catalog and vector store",
		SilenceUsage: true,
		RunE:         runIndex,
	}

	cmd.Flags().String("dir", "docs", "Directory containing course documents (.txt, .md)")
	cmd.Flags().Bool("clear", false, "Remove every indexed course before indexing")

	return cmd
}

func runIndex(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	clearExisting, _ := cmd.Flags().GetBool("clear")

	log.Printf("[INFO] Starting document indexing process")

	cfg := config.Load()

	if cfg.DatabaseURL == "" {
		log.Fatal("[ERROR] DB_URL environment variable is required")
	}

	if cfg.PineconeAPIKey == "" {
		log.Fatal("[ERROR] PINECONE_API_KEY environment variable is required")
	}

	if cfg.OpenAIAPIKey == "" {
		log.Fatal("[ERROR] OPENAI_API_KEY environment variable is required")
	}

	ctx := cmd.Context()

	courseRepo, err := db.NewPostgresCourseRepository(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize course database: %w", err)
	}
	defer courseRepo.Close()

	if err := courseRepo.EnsureSchema(); err != nil {
		return err
	}

	store, err := vectorstore.NewStore(ctx, vectorstore.Config{
		PineconeAPIKey: cfg.PineconeAPIKey,
		IndexName:      cfg.PineconeIndexName,
		Namespace:      cfg.PineconeNamespace,
		OpenAIAPIKey:   cfg.OpenAIAPIKey,
		EmbeddingModel: cfg.EmbeddingModel,
		MaxResults:     cfg.MaxResults,
	}, courseRepo)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}

	documents, err := docprocessor.NewProcessor(cfg.ChunkSize, cfg.ChunkOverlap).ProcessDirectory(dir)
	if err != nil {
		return err
	}

	log.Printf("[INFO] Parsed %d course documents from %s", len(documents), dir)

	courses, chunks, err := indexDocuments(ctx, store, documents, clearExisting)
	if err != nil {
		return err
	}

	log.Printf("[INFO] Document indexing completed: %d courses, %d chunks", courses, chunks)
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d courses with %d chunks\n", courses, chunks)
	return nil
}

type courseIndexer interface {
	GetCourseTitles() ([]string, error)
	AddCourse(ctx context.Context, course *models.Course, chunks []models.CourseChunk) error
	Clear(ctx context.Context) error
}

// indexDocuments adds every document whose course is not already in the
// catalog. A failing course is logged and skipped.
func indexDocuments(ctx context.Context, store courseIndexer, documents []*docprocessor.Document, clearExisting bool) (int, int, error) {
	if clearExisting {
		log.Printf("[INFO] Clearing existing courses")
		if err := store.Clear(ctx); err != nil {
			return 0, 0, fmt.Errorf("failed to clear existing courses: %w", err)
		}
	}

	existing, err := store.GetCourseTitles()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get existing course titles: %w", err)
	}

	seen := lo.SliceToMap(existing, func(title string) (string, bool) { return title, true })

	totalCourses, totalChunks := 0, 0
	for i, doc := range documents {
		title := doc.Course.Title
		if seen[title] {
			log.Printf("[INFO] Course already indexed, skipping: %s", title)
			continue
		}

		log.Printf("[INFO] Processing course %d/%d: %s (%d chunks)", i+1, len(documents), title, len(doc.Chunks))

		if err := store.AddCourse(ctx, doc.Course, doc.Chunks); err != nil {
			log.Printf("[ERROR] Failed to index course %s: %v", title, err)
			continue
		}

		seen[title] = true
		totalCourses++
		totalChunks += len(doc.Chunks)
	}

	return totalCourses, totalChunks, nil
}

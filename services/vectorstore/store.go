package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/neddyKG/ragchatbot-codebase/db"
	"github.com/neddyKG/ragchatbot-codebase/models"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"github.com/samber/lo"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	DefaultIndexName      = "course-materials-index"
	DefaultNamespace      = "course-content"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultMaxResults     = 5

	embeddingDimension = 1536
	upsertBatchSize    = 10
)

type Config struct {
	PineconeAPIKey string
	IndexName      string
	Namespace      string
	OpenAIAPIKey   string
	EmbeddingModel string
	MaxResults     int
}

// vectorIndex is the subset of *pinecone.IndexConnection the store uses.
type vectorIndex interface {
	QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
	UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error)
	ListVectors(ctx context.Context, in *pinecone.ListVectorsRequest) (*pinecone.ListVectorsResponse, error)
	DeleteVectorsById(ctx context.Context, ids []string) error
}

// Store keeps chunk embeddings in Pinecone and course metadata in the course
// catalog. It answers content searches and resolves partial course names.
type Store struct {
	index      vectorIndex
	embedder   embeddings.Embedder
	courses    db.CourseRepository
	maxResults int
}

func NewStore(ctx context.Context, cfg Config, courses db.CourseRepository) (*Store, error) {
	log.Printf("[INFO] Initializing vector store")

	pc, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: cfg.PineconeAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	indexName := lo.Ternary(cfg.IndexName != "", cfg.IndexName, DefaultIndexName)
	if err := EnsureIndex(ctx, pc, indexName); err != nil {
		return nil, err
	}

	idxDesc, err := pc.DescribeIndex(ctx, indexName)
	if err != nil {
		return nil, fmt.Errorf("failed to describe index: %w", err)
	}

	idxConn, err := pc.Index(pinecone.NewIndexConnParams{
		Host:      idxDesc.Host,
		Namespace: lo.Ternary(cfg.Namespace != "", cfg.Namespace, DefaultNamespace),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create index connection: %w", err)
	}

	embedder, err := NewEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel)
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO] Vector store initialized successfully")
	return newStore(idxConn, embedder, courses, cfg.MaxResults), nil
}

func newStore(index vectorIndex, embedder embeddings.Embedder, courses db.CourseRepository, maxResults int) *Store {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Store{
		index:      index,
		embedder:   embedder,
		courses:    courses,
		maxResults: maxResults,
	}
}

func NewEmbedder(openaiAPIKey, model string) (embeddings.Embedder, error) {
	llm, err := openai.New(
		openai.WithEmbeddingModel(lo.Ternary(model != "", model, DefaultEmbeddingModel)),
		openai.WithToken(openaiAPIKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return embedder, nil
}

// EnsureIndex creates the serverless index when it is missing and waits for
// it to become ready.
func EnsureIndex(ctx context.Context, pc *pinecone.Client, indexName string) error {
	indexes, err := pc.ListIndexes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list indexes: %w", err)
	}

	for _, idx := range indexes {
		if idx.Name == indexName {
			return nil
		}
	}

	log.Printf("[INFO] Creating Pinecone index: %s", indexName)
	dimension := int32(embeddingDimension)
	deletionProtection := pinecone.DeletionProtectionDisabled
	metric := pinecone.Cosine

	_, err = pc.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
		Name:               indexName,
		Dimension:          &dimension,
		Metric:             &metric,
		Cloud:              pinecone.Aws,
		Region:             "us-east-1",
		DeletionProtection: &deletionProtection,
		Tags:               &pinecone.IndexTags{"project": "course-rag"},
	})
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	for {
		idx, err := pc.DescribeIndex(ctx, indexName)
		if err != nil {
			return fmt.Errorf("failed to describe index: %w", err)
		}
		if idx.Status != nil && idx.Status.Ready {
			log.Printf("[INFO] Index %s is ready", indexName)
			return nil
		}

		log.Printf("[INFO] Waiting for index %s to be ready...", indexName)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Second):
		}
	}
}

// Search embeds the query and returns the closest chunks, optionally limited
// to one course and one lesson. Failures are reported in SearchResults.Error.
func (s *Store) Search(ctx context.Context, query, courseName string, lessonNumber *int) *models.SearchResults {
	var courseTitle string
	if courseName != "" {
		title, ok, err := s.resolveCourseName(courseName)
		if err != nil {
			log.Printf("[ERROR] Failed to resolve course name %q: %v", courseName, err)
			return models.SearchError(fmt.Sprintf("Search error: %v", err))
		}
		if !ok {
			return models.SearchError(fmt.Sprintf("No course found matching '%s'", courseName))
		}
		courseTitle = title
	}

	filter, err := buildFilter(courseTitle, lessonNumber)
	if err != nil {
		return models.SearchError(fmt.Sprintf("Search error: %v", err))
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		log.Printf("[ERROR] Failed to generate embedding for query: %v", err)
		return models.SearchError(fmt.Sprintf("Search error: %v", err))
	}

	result, err := s.index.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(s.maxResults),
		MetadataFilter:  filter,
		IncludeValues:   false,
		IncludeMetadata: true,
	})
	if err != nil {
		log.Printf("[ERROR] Failed to query vectors: %v", err)
		return models.SearchError(fmt.Sprintf("Search error: %v", err))
	}

	log.Printf("[INFO] Retrieved %d chunks for query (course: %q)", len(result.Matches), courseTitle)

	results := &models.SearchResults{}
	for _, match := range result.Matches {
		if match == nil || match.Vector == nil || match.Vector.Metadata == nil {
			continue
		}

		metadata := match.Vector.Metadata.AsMap()
		content, _ := metadata["content"].(string)
		if content == "" {
			continue
		}

		results.Documents = append(results.Documents, content)
		results.Metadata = append(results.Metadata, chunkMetadata(metadata))
		results.Distances = append(results.Distances, 1-float64(match.Score))
	}

	return results
}

func chunkMetadata(metadata map[string]any) models.ChunkMetadata {
	meta := models.ChunkMetadata{}
	meta.CourseTitle, _ = metadata["course_title"].(string)
	if lesson, ok := metadata["lesson_number"].(float64); ok {
		n := int(lesson)
		meta.LessonNumber = &n
	}
	if idx, ok := metadata["chunk_index"].(float64); ok {
		meta.ChunkIndex = int(idx)
	}
	return meta
}

func buildFilter(courseTitle string, lessonNumber *int) (*structpb.Struct, error) {
	var clauses []any
	if courseTitle != "" {
		clauses = append(clauses, map[string]any{"course_title": map[string]any{"$eq": courseTitle}})
	}
	if lessonNumber != nil {
		clauses = append(clauses, map[string]any{"lesson_number": map[string]any{"$eq": *lessonNumber}})
	}

	var filter map[string]any
	switch len(clauses) {
	case 0:
		return nil, nil
	case 1:
		filter = clauses[0].(map[string]any)
	default:
		filter = map[string]any{"$and": clauses}
	}

	filterStruct, err := structpb.NewStruct(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter struct: %w", err)
	}
	return filterStruct, nil
}

// resolveCourseName maps a partial or misspelled course name to a catalog
// title. An exact case-insensitive match wins, then the shortest title that
// contains the name, then the closest fuzzy match.
func (s *Store) resolveCourseName(name string) (string, bool, error) {
	titles, err := s.courses.GetCourseTitles()
	if err != nil {
		return "", false, err
	}

	title, ok := matchCourseTitle(name, titles)
	return title, ok, nil
}

func matchCourseTitle(name string, titles []string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || len(titles) == 0 {
		return "", false
	}

	if title, ok := lo.Find(titles, func(t string) bool { return strings.EqualFold(t, name) }); ok {
		return title, true
	}

	lowered := strings.ToLower(name)
	containing := lo.Filter(titles, func(t string, _ int) bool {
		return strings.Contains(strings.ToLower(t), lowered)
	})
	if len(containing) > 0 {
		return lo.MinBy(containing, func(a, b string) bool { return len(a) < len(b) }), true
	}

	ranks := fuzzy.RankFindFold(name, titles)
	if len(ranks) == 0 {
		return "", false
	}
	sort.Sort(ranks)
	return ranks[0].Target, true
}

func (s *Store) GetLessonLink(ctx context.Context, courseTitle string, lessonNumber int) *string {
	course, err := s.courses.GetCourseByTitle(courseTitle)
	if err != nil {
		log.Printf("[WARN] Failed to get lesson link for %q lesson %d: %v", courseTitle, lessonNumber, err)
		return nil
	}

	lesson, ok := lo.Find(course.Lessons, func(l models.Lesson) bool { return l.LessonNumber == lessonNumber })
	if !ok || lesson.LessonLink == "" {
		return nil
	}

	link := lesson.LessonLink
	return &link
}

func (s *Store) GetCourseOutline(ctx context.Context, courseTitle string) (*models.Course, error) {
	title, ok, err := s.resolveCourseName(courseTitle)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve course name: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("no match for %q: %w", courseTitle, models.ErrCourseNotFound)
	}

	return s.courses.GetCourseByTitle(title)
}

func (s *Store) GetCourseTitles() ([]string, error) {
	return s.courses.GetCourseTitles()
}

func (s *Store) CountCourses() (int, error) {
	return s.courses.CountCourses()
}

// AddCourse stores the course in the catalog and replaces any vectors
// previously indexed for it with embeddings of the given chunks.
func (s *Store) AddCourse(ctx context.Context, course *models.Course, chunks []models.CourseChunk) error {
	if err := s.courses.UpsertCourse(course); err != nil {
		return fmt.Errorf("failed to save course %q: %w", course.Title, err)
	}

	if err := s.deleteCourseVectors(ctx, course.Title); err != nil {
		return err
	}

	if len(chunks) == 0 {
		return nil
	}

	vectors, err := s.createVectors(ctx, chunks)
	if err != nil {
		return err
	}

	for i, batch := range lo.Chunk(vectors, upsertBatchSize) {
		count, err := s.index.UpsertVectors(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to upsert vector batch: %w", err)
		}
		log.Printf("[INFO] Successfully upserted %d vectors (batch %d)", count, i+1)
	}

	return nil
}

// Clear removes every indexed course and its vectors.
func (s *Store) Clear(ctx context.Context) error {
	titles, err := s.courses.GetCourseTitles()
	if err != nil {
		return fmt.Errorf("failed to list courses: %w", err)
	}

	for _, title := range titles {
		if err := s.deleteCourseVectors(ctx, title); err != nil {
			return err
		}
	}

	return s.courses.DeleteAllCourses()
}

func (s *Store) createVectors(ctx context.Context, chunks []models.CourseChunk) ([]*pinecone.Vector, error) {
	texts := lo.Map(chunks, func(chunk models.CourseChunk, _ int) string { return chunk.Content })

	vectorValues, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectorValues) != len(chunks) {
		return nil, fmt.Errorf("failed to generate embeddings: got %d for %d chunks", len(vectorValues), len(chunks))
	}

	vectors := make([]*pinecone.Vector, 0, len(chunks))
	for i, chunk := range chunks {
		metadata := map[string]any{
			"content":      chunk.Content,
			"course_title": chunk.CourseTitle,
			"chunk_index":  chunk.ChunkIndex,
		}
		if chunk.LessonNumber != nil {
			metadata["lesson_number"] = *chunk.LessonNumber
		}

		metadataStruct, err := structpb.NewStruct(metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to create metadata struct for chunk %d: %w", chunk.ChunkIndex, err)
		}

		vectors = append(vectors, &pinecone.Vector{
			Id:       vectorID(chunk.CourseTitle, chunk.ChunkIndex),
			Values:   &vectorValues[i],
			Metadata: metadataStruct,
		})
	}

	return vectors, nil
}

func (s *Store) deleteCourseVectors(ctx context.Context, courseTitle string) error {
	prefix := vectorPrefix(courseTitle)
	limit := uint32(100)

	listResp, err := s.index.ListVectors(ctx, &pinecone.ListVectorsRequest{
		Prefix: &prefix,
		Limit:  &limit,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Namespace not found") {
			return nil
		}
		return fmt.Errorf("failed to list vectors: %w", err)
	}

	for {
		ids := lo.FilterMap(listResp.VectorIds, func(id *string, _ int) (string, bool) {
			if id == nil {
				return "", false
			}
			return *id, true
		})

		if len(ids) > 0 {
			if err := s.index.DeleteVectorsById(ctx, ids); err != nil {
				return fmt.Errorf("failed to delete vector batch: %w", err)
			}
			log.Printf("[INFO] Deleted %d vectors for course %q", len(ids), courseTitle)
		}

		if listResp.NextPaginationToken == nil {
			return nil
		}

		listResp, err = s.index.ListVectors(ctx, &pinecone.ListVectorsRequest{
			Prefix:          &prefix,
			Limit:           &limit,
			PaginationToken: listResp.NextPaginationToken,
		})
		if err != nil {
			return fmt.Errorf("failed to list next batch of vectors: %w", err)
		}
	}
}

// vectorPrefix keys a course's vectors by a digest of its exact title. Hex
// never contains '_', so one course's prefix is never a prefix of another's.
func vectorPrefix(courseTitle string) string {
	sum := sha256.Sum256([]byte(courseTitle))
	return "course_" + hex.EncodeToString(sum[:12]) + "_"
}

func vectorID(courseTitle string, chunkIndex int) string {
	return fmt.Sprintf("%s%d", vectorPrefix(courseTitle), chunkIndex)
}

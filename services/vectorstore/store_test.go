package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/neddyKG/ragchatbot-codebase/models"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakeIndex struct {
	matches  []*pinecone.ScoredVector
	queryErr error
	existing []string

	lastQuery *pinecone.QueryByVectorValuesRequest
	upserted  []*pinecone.Vector
	deleted   []string
}

func (f *fakeIndex) QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error) {
	f.lastQuery = in
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &pinecone.QueryVectorsResponse{Matches: f.matches}, nil
}

func (f *fakeIndex) UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error) {
	f.upserted = append(f.upserted, in...)
	return uint32(len(in)), nil
}

func (f *fakeIndex) ListVectors(ctx context.Context, in *pinecone.ListVectorsRequest) (*pinecone.ListVectorsResponse, error) {
	resp := &pinecone.ListVectorsResponse{}
	for _, id := range f.existing {
		if strings.HasPrefix(id, *in.Prefix) {
			id := id
			resp.VectorIds = append(resp.VectorIds, &id)
		}
	}
	return resp, nil
}

func (f *fakeIndex) DeleteVectorsById(ctx context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.5, 0.5}, nil
}

type memoryCourses struct {
	courses map[string]*models.Course
	order   []string
}

func newMemoryCourses(courses ...*models.Course) *memoryCourses {
	m := &memoryCourses{courses: make(map[string]*models.Course)}
	for _, c := range courses {
		_ = m.UpsertCourse(c)
	}
	return m
}

func (m *memoryCourses) UpsertCourse(course *models.Course) error {
	if _, ok := m.courses[course.Title]; !ok {
		m.order = append(m.order, course.Title)
	}
	m.courses[course.Title] = course
	return nil
}

func (m *memoryCourses) GetCourseByTitle(title string) (*models.Course, error) {
	course, ok := m.courses[title]
	if !ok {
		return nil, fmt.Errorf("course %q: %w", title, models.ErrCourseNotFound)
	}
	return course, nil
}

func (m *memoryCourses) GetAllCourses() ([]*models.Course, error) {
	var out []*models.Course
	for _, title := range m.order {
		out = append(out, m.courses[title])
	}
	return out, nil
}

func (m *memoryCourses) GetCourseTitles() ([]string, error) {
	return append([]string(nil), m.order...), nil
}

func (m *memoryCourses) CountCourses() (int, error) {
	return len(m.order), nil
}

func (m *memoryCourses) DeleteAllCourses() error {
	m.courses = make(map[string]*models.Course)
	m.order = nil
	return nil
}

var catalog = []*models.Course{
	{
		Title:      "MCP: Build Rich-Context AI Apps with Anthropic",
		CourseLink: "https://example.com/mcp",
		Lessons: []models.Lesson{
			{LessonNumber: 0, Title: "Introduction", LessonLink: "https://example.com/mcp/0"},
			{LessonNumber: 1, Title: "Why MCP"},
		},
	},
	{Title: "Building Towards Computer Use with Anthropic"},
	{Title: "Advanced Retrieval for AI with Chroma"},
}

func scored(t *testing.T, score float32, metadata map[string]any) *pinecone.ScoredVector {
	t.Helper()
	md, err := structpb.NewStruct(metadata)
	if err != nil {
		t.Fatalf("failed to build metadata: %v", err)
	}
	return &pinecone.ScoredVector{Vector: &pinecone.Vector{Id: "v", Metadata: md}, Score: score}
}

func TestMatchCourseTitle(t *testing.T) {
	titles := []string{
		"MCP: Build Rich-Context AI Apps with Anthropic",
		"Building Towards Computer Use with Anthropic",
		"Advanced Retrieval for AI with Chroma",
	}

	tests := []struct {
		name     string
		input    string
		expected string
		found    bool
	}{
		{name: "exact case-insensitive", input: "advanced retrieval for ai with chroma", expected: titles[2], found: true},
		{name: "substring", input: "MCP", expected: titles[0], found: true},
		{name: "shared substring picks shortest", input: "with Anthropic", expected: titles[1], found: true},
		{name: "fuzzy subsequence", input: "cmptr use", expected: titles[1], found: true},
		{name: "no match", input: "Kubernetes Operators", found: false},
		{name: "blank", input: "   ", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := matchCourseTitle(tt.input, titles)
			if ok != tt.found {
				t.Fatalf("expected found=%v, got %v (%q)", tt.found, ok, got)
			}
			if ok && got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestBuildFilter(t *testing.T) {
	lesson := 2

	tests := []struct {
		name     string
		course   string
		lesson   *int
		expected map[string]any
	}{
		{name: "no filter"},
		{
			name:     "course only",
			course:   "MCP",
			expected: map[string]any{"course_title": map[string]any{"$eq": "MCP"}},
		},
		{
			name:     "lesson only",
			lesson:   &lesson,
			expected: map[string]any{"lesson_number": map[string]any{"$eq": float64(2)}},
		},
		{
			name:   "course and lesson",
			course: "MCP",
			lesson: &lesson,
			expected: map[string]any{"$and": []any{
				map[string]any{"course_title": map[string]any{"$eq": "MCP"}},
				map[string]any{"lesson_number": map[string]any{"$eq": float64(2)}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := buildFilter(tt.course, tt.lesson)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.expected == nil {
				if filter != nil {
					t.Errorf("expected no filter, got %v", filter.AsMap())
				}
				return
			}
			if filter == nil {
				t.Fatalf("expected a filter")
			}
			if fmt.Sprint(filter.AsMap()) != fmt.Sprint(tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, filter.AsMap())
			}
		})
	}
}

func TestSearch(t *testing.T) {
	index := &fakeIndex{matches: []*pinecone.ScoredVector{
		scored(t, 0.9, map[string]any{"content": "Lesson 1 content: MCP is a protocol.", "course_title": catalog[0].Title, "lesson_number": 1, "chunk_index": 3}),
		scored(t, 0.7, map[string]any{"content": "Course level text.", "course_title": catalog[0].Title, "chunk_index": 0}),
		scored(t, 0.5, map[string]any{"course_title": catalog[0].Title}),
	}}
	store := newStore(index, &fakeEmbedder{}, newMemoryCourses(catalog...), 0)

	results := store.Search(context.Background(), "what is mcp", "mcp", nil)
	if results.Error != "" {
		t.Fatalf("unexpected search error: %s", results.Error)
	}
	if len(results.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(results.Documents))
	}
	if results.Metadata[0].LessonNumber == nil || *results.Metadata[0].LessonNumber != 1 || results.Metadata[0].ChunkIndex != 3 {
		t.Errorf("unexpected metadata: %+v", results.Metadata[0])
	}
	if results.Metadata[1].LessonNumber != nil {
		t.Errorf("expected no lesson for course level chunk")
	}

	if index.lastQuery.TopK != DefaultMaxResults {
		t.Errorf("expected TopK %d, got %d", DefaultMaxResults, index.lastQuery.TopK)
	}
	if index.lastQuery.MetadataFilter == nil {
		t.Fatalf("expected course filter to be applied")
	}
	eq := index.lastQuery.MetadataFilter.AsMap()["course_title"].(map[string]any)["$eq"]
	if eq != catalog[0].Title {
		t.Errorf("expected filter on resolved title, got %v", eq)
	}
}

func TestSearchErrors(t *testing.T) {
	tests := []struct {
		name     string
		store    *Store
		course   string
		expected string
	}{
		{
			name:     "unknown course",
			store:    newStore(&fakeIndex{}, &fakeEmbedder{}, newMemoryCourses(catalog...), 5),
			course:   "Kubernetes Operators",
			expected: "No course found matching 'Kubernetes Operators'",
		},
		{
			name:     "embedding failure",
			store:    newStore(&fakeIndex{}, &fakeEmbedder{err: errors.New("rate limited")}, newMemoryCourses(catalog...), 5),
			expected: "Search error: rate limited",
		},
		{
			name:     "query failure",
			store:    newStore(&fakeIndex{queryErr: errors.New("index unavailable")}, &fakeEmbedder{}, newMemoryCourses(catalog...), 5),
			expected: "Search error: index unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := tt.store.Search(context.Background(), "query", tt.course, nil)
			if results.Error != tt.expected {
				t.Errorf("expected error %q, got %q", tt.expected, results.Error)
			}
			if !results.IsEmpty() {
				t.Errorf("expected no documents alongside an error")
			}
		})
	}
}

func TestGetLessonLink(t *testing.T) {
	store := newStore(&fakeIndex{}, &fakeEmbedder{}, newMemoryCourses(catalog...), 5)
	ctx := context.Background()

	link := store.GetLessonLink(ctx, catalog[0].Title, 0)
	if link == nil || *link != "https://example.com/mcp/0" {
		t.Errorf("unexpected link: %v", link)
	}
	if store.GetLessonLink(ctx, catalog[0].Title, 1) != nil {
		t.Errorf("expected nil link for lesson without one")
	}
	if store.GetLessonLink(ctx, catalog[0].Title, 9) != nil {
		t.Errorf("expected nil link for unknown lesson")
	}
	if store.GetLessonLink(ctx, "Unknown", 0) != nil {
		t.Errorf("expected nil link for unknown course")
	}
}

func TestGetCourseOutline(t *testing.T) {
	store := newStore(&fakeIndex{}, &fakeEmbedder{}, newMemoryCourses(catalog...), 5)

	course, err := store.GetCourseOutline(context.Background(), "mcp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if course.Title != catalog[0].Title || len(course.Lessons) != 2 {
		t.Errorf("unexpected course: %+v", course)
	}

	_, err = store.GetCourseOutline(context.Background(), "Kubernetes Operators")
	if !errors.Is(err, models.ErrCourseNotFound) {
		t.Errorf("expected ErrCourseNotFound, got %v", err)
	}
}

func TestAddCourseReplacesVectors(t *testing.T) {
	course := &models.Course{Title: "Intro to RAG"}
	index := &fakeIndex{existing: []string{vectorID("Intro to RAG", 0), vectorID("Intro to RAG", 1), vectorID("Other", 0)}}
	courses := newMemoryCourses()
	store := newStore(index, &fakeEmbedder{}, courses, 5)

	lesson := 1
	chunks := make([]models.CourseChunk, 0, 12)
	for i := 0; i < 12; i++ {
		chunks = append(chunks, models.CourseChunk{Content: fmt.Sprintf("chunk %d", i), CourseTitle: course.Title, LessonNumber: &lesson, ChunkIndex: i})
	}

	if err := store.AddCourse(context.Background(), course, chunks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(index.deleted) != 2 {
		t.Errorf("expected stale vectors of the course to be deleted, got %v", index.deleted)
	}
	if len(index.upserted) != 12 {
		t.Fatalf("expected 12 upserted vectors, got %d", len(index.upserted))
	}

	first := index.upserted[0]
	if first.Id != vectorID("Intro to RAG", 0) {
		t.Errorf("unexpected vector id: %s", first.Id)
	}
	md := first.Metadata.AsMap()
	if md["content"] != "chunk 0" || md["course_title"] != "Intro to RAG" || md["lesson_number"] != float64(1) {
		t.Errorf("unexpected metadata: %v", md)
	}

	if count, _ := courses.CountCourses(); count != 1 {
		t.Errorf("expected course to be saved in the catalog")
	}

	index.existing = []string{vectorID("Intro to RAG", 0)}
	index.deleted = nil
	if err := store.Clear(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(index.deleted) != 1 {
		t.Errorf("expected course vectors to be cleared, got %v", index.deleted)
	}
	if count, _ := courses.CountCourses(); count != 0 {
		t.Errorf("expected catalog to be empty after clear")
	}
}

func TestVectorPrefixIsDistinctPerTitle(t *testing.T) {
	pairs := [][2]string{
		{"C Basics", "C++ Basics"},
		{"机器学习", "機械学習"},
		{"Intro to RAG", "intro to rag"},
		{"Go", "Go 2"},
	}

	for _, pair := range pairs {
		a, b := vectorPrefix(pair[0]), vectorPrefix(pair[1])
		if a == b {
			t.Errorf("%q and %q share prefix %s", pair[0], pair[1], a)
		}
		if strings.HasPrefix(a, b) || strings.HasPrefix(b, a) {
			t.Errorf("prefix of %q overlaps prefix of %q", pair[0], pair[1])
		}
	}
}

func TestAddCourseKeepsSimilarlyNamedCourse(t *testing.T) {
	index := &fakeIndex{existing: []string{vectorID("C Basics", 0), vectorID("C Basics", 1)}}
	store := newStore(index, &fakeEmbedder{}, newMemoryCourses(), 5)

	course := &models.Course{Title: "C++ Basics"}
	chunks := []models.CourseChunk{{Content: "Templates.", CourseTitle: course.Title, ChunkIndex: 0}}

	if err := store.AddCourse(context.Background(), course, chunks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(index.deleted) != 0 {
		t.Errorf("expected vectors of C Basics to be kept, deleted %v", index.deleted)
	}
	if len(index.upserted) != 1 || index.upserted[0].Id == vectorID("C Basics", 0) {
		t.Errorf("expected a distinct vector id for C++ Basics, got %v", index.upserted)
	}
}

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/neddyKG/ragchatbot-codebase/models"

	"github.com/invopop/jsonschema"
)

// Tool is the capability contract every tool must satisfy to be dispatched
// by the ToolRegistry.
type Tool interface {
	Definition() models.ToolDefinition
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

// SourceTracker is implemented by tools that record provenance for the
// results they return. LastSources holds the sources of the most recent
// execution only; ResetSources must be called between independent queries.
type SourceTracker interface {
	LastSources() []models.Source
	ResetSources()
}

// CourseSearcher is the vector search collaborator used by CourseSearchTool.
type CourseSearcher interface {
	Search(ctx context.Context, query, courseName string, lessonNumber *int) *models.SearchResults
	GetLessonLink(ctx context.Context, courseTitle string, lessonNumber int) *string
}

// CourseCatalog resolves a (possibly partial) course title to its outline.
type CourseCatalog interface {
	GetCourseOutline(ctx context.Context, courseTitle string) (*models.Course, error)
}

func generateInputSchema[T any]() models.InputSchema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)

	return models.InputSchema{
		Properties: schema.Properties,
		Required:   schema.Required,
	}
}

type CourseSearchToolInput struct {
	Query        string `json:"query" jsonschema:"required,description=What to search for in the course content"`
	CourseName   string `json:"course_name,omitempty" jsonschema:"description=Course title or part of it (e.g. 'MCP' or 'Introduction')"`
	LessonNumber *int   `json:"lesson_number,omitempty" jsonschema:"description=Specific lesson number to search within (e.g. 1 or 2)"`
}

type CourseSearchTool struct {
	searcher    CourseSearcher
	lastSources []models.Source
}

func NewCourseSearchTool(searcher CourseSearcher) *CourseSearchTool {
	return &CourseSearchTool{searcher: searcher}
}

func (c *CourseSearchTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "search_course_content",
		Description: "Search course materials with smart course name matching and lesson filtering",
		InputSchema: generateInputSchema[CourseSearchToolInput](),
	}
}

func (c *CourseSearchTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	c.lastSources = nil

	var params CourseSearchToolInput
	if err := json.Unmarshal(input, &params); err != nil {
		return "", fmt.Errorf("failed to parse search tool input: %v", err)
	}

	if strings.TrimSpace(params.Query) == "" {
		return "", fmt.Errorf("query is required")
	}

	results := c.searcher.Search(ctx, params.Query, params.CourseName, params.LessonNumber)
	if results == nil {
		return "", fmt.Errorf("search returned no result set")
	}

	if results.Error != "" {
		return results.Error, nil
	}

	if results.IsEmpty() {
		return noContentMessage(params.CourseName, params.LessonNumber), nil
	}

	return c.formatResults(ctx, results), nil
}

func (c *CourseSearchTool) LastSources() []models.Source {
	return c.lastSources
}

func (c *CourseSearchTool) ResetSources() {
	c.lastSources = nil
}

func noContentMessage(courseName string, lessonNumber *int) string {
	var filter strings.Builder
	if courseName != "" {
		fmt.Fprintf(&filter, " in course '%s'", courseName)
	}
	if lessonNumber != nil {
		fmt.Fprintf(&filter, " in lesson %d", *lessonNumber)
	}
	return fmt.Sprintf("No relevant content found%s.", filter.String())
}

func (c *CourseSearchTool) formatResults(ctx context.Context, results *models.SearchResults) string {
	passages := make([]string, 0, len(results.Documents))
	sources := make([]models.Source, 0, len(results.Documents))

	for i, doc := range results.Documents {
		var meta models.ChunkMetadata
		if i < len(results.Metadata) {
			meta = results.Metadata[i]
		}

		title := meta.CourseTitle
		if title == "" {
			title = "unknown"
		}

		label := title
		var link *string
		if meta.LessonNumber != nil {
			label = fmt.Sprintf("%s - Lesson %d", title, *meta.LessonNumber)
			link = c.searcher.GetLessonLink(ctx, title, *meta.LessonNumber)
		}

		passages = append(passages, fmt.Sprintf("[%s]\n%s", label, doc))
		sources = append(sources, models.Source{Text: label, Link: link})
	}

	c.lastSources = sources
	return strings.Join(passages, "\n\n")
}

type CourseOutlineToolInput struct {
	CourseTitle string `json:"course_title" jsonschema:"required,description=Course title or part of it to get the outline for"`
}

type CourseOutlineTool struct {
	catalog     CourseCatalog
	lastSources []models.Source
}

func NewCourseOutlineTool(catalog CourseCatalog) *CourseOutlineTool {
	return &CourseOutlineTool{catalog: catalog}
}

func (c *CourseOutlineTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "get_course_outline",
		Description: "Get the outline of a course: its title and link and the number and title of every lesson",
		InputSchema: generateInputSchema[CourseOutlineToolInput](),
	}
}

func (c *CourseOutlineTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	c.lastSources = nil

	var params CourseOutlineToolInput
	if err := json.Unmarshal(input, &params); err != nil {
		return "", fmt.Errorf("failed to parse course outline tool input: %v", err)
	}

	if strings.TrimSpace(params.CourseTitle) == "" {
		return "", fmt.Errorf("course_title is required")
	}

	course, err := c.catalog.GetCourseOutline(ctx, params.CourseTitle)
	if err != nil {
		if errors.Is(err, models.ErrCourseNotFound) {
			return fmt.Sprintf("No course found matching '%s'", params.CourseTitle), nil
		}
		return "", fmt.Errorf("failed to get course outline: %w", err)
	}

	var outline strings.Builder
	fmt.Fprintf(&outline, "Course: %s\n", course.Title)
	if course.CourseLink != "" {
		fmt.Fprintf(&outline, "Course Link: %s\n", course.CourseLink)
	}
	if course.Instructor != "" {
		fmt.Fprintf(&outline, "Instructor: %s\n", course.Instructor)
	}
	fmt.Fprintf(&outline, "\nLessons (%d total):\n", len(course.Lessons))
	for _, lesson := range course.Lessons {
		fmt.Fprintf(&outline, "Lesson %d: %s\n", lesson.LessonNumber, lesson.Title)
	}

	var link *string
	if course.CourseLink != "" {
		courseLink := course.CourseLink
		link = &courseLink
	}
	c.lastSources = []models.Source{{Text: course.Title, Link: link}}

	return strings.TrimRight(outline.String(), "\n"), nil
}

func (c *CourseOutlineTool) LastSources() []models.Source {
	return c.lastSources
}

func (c *CourseOutlineTool) ResetSources() {
	c.lastSources = nil
}

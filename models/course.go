package models

import (
	"errors"
	"time"
)

type Course struct {
	Title      string    `json:"title" db:"title"`
	CourseLink string    `json:"course_link,omitempty" db:"course_link"`
	Instructor string    `json:"instructor,omitempty" db:"instructor"`
	Lessons    []Lesson  `json:"lessons"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type Lesson struct {
	LessonNumber int    `json:"lesson_number" db:"lesson_number"`
	Title        string `json:"title" db:"title"`
	LessonLink   string `json:"lesson_link,omitempty" db:"lesson_link"`
}

type CourseChunk struct {
	Content      string `json:"content"`
	CourseTitle  string `json:"course_title"`
	LessonNumber *int   `json:"lesson_number,omitempty"`
	ChunkIndex   int    `json:"chunk_index"`
}

type ChunkMetadata struct {
	CourseTitle  string `json:"course_title"`
	LessonNumber *int   `json:"lesson_number,omitempty"`
	ChunkIndex   int    `json:"chunk_index"`
}

type SearchResults struct {
	Documents []string        `json:"documents"`
	Metadata  []ChunkMetadata `json:"metadata"`
	Distances []float64       `json:"distances"`
	Error     string          `json:"error,omitempty"`
}

func (r *SearchResults) IsEmpty() bool {
	return len(r.Documents) == 0
}

func SearchError(message string) *SearchResults {
	return &SearchResults{Error: message}
}

var ErrCourseNotFound = errors.New("course not found")

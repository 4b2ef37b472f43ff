package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/neddyKG/ragchatbot-codebase/models"

	_ "github.com/lib/pq"
)

type CourseRepository interface {
	UpsertCourse(course *models.Course) error
	GetCourseByTitle(title string) (*models.Course, error)
	GetAllCourses() ([]*models.Course, error)
	GetCourseTitles() ([]string, error)
	CountCourses() (int, error)
	DeleteAllCourses() error
}

type PostgresCourseRepository struct {
	db *sql.DB
}

func NewPostgresCourseRepository(databaseURL string) (*PostgresCourseRepository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresCourseRepository{db: db}, nil
}

// EnsureSchema creates the course catalog table when it does not exist yet.
func (r *PostgresCourseRepository) EnsureSchema() error {
	statements := []string{
		`CREATE SCHEMA IF NOT EXISTS courserag`,
		`CREATE TABLE IF NOT EXISTS courserag.courses (
			title       TEXT PRIMARY KEY,
			course_link TEXT NOT NULL DEFAULT '',
			instructor  TEXT NOT NULL DEFAULT '',
			lessons     JSONB NOT NULL DEFAULT '[]',
			createdAt   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}

	return nil
}

func (r *PostgresCourseRepository) UpsertCourse(course *models.Course) error {
	lessonsJSON, err := json.Marshal(course.Lessons)
	if err != nil {
		return fmt.Errorf("failed to marshal lessons: %w", err)
	}

	query := `
		INSERT INTO courserag.courses (title, course_link, instructor, lessons)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (title) DO UPDATE
		SET course_link = EXCLUDED.course_link,
			instructor = EXCLUDED.instructor,
			lessons = EXCLUDED.lessons
		RETURNING createdAt`

	row := r.db.QueryRow(query, course.Title, course.CourseLink, course.Instructor, lessonsJSON)

	if err := row.Scan(&course.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert course: %w", err)
	}

	return nil
}

func (r *PostgresCourseRepository) GetCourseByTitle(title string) (*models.Course, error) {
	query := `
		SELECT title, course_link, instructor, lessons, createdAt
		FROM courserag.courses
		WHERE title = $1`

	course, err := scanCourse(r.db.QueryRow(query, title))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("course %q: %w", title, models.ErrCourseNotFound)
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	return course, nil
}

func (r *PostgresCourseRepository) GetAllCourses() ([]*models.Course, error) {
	query := `
		SELECT title, course_link, instructor, lessons, createdAt
		FROM courserag.courses
		ORDER BY title`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	defer rows.Close()

	courses := make([]*models.Course, 0)
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		courses = append(courses, course)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over courses: %w", err)
	}

	return courses, nil
}

func (r *PostgresCourseRepository) GetCourseTitles() ([]string, error) {
	rows, err := r.db.Query("SELECT title FROM courserag.courses ORDER BY title")
	if err != nil {
		return nil, fmt.Errorf("failed to query course titles: %w", err)
	}
	defer rows.Close()

	titles := make([]string, 0)
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("failed to scan course title: %w", err)
		}
		titles = append(titles, title)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over course titles: %w", err)
	}

	return titles, nil
}

func (r *PostgresCourseRepository) CountCourses() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM courserag.courses").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count courses: %w", err)
	}
	return count, nil
}

func (r *PostgresCourseRepository) DeleteAllCourses() error {
	if _, err := r.db.Exec("DELETE FROM courserag.courses"); err != nil {
		return fmt.Errorf("failed to delete courses: %w", err)
	}
	return nil
}

func (r *PostgresCourseRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCourse(row rowScanner) (*models.Course, error) {
	course := &models.Course{}
	var lessonsJSON []byte

	if err := row.Scan(&course.Title, &course.CourseLink, &course.Instructor, &lessonsJSON, &course.CreatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(lessonsJSON, &course.Lessons); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lessons: %w", err)
	}

	return course, nil
}

package docprocessor

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/neddyKG/ragchatbot-codebase/models"

	"github.com/samber/lo"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
)

var (
	lessonHeader   = regexp.MustCompile(`^Lesson\s+(\d+):\s*(.*)$`)
	supportedFiles = []string{".txt", ".md"}
)

// Document is one parsed course file ready for indexing.
type Document struct {
	Path   string
	Course *models.Course
	Chunks []models.CourseChunk
}

type Processor struct {
	chunkSize    int
	chunkOverlap int
}

func NewProcessor(chunkSize, chunkOverlap int) *Processor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return &Processor{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// ProcessDirectory parses every supported course file in dir. Files that fail
// to parse are logged and skipped.
func (p *Processor) ProcessDirectory(dir string) ([]*Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	documents := make([]*Document, 0)
	for _, entry := range entries {
		if entry.IsDir() || !lo.Contains(supportedFiles, strings.ToLower(filepath.Ext(entry.Name()))) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		doc, err := p.ProcessFile(path)
		if err != nil {
			log.Printf("[ERROR] Failed to process %s: %v", path, err)
			continue
		}

		documents = append(documents, doc)
	}

	return documents, nil
}

func (p *Processor) ProcessFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	fallbackTitle := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	course, chunks, err := p.Parse(f, fallbackTitle)
	if err != nil {
		return nil, err
	}

	return &Document{Path: path, Course: course, Chunks: chunks}, nil
}

type lessonBuffer struct {
	lesson models.Lesson
	lines  []string
}

// Parse reads a course document. The header carries "Course Title:",
// "Course Link:" and "Course Instructor:" lines; each "Lesson <n>: <title>"
// line starts a lesson, optionally followed by a "Lesson Link:" line.
func (p *Processor) Parse(r io.Reader, fallbackTitle string) (*models.Course, []models.CourseChunk, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	course := &models.Course{}
	var preamble []string
	var lessons []*lessonBuffer

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)

		if len(lessons) == 0 {
			if value, ok := headerValue(trimmed, "Course Title:"); ok && course.Title == "" {
				course.Title = value
				continue
			}
			if value, ok := headerValue(trimmed, "Course Link:"); ok && course.CourseLink == "" {
				course.CourseLink = value
				continue
			}
			if value, ok := headerValue(trimmed, "Course Instructor:"); ok && course.Instructor == "" {
				course.Instructor = value
				continue
			}
		}

		if m := lessonHeader.FindStringSubmatch(trimmed); m != nil {
			number, err := strconv.Atoi(m[1])
			if err != nil {
				return nil, nil, fmt.Errorf("failed to parse lesson number %q: %w", m[1], err)
			}
			lessons = append(lessons, &lessonBuffer{
				lesson: models.Lesson{LessonNumber: number, Title: strings.TrimSpace(m[2])},
			})
			continue
		}

		if len(lessons) > 0 {
			current := lessons[len(lessons)-1]
			if value, ok := headerValue(trimmed, "Lesson Link:"); ok && current.lesson.LessonLink == "" && len(current.lines) == 0 {
				current.lesson.LessonLink = value
				continue
			}
			current.lines = append(current.lines, line)
			continue
		}

		preamble = append(preamble, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read course document: %w", err)
	}

	if course.Title == "" {
		course.Title = fallbackTitle
	}
	if course.Title == "" {
		return nil, nil, fmt.Errorf("course document has no title")
	}

	var chunks []models.CourseChunk
	addChunks := func(text string, lessonNumber *int) {
		for i, content := range p.ChunkText(text) {
			if lessonNumber != nil && i == 0 {
				content = fmt.Sprintf("Lesson %d content: %s", *lessonNumber, content)
			}
			chunks = append(chunks, models.CourseChunk{
				Content:      content,
				CourseTitle:  course.Title,
				LessonNumber: lessonNumber,
				ChunkIndex:   len(chunks),
			})
		}
	}

	addChunks(strings.Join(preamble, "\n"), nil)

	for _, buf := range lessons {
		course.Lessons = append(course.Lessons, buf.lesson)
		number := buf.lesson.LessonNumber
		addChunks(strings.Join(buf.lines, "\n"), &number)
	}

	return course, chunks, nil
}

func headerValue(line, prefix string) (string, bool) {
	if len(line) < len(prefix) || !strings.EqualFold(line[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(line[len(prefix):]), true
}

// ChunkText splits text into sentence-aligned chunks of at most chunkSize
// characters. Consecutive chunks share trailing sentences totalling at most
// chunkOverlap characters. A single sentence longer than chunkSize becomes its
// own chunk.
func (p *Processor) ChunkText(text string) []string {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0

	for _, sentence := range sentences {
		if len(current) > 0 && currentLen+1+len(sentence) > p.chunkSize {
			chunks = append(chunks, strings.Join(current, " "))

			current = p.overlapTail(current)
			currentLen = joinedLen(current)
			if len(current) > 0 && currentLen+1+len(sentence) > p.chunkSize {
				current = nil
				currentLen = 0
			}
		}

		if len(current) > 0 {
			currentLen++
		}
		current = append(current, sentence)
		currentLen += len(sentence)
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks
}

func (p *Processor) overlapTail(sentences []string) []string {
	if p.chunkOverlap == 0 {
		return nil
	}

	total := 0
	start := len(sentences)
	for i := len(sentences) - 1; i >= 0; i-- {
		add := len(sentences[i])
		if start < len(sentences) {
			add++
		}
		if total+add > p.chunkOverlap {
			break
		}
		total += add
		start = i
	}

	// never carry the whole chunk forward
	if start == 0 {
		start = 1
	}
	if start >= len(sentences) {
		return nil
	}
	return append([]string(nil), sentences[start:]...)
}

func joinedLen(sentences []string) int {
	if len(sentences) == 0 {
		return 0
	}
	n := len(sentences) - 1
	for _, s := range sentences {
		n += len(s)
	}
	return n
}

// SplitSentences breaks text at '.', '!' or '?' followed by whitespace and an
// upper-case letter. Whitespace inside sentences is collapsed.
func SplitSentences(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var sentences []string
	var current []string
	for i, word := range words {
		current = append(current, word)

		if i+1 < len(words) && endsSentence(word) && startsUpper(words[i+1]) {
			sentences = append(sentences, strings.Join(current, " "))
			current = nil
		}
	}
	if len(current) > 0 {
		sentences = append(sentences, strings.Join(current, " "))
	}

	return sentences
}

func endsSentence(word string) bool {
	last := word[len(word)-1]
	return last == '.' || last == '!' || last == '?'
}

func startsUpper(word string) bool {
	for _, r := range word {
		return unicode.IsUpper(r)
	}
	return false
}

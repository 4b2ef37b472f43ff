package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/neddyKG/ragchatbot-codebase/models"
	"github.com/neddyKG/ragchatbot-codebase/services/agent"
)

type CourseTitleLister interface {
	GetCourseTitles() ([]string, error)
}

// RAGService answers course questions for the HTTP layer. It owns the shared
// tool registry, so queries are serialized through slot.
type RAGService struct {
	slot     chan struct{}
	engine   *agent.Engine
	registry *agent.ToolRegistry
	sessions *SessionManager
	courses  CourseTitleLister
	timeout  time.Duration
}

func NewRAGService(engine *agent.Engine, registry *agent.ToolRegistry, sessions *SessionManager, courses CourseTitleLister, timeout time.Duration) *RAGService {
	return &RAGService{
		slot:     make(chan struct{}, 1),
		engine:   engine,
		registry: registry,
		sessions: sessions,
		courses:  courses,
		timeout:  timeout,
	}
}

func (s *RAGService) Query(ctx context.Context, query, sessionID string) (string, []models.Source, error) {
	log.Printf("[INFO] Starting query processing for session %q", sessionID)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		log.Printf("[ERROR] Query gave up waiting for a free slot: %v", ctx.Err())
		return "", nil, fmt.Errorf("failed to process query: %w", ctx.Err())
	}
	defer func() { <-s.slot }()

	var history string
	if sessionID != "" {
		history = s.sessions.GetConversationHistory(sessionID)
	}

	answer, err := s.engine.Run(ctx, agent.RunRequest{
		Query:    fmt.Sprintf("Answer this question about course materials: %s", query),
		History:  history,
		Registry: s.registry,
	})
	sources := s.registry.CollectSources()
	s.registry.ResetSources()

	if err != nil {
		log.Printf("[ERROR] Query processing failed: %v", err)
		return "", nil, fmt.Errorf("failed to process query: %w", err)
	}

	if sessionID != "" {
		s.sessions.AddExchange(sessionID, query, answer)
	}

	log.Printf("[INFO] Query processed successfully with %d sources", len(sources))
	return answer, sources, nil
}

func (s *RAGService) GetCourseAnalytics() (*models.CourseStats, error) {
	titles, err := s.courses.GetCourseTitles()
	if err != nil {
		log.Printf("[ERROR] Failed to get course titles: %v", err)
		return nil, fmt.Errorf("failed to get course analytics: %w", err)
	}

	return &models.CourseStats{
		TotalCourses: len(titles),
		CourseTitles: titles,
	}, nil
}

func (s *RAGService) CreateSession() string {
	return s.sessions.CreateSession()
}

func (s *RAGService) ClearSession(sessionID string) {
	s.sessions.ClearSession(sessionID)
}

package services

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/neddyKG/ragchatbot-codebase/models"

	"github.com/google/uuid"
)

// SessionManager keeps the recent conversation of each session in memory.
// Only the last maxHistory exchanges are retained.
type SessionManager struct {
	mu         sync.Mutex
	sessions   map[string][]models.SessionMessage
	maxHistory int
}

func NewSessionManager(maxHistory int) *SessionManager {
	if maxHistory < 0 {
		maxHistory = 0
	}
	return &SessionManager{
		sessions:   make(map[string][]models.SessionMessage),
		maxHistory: maxHistory,
	}
}

func (m *SessionManager) CreateSession() string {
	id := uuid.NewString()

	m.mu.Lock()
	m.sessions[id] = nil
	m.mu.Unlock()

	log.Printf("[INFO] Created session %s", id)
	return id
}

func (m *SessionManager) AddMessage(sessionID, role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	messages := append(m.sessions[sessionID], models.SessionMessage{Role: role, Content: content})

	limit := m.maxHistory * 2
	if len(messages) > limit {
		messages = append([]models.SessionMessage(nil), messages[len(messages)-limit:]...)
	}
	m.sessions[sessionID] = messages
}

func (m *SessionManager) AddExchange(sessionID, userMessage, assistantMessage string) {
	m.AddMessage(sessionID, models.RoleUser, userMessage)
	m.AddMessage(sessionID, models.RoleAssistant, assistantMessage)
}

// GetConversationHistory formats the retained messages as "User: ..." and
// "Assistant: ..." lines. It returns "" for unknown or empty sessions.
func (m *SessionManager) GetConversationHistory(sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	messages := m.sessions[sessionID]
	if len(messages) == 0 {
		return ""
	}

	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", roleLabel(msg.Role), msg.Content))
	}
	return strings.Join(lines, "\n")
}

func (m *SessionManager) ClearSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, sessionID)
	log.Printf("[INFO] Cleared session %s", sessionID)
}

func roleLabel(role string) string {
	switch role {
	case models.RoleUser:
		return "User"
	case models.RoleAssistant:
		return "Assistant"
	default:
		return role
	}
}

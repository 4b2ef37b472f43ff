package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/neddyKG/ragchatbot-codebase/models"

	"github.com/gorilla/mux"
)

type QueryService interface {
	Query(ctx context.Context, query, sessionID string) (string, []models.Source, error)
	GetCourseAnalytics() (*models.CourseStats, error)
	CreateSession() string
	ClearSession(sessionID string)
}

type QueryHandler struct {
	service QueryService
}

func NewQueryHandler(service QueryService) *QueryHandler {
	return &QueryHandler{service: service}
}

func (h *QueryHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/query", h.Query).Methods("POST")
	router.HandleFunc("/api/courses", h.GetCourseStats).Methods("GET")
	router.HandleFunc("/api/session/{session_id}", h.ClearSession).Methods("DELETE")
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	log.Printf("[INFO] Received query request")

	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[ERROR] Failed to decode query request JSON: %v", err)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "Query is required")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = h.service.CreateSession()
	}

	answer, sources, err := h.service.Query(r.Context(), req.Query, sessionID)
	if err != nil {
		log.Printf("[ERROR] Query processing failed: %v", err)
		if errors.Is(err, context.DeadlineExceeded) {
			h.writeErrorResponse(w, http.StatusGatewayTimeout, "Query timed out")
			return
		}
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to process query")
		return
	}

	if sources == nil {
		sources = []models.Source{}
	}

	log.Printf("[INFO] Query completed successfully")
	h.writeJSONResponse(w, http.StatusOK, models.QueryResponse{
		Answer:    answer,
		Sources:   sources,
		SessionID: sessionID,
	})
}

func (h *QueryHandler) GetCourseStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetCourseAnalytics()
	if err != nil {
		log.Printf("[ERROR] Failed to get course stats: %v", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to get course stats")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, stats)
}

func (h *QueryHandler) ClearSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	h.service.ClearSession(sessionID)

	h.writeJSONResponse(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Session %s cleared", sessionID),
	})
}

func (h *QueryHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *QueryHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/neddyKG/ragchatbot-codebase/config"
	"github.com/neddyKG/ragchatbot-codebase/db"
	"github.com/neddyKG/ragchatbot-codebase/handlers"
	"github.com/neddyKG/ragchatbot-codebase/services"
	"github.com/neddyKG/ragchatbot-codebase/services/agent"
	"github.com/neddyKG/ragchatbot-codebase/services/claude"
	"github.com/neddyKG/ragchatbot-codebase/services/vectorstore"
	"github.com/neddyKG/ragchatbot-codebase/telemetry"

	"github.com/gorilla/mux"
)

func main() {
	cfg := config.Load()

	if cfg.DatabaseURL == "" {
		log.Fatal("DB_URL environment variable is required")
	}

	if cfg.PineconeAPIKey == "" {
		log.Fatal("PINECONE_API_KEY environment variable is required")
	}

	if cfg.AnthropicAPIKey == "" {
		log.Fatal("ANTHROPIC_API_KEY environment variable is required")
	}

	if cfg.OpenAIAPIKey == "" {
		log.Fatal("OPENAI_API_KEY environment variable is required")
	}

	ctx := context.Background()

	courseRepo, err := db.NewPostgresCourseRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize course database: %v", err)
	}
	defer courseRepo.Close()

	if err := courseRepo.EnsureSchema(); err != nil {
		log.Fatalf("Failed to prepare course database: %v", err)
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
		log.Fatalf("Failed to initialize vector store: %v", err)
	}

	recorder, err := telemetry.NewGlobalRecorder()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}

	registry := agent.NewToolRegistry(recorder)
	for _, tool := range []agent.Tool{
		agent.NewCourseSearchTool(store),
		agent.NewCourseOutlineTool(store),
	} {
		if err := registry.Register(tool); err != nil {
			log.Fatalf("Failed to register tool: %v", err)
		}
	}

	modelClient := claude.NewClient(claude.Config{
		APIKey:  cfg.AnthropicAPIKey,
		Model:   cfg.AnthropicModel,
		BaseURL: cfg.AnthropicBaseURL,
	})

	engine := agent.NewEngine(modelClient,
		agent.WithMaxRounds(cfg.MaxToolRounds),
		agent.WithRecorder(recorder),
	)

	ragService := services.NewRAGService(engine, registry, services.NewSessionManager(cfg.MaxHistory), store, cfg.QueryTimeout)
	queryHandler := handlers.NewQueryHandler(ragService)

	router := mux.NewRouter()

	router.Use(corsMiddleware)
	router.Use(jsonMiddleware)

	router.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("OPTIONS")

	queryHandler.RegisterRoutes(router)

	router.HandleFunc("/", healthCheckHandler).Methods("GET")
	router.HandleFunc("/health", healthCheckHandler).Methods("GET")

	addr := ":" + cfg.Port
	fmt.Printf("Server starting on port %s\n", cfg.Port)

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "healthy"}`))
}

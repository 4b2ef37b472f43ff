package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string

	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicBaseURL string

	OpenAIAPIKey   string
	EmbeddingModel string

	PineconeAPIKey    string
	PineconeIndexName string
	PineconeNamespace string

	MaxResults    int
	MaxHistory    int
	MaxToolRounds int
	ChunkSize     int
	ChunkOverlap  int
	QueryTimeout  time.Duration
}

// Load reads a .env file when one is present and then the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("[INFO] No .env file loaded: %v", err)
	}

	return &Config{
		Port:        getEnv("PORT", "8000"),
		DatabaseURL: os.Getenv("DB_URL"),

		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:   os.Getenv("ANTHROPIC_MODEL"),
		AnthropicBaseURL: os.Getenv("ANTHROPIC_BASE_URL"),

		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		EmbeddingModel: os.Getenv("EMBEDDING_MODEL"),

		PineconeAPIKey:    os.Getenv("PINECONE_API_KEY"),
		PineconeIndexName: os.Getenv("PINECONE_INDEX_NAME"),
		PineconeNamespace: os.Getenv("PINECONE_NAMESPACE"),

		MaxResults:    getEnvInt("MAX_RESULTS", 5),
		MaxHistory:    getEnvInt("MAX_HISTORY", 2),
		MaxToolRounds: getEnvInt("MAX_TOOL_ROUNDS", 2),
		ChunkSize:     getEnvInt("CHUNK_SIZE", 800),
		ChunkOverlap:  getEnvInt("CHUNK_OVERLAP", 100),
		QueryTimeout:  time.Duration(getEnvInt("QUERY_TIMEOUT_SECONDS", 60)) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		log.Printf("[WARN] Invalid value %q for %s, using %d", value, key, fallback)
		return fallback
	}
	return n
}

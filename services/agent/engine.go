package agent

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/neddyKG/ragchatbot-codebase/models"
	"github.com/neddyKG/ragchatbot-codebase/telemetry"

	"github.com/samber/lo"
)

const DefaultMaxRounds = 2

// NoAnswerFallback is returned when the final model response has no text.
const NoAnswerFallback = "I wasn't able to put together an answer to that question. Please try asking it again."

// ModelClient sends one request to the language model endpoint.
type ModelClient interface {
	CreateMessage(ctx context.Context, req models.ModelRequest) (*models.ModelResponse, error)
}

// Dispatcher executes tool calls by name. *ToolRegistry satisfies it.
type Dispatcher interface {
	Definitions() []models.ToolDefinition
	Dispatch(ctx context.Context, name string, args map[string]any) string
}

type Engine struct {
	client       ModelClient
	systemPrompt string
	maxRounds    int
	metrics      *telemetry.Recorder
}

type EngineOption func(*Engine)

// WithMaxRounds bounds the number of tool rounds per query. Values below one
// are ignored.
func WithMaxRounds(n int) EngineOption {
	return func(e *Engine) {
		if n >= 1 {
			e.maxRounds = n
		}
	}
}

func WithSystemPrompt(prompt string) EngineOption {
	return func(e *Engine) {
		e.systemPrompt = prompt
	}
}

func WithRecorder(metrics *telemetry.Recorder) EngineOption {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

func NewEngine(client ModelClient, opts ...EngineOption) *Engine {
	e := &Engine{
		client:       client,
		systemPrompt: SystemPrompt,
		maxRounds:    DefaultMaxRounds,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) MaxRounds() int {
	return e.maxRounds
}

type RunRequest struct {
	Query string
	// History is the formatted prior conversation; empty when there is none.
	History string
	// Tools overrides the definitions offered to the model. When empty the
	// registry's definitions are used.
	Tools    []models.ToolDefinition
	Registry Dispatcher
}

// roundState is owned by a single Run call and discarded when it returns.
type roundState struct {
	messages     []models.Message
	round        int
	toolsEnabled bool
}

// Run answers one query. The model may request tools for at most maxRounds
// rounds; the call that follows the last round carries no tool definitions
// and its text is returned as the answer.
func (e *Engine) Run(ctx context.Context, req RunRequest) (string, error) {
	log.Printf("[INFO] Starting query processing (max rounds: %d)", e.maxRounds)

	system := e.buildSystemPrompt(req.History)

	tools := req.Tools
	if len(tools) == 0 && req.Registry != nil {
		tools = req.Registry.Definitions()
	}

	state := &roundState{
		messages:     []models.Message{models.NewUserTextMessage(req.Query)},
		toolsEnabled: len(tools) > 0,
	}

	response, err := e.callModel(ctx, system, state, tools)
	if err != nil {
		return "", err
	}

	for state.round = 1; state.round <= e.maxRounds; state.round++ {
		if response.StopReason != models.StopReasonToolUse || req.Registry == nil {
			return finalText(response), nil
		}

		toolUses := response.ToolUses()
		if len(toolUses) == 0 {
			log.Printf("[WARN] Model stopped for tool use without requesting any tool, treating response as final")
			return finalText(response), nil
		}

		state.messages = append(state.messages, models.Message{
			Role:    models.RoleAssistant,
			Content: slices.Clone(response.Content),
		})
		state.messages = append(state.messages, models.Message{
			Role:    models.RoleUser,
			Content: e.executeTools(ctx, req.Registry, toolUses),
		})

		if state.round == e.maxRounds {
			state.toolsEnabled = false
			e.metrics.ForcedAnswer(ctx)
			log.Printf("[INFO] Tool round limit reached, requesting final answer without tools")
		}

		response, err = e.callModel(ctx, system, state, tools)
		if err != nil {
			return "", err
		}
	}

	if calls := response.ToolUses(); len(calls) > 0 {
		log.Printf("[WARN] Discarding %d tool call(s) requested after the final round", len(calls))
	}

	return finalText(response), nil
}

func (e *Engine) buildSystemPrompt(history string) string {
	if history == "" {
		return e.systemPrompt
	}
	return fmt.Sprintf("%s\n\nPrevious conversation:\n%s", e.systemPrompt, history)
}

func (e *Engine) callModel(ctx context.Context, system string, state *roundState, tools []models.ToolDefinition) (*models.ModelResponse, error) {
	req := models.ModelRequest{
		System:     system,
		Messages:   slices.Clone(state.messages),
		AllowTools: state.toolsEnabled,
	}
	if state.toolsEnabled {
		req.Tools = tools
	}

	e.metrics.ModelCall(ctx, state.round, state.toolsEnabled)

	response, err := e.client.CreateMessage(ctx, req)
	if err != nil {
		log.Printf("[ERROR] Model call failed in round %d: %v", state.round, err)
		return nil, fmt.Errorf("failed to call model in round %d: %w", state.round, err)
	}
	if response == nil {
		return nil, fmt.Errorf("failed to call model in round %d: empty response", state.round)
	}

	return response, nil
}

func (e *Engine) executeTools(ctx context.Context, registry Dispatcher, toolUses []models.ContentBlock) []models.ContentBlock {
	return lo.Map(toolUses, func(use models.ContentBlock, _ int) models.ContentBlock {
		log.Printf("[INFO] Executing tool: %s with arguments: %v", use.Name, use.Input)
		return models.NewToolResultBlock(use.ID, registry.Dispatch(ctx, use.Name, use.Input))
	})
}

func finalText(response *models.ModelResponse) string {
	text := response.Text()
	if strings.TrimSpace(text) == "" {
		return NoAnswerFallback
	}
	return text
}

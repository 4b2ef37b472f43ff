package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/neddyKG/ragchatbot-codebase/models"
	"github.com/neddyKG/ragchatbot-codebase/telemetry"

	"github.com/samber/lo"
)

var ErrDuplicateTool = errors.New("tool already registered")

// ToolRegistry maps tool names to tools and collects the sources produced by
// tracked tools across one query. It is not safe for concurrent use.
type ToolRegistry struct {
	tools   map[string]Tool
	order   []string
	sources []models.Source
	metrics *telemetry.Recorder
}

func NewToolRegistry(metrics *telemetry.Recorder) *ToolRegistry {
	return &ToolRegistry{
		tools:   make(map[string]Tool),
		metrics: metrics,
	}
}

func (r *ToolRegistry) Register(tool Tool) error {
	name := tool.Definition().Name
	if name == "" {
		return fmt.Errorf("failed to register tool: definition has no name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("failed to register tool %q: %w", name, ErrDuplicateTool)
	}

	r.tools[name] = tool
	r.order = append(r.order, name)
	log.Printf("[INFO] Registered tool: %s", name)
	return nil
}

// Definitions returns every registered tool definition in registration order.
func (r *ToolRegistry) Definitions() []models.ToolDefinition {
	return lo.Map(r.order, func(name string, _ int) models.ToolDefinition {
		return r.tools[name].Definition()
	})
}

// Dispatch runs the named tool and always returns text for the model. Unknown
// names, tool errors and panics are reported as strings, never as errors.
func (r *ToolRegistry) Dispatch(ctx context.Context, name string, args map[string]any) string {
	tool, ok := r.tools[name]
	if !ok {
		log.Printf("[WARN] Model requested unknown tool: %s", name)
		return fmt.Sprintf("Tool '%s' not found", name)
	}

	start := time.Now()
	result, err := r.execute(ctx, tool, args)
	r.metrics.ToolInvocation(ctx, name, err == nil, time.Since(start))

	if tracker, ok := tool.(SourceTracker); ok {
		r.sources = append(r.sources, tracker.LastSources()...)
		tracker.ResetSources()
	}

	if err != nil {
		log.Printf("[ERROR] Tool %s execution failed: %v", name, err)
		return fmt.Sprintf("Error executing tool '%s': %v", name, err)
	}

	log.Printf("[INFO] Tool %s execution result: %d chars", name, len(result))
	return result
}

func (r *ToolRegistry) execute(ctx context.Context, tool Tool, args map[string]any) (result string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	if args == nil {
		args = map[string]any{}
	}

	input, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode tool input: %w", err)
	}

	return tool.Execute(ctx, input)
}

// CollectSources returns a copy of the sources gathered since the last reset,
// in the order the tools produced them.
func (r *ToolRegistry) CollectSources() []models.Source {
	return slices.Clone(r.sources)
}

func (r *ToolRegistry) ResetSources() {
	r.sources = nil
	for _, name := range r.order {
		if tracker, ok := r.tools[name].(SourceTracker); ok {
			tracker.ResetSources()
		}
	}
}

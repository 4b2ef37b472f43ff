package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/neddyKG/ragchatbot-codebase/models"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	DefaultModel     = string(anthropic.ModelClaude4Sonnet20250514)
	DefaultMaxTokens = 800
)

type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int64
}

// Client adapts the Anthropic Messages API to the engine's ModelClient
// contract. Every request is sent with temperature 0.
type Client struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

func NewClient(cfg Config) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &Client{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
	}
}

func (c *Client) CreateMessage(ctx context.Context, req models.ModelRequest) (*models.ModelResponse, error) {
	params := c.buildParams(req)

	logRequest(params)

	response, err := c.client.Messages.New(ctx, params)
	if err != nil {
		log.Printf("[ERROR] Failed to call Anthropic API: %v", err)
		return nil, fmt.Errorf("failed to call Anthropic API: %w", err)
	}

	logResponse(response)

	return convertResponse(response), nil
}

func (c *Client) buildParams(req models.ModelRequest) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(0),
		Messages:    convertMessages(req.Messages),
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	if req.AllowTools && len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}

	return params
}

func convertMessages(messages []models.Message) []anthropic.MessageParam {
	var anthropicMessages []anthropic.MessageParam

	for _, msg := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
		for _, block := range msg.Content {
			switch block.Type {
			case models.BlockTypeText:
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfText: &anthropic.TextBlockParam{Text: block.Text},
				})
			case models.BlockTypeToolUse:
				input := block.Input
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    block.ID,
						Name:  block.Name,
						Input: input,
					},
				})
			case models.BlockTypeToolResult:
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: block.ToolUseID,
						Content: []anthropic.ToolResultBlockParamContentUnion{
							{OfText: &anthropic.TextBlockParam{Text: block.Content}},
						},
					},
				})
			}
		}

		if msg.Role == models.RoleAssistant {
			anthropicMessages = append(anthropicMessages, anthropic.NewAssistantMessage(blocks...))
		} else {
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(blocks...))
		}
	}

	return anthropicMessages
}

func convertTools(tools []models.ToolDefinition) []anthropic.ToolUnionParam {
	toolSpecs := make([]anthropic.ToolUnionParam, 0, len(tools))

	for _, tool := range tools {
		toolSpecs = append(toolSpecs, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: tool.InputSchema.Properties,
					Required:   tool.InputSchema.Required,
				},
			},
		})
	}

	return toolSpecs
}

func convertResponse(response *anthropic.Message) *models.ModelResponse {
	result := &models.ModelResponse{StopReason: string(response.StopReason)}

	for _, block := range response.Content {
		switch block := block.AsAny().(type) {
		case anthropic.TextBlock:
			result.Content = append(result.Content, models.NewTextBlock(block.Text))
		case anthropic.ToolUseBlock:
			var inputMap map[string]any
			if err := json.Unmarshal(block.Input, &inputMap); err != nil {
				log.Printf("[WARN] Failed to decode input of tool call %s: %v", block.ID, err)
			}
			result.Content = append(result.Content, models.NewToolUseBlock(block.ID, block.Name, inputMap))
		}
	}

	return result
}

func logRequest(params anthropic.MessageNewParams) {
	log.Printf("[INFO] ========== Anthropic Request ==========")
	log.Printf("[INFO] Messages (%d total):", len(params.Messages))
	for i, msg := range params.Messages {
		log.Printf("[INFO]   [%d] Role: %s", i, msg.Role)
	}

	if len(params.Tools) > 0 {
		log.Printf("[INFO] Available Tools (%d total):", len(params.Tools))
		for i, tool := range params.Tools {
			if tool.OfTool != nil {
				log.Printf("[INFO]   [%d] Name: %s", i, tool.OfTool.Name)
			}
		}
	} else {
		log.Printf("[INFO] No tools provided")
	}
}

func logResponse(response *anthropic.Message) {
	log.Printf("[INFO] ========== Anthropic Response ==========")
	log.Printf("[INFO] Model: %s", response.Model)
	log.Printf("[INFO] StopReason: %s", response.StopReason)

	toolCallCount := 0
	for i, block := range response.Content {
		switch block := block.AsAny().(type) {
		case anthropic.TextBlock:
			log.Printf("[INFO]   [%d] Text: %d chars", i, len(block.Text))
		case anthropic.ToolUseBlock:
			toolCallCount++
			log.Printf("[INFO]   [%d] Tool Use: ID=%s, Name=%s", i, block.ID, block.Name)
		}
	}

	if toolCallCount > 0 {
		log.Printf("[INFO] Total tool calls: %d", toolCallCount)
	}
}

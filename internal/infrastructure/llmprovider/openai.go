package llmprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"travel-companion/internal/domain/generation"
	"travel-companion/internal/infrastructure/observability"
	"travel-companion/internal/infrastructure/resilience"
)

// ChatCompleter is the subset of the OpenAI client the generator uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI generates replies with an OpenAI compatible chat completions API.
type OpenAI struct {
	client  ChatCompleter
	opts    Options
	breaker *resilience.CircuitBreaker
	log     zerolog.Logger
}

// NewOpenAIFromConfig creates an OpenAI client, optionally against a
// compatible base URL.
func NewOpenAIFromConfig(apiKey, baseURL string, opts Options, log zerolog.Logger) *OpenAI {
	clientCfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		clientCfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return NewOpenAI(openai.NewClientWithConfig(clientCfg), opts, log)
}

// NewOpenAI wraps an existing client.
func NewOpenAI(client ChatCompleter, opts Options, log zerolog.Logger) *OpenAI {
	opts = opts.withDefaults()
	return &OpenAI{
		client:  client,
		opts:    opts,
		breaker: resilience.NewCircuitBreaker("openai", opts.Breaker),
		log:     log.With().Str("component", "openai-generator").Str("model", opts.Model).Logger(),
	}
}

// Generate implements generation.Generator.
func (g *OpenAI) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	ctx, span := observability.Tracer().Start(ctx, "openai.Generate",
		trace.WithAttributes(attribute.String("llm.model", g.opts.Model)))
	defer span.End()

	messages, err := toChatMessages(req)
	if err != nil {
		return nil, err
	}
	tools := chatTools(req.Tools)

	toolCalls := 0
	for depth := 0; depth < g.opts.MaxToolDepth; depth++ {
		chatReq := openai.ChatCompletionRequest{
			Model:    g.opts.Model,
			Messages: messages,
			Tools:    tools,
		}
		resp, err := guarded(ctx, "openai", g.breaker, g.opts.Retry, func() (openai.ChatCompletionResponse, error) {
			return g.client.CreateChatCompletion(ctx, chatReq)
		})
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("openai chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("llm returned no choices")
		}

		msg := resp.Choices[0].Message
		messages = append(messages, msg)
		if len(msg.ToolCalls) == 0 {
			text := strings.TrimSpace(msg.Content)
			if text == "" {
				return nil, generation.ErrEmptyResponse
			}
			return &generation.Result{Text: text, ToolCalls: toolCalls}, nil
		}

		for _, call := range msg.ToolCalls {
			toolCalls++
			result := generation.Invoke(ctx, req.Tools, call.Function.Name, json.RawMessage(call.Function.Arguments), g.opts.ToolTimeout)
			payload, err := json.Marshal(result)
			if err != nil {
				payload = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    string(payload),
				Name:       call.Function.Name,
				ToolCallID: call.ID,
			})
		}
	}

	return nil, fmt.Errorf("%w: %d rounds", generation.ErrToolDepthExceeded, g.opts.MaxToolDepth)
}

func toChatMessages(req generation.Request) ([]openai.ChatCompletionMessage, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Contents))
	for _, c := range req.Contents {
		msg := openai.ChatCompletionMessage{Role: chatRole(c.Role)}
		if !c.HasImage() {
			msg.Content = c.Text()
			messages = append(messages, msg)
			continue
		}

		for _, p := range c.Parts {
			if p.ImagePath == "" {
				msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: p.Text,
				})
				continue
			}
			data, mime, err := loadImage(p)
			if err != nil {
				return nil, err
			}
			msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: dataURL(data, mime)},
			})
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func chatRole(role generation.Role) string {
	switch role {
	case generation.RoleSystem:
		return openai.ChatMessageRoleSystem
	case generation.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

func chatTools(tools []generation.Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Schema(),
			},
		})
	}
	return out
}

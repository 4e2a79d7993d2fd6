package llmprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"travel-companion/internal/domain/generation"
	"travel-companion/internal/infrastructure/observability"
	"travel-companion/internal/infrastructure/resilience"
)

// ContentModel is the subset of the Gemini models API the generator uses.
type ContentModel interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini generates replies with the Gemini API.
type Gemini struct {
	models  ContentModel
	opts    Options
	breaker *resilience.CircuitBreaker
	log     zerolog.Logger
}

// NewGeminiFromConfig creates a Gemini API client.
func NewGeminiFromConfig(ctx context.Context, apiKey string, opts Options, log zerolog.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return NewGemini(client.Models, opts, log), nil
}

// NewGemini wraps an existing models API.
func NewGemini(models ContentModel, opts Options, log zerolog.Logger) *Gemini {
	opts = opts.withDefaults()
	return &Gemini{
		models:  models,
		opts:    opts,
		breaker: resilience.NewCircuitBreaker("gemini", opts.Breaker),
		log:     log.With().Str("component", "gemini-generator").Str("model", opts.Model).Logger(),
	}
}

// Generate implements generation.Generator.
func (g *Gemini) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	ctx, span := observability.Tracer().Start(ctx, "gemini.Generate",
		trace.WithAttributes(
			attribute.String("llm.model", g.opts.Model),
			attribute.Int("llm.contents", len(req.Contents)),
		))
	defer span.End()

	contents, err := g.toContents(req.Conversation())
	if err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{}
	if system := req.System(); system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if decls := functionDeclarations(req.Tools); len(decls) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	toolCalls := 0
	for depth := 0; depth < g.opts.MaxToolDepth; depth++ {
		resp, err := guarded(ctx, "gemini", g.breaker, g.opts.Retry, func() (*genai.GenerateContentResponse, error) {
			return g.models.GenerateContent(ctx, g.opts.Model, contents, cfg)
		})
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("gemini generate: %w", err)
		}

		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			text := strings.TrimSpace(resp.Text())
			if text == "" {
				return nil, generation.ErrEmptyResponse
			}
			span.SetAttributes(attribute.Int("llm.tool_calls", toolCalls))
			return &generation.Result{Text: text, ToolCalls: toolCalls}, nil
		}

		contents = append(contents, modelTurn(resp, calls))
		responses := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			toolCalls++
			args, err := json.Marshal(call.Args)
			if err != nil {
				args = nil
			}
			g.log.Debug().Str("tool", call.Name).Str("args", string(args)).Msg("tool call requested")
			result := generation.Invoke(ctx, req.Tools, call.Name, args, g.opts.ToolTimeout)
			responses = append(responses, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       call.ID,
				Name:     call.Name,
				Response: result,
			}})
		}
		contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: responses})
	}

	return nil, fmt.Errorf("%w: %d rounds", generation.ErrToolDepthExceeded, g.opts.MaxToolDepth)
}

func modelTurn(resp *genai.GenerateContentResponse, calls []*genai.FunctionCall) *genai.Content {
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		return resp.Candidates[0].Content
	}
	parts := make([]*genai.Part, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, &genai.Part{FunctionCall: c})
	}
	return &genai.Content{Role: genai.RoleModel, Parts: parts}
}

func (g *Gemini) toContents(conv []generation.Content) ([]*genai.Content, error) {
	out := make([]*genai.Content, 0, len(conv))
	for _, c := range conv {
		role := genai.RoleUser
		if c.Role == generation.RoleAssistant {
			role = genai.RoleModel
		}
		parts := make([]*genai.Part, 0, len(c.Parts))
		for _, p := range c.Parts {
			if p.ImagePath != "" {
				data, mime, err := loadImage(p)
				if err != nil {
					return nil, err
				}
				parts = append(parts, genai.NewPartFromBytes(data, mime))
				continue
			}
			if p.Text != "" {
				parts = append(parts, genai.NewPartFromText(p.Text))
			}
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}
	return out, nil
}

func functionDeclarations(tools []generation.Tool) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  toGenaiSchema(t.Schema()),
		})
	}
	return decls
}

func toGenaiSchema(s *jsonschema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Required:    append([]string(nil), s.Required...),
	}
	switch s.Type {
	case "object":
		out.Type = genai.TypeObject
	case "array":
		out.Type = genai.TypeArray
	case "integer":
		out.Type = genai.TypeInteger
	case "number":
		out.Type = genai.TypeNumber
	case "boolean":
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeString
	}
	if s.Properties != nil {
		out.Properties = make(map[string]*genai.Schema, s.Properties.Len())
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			out.Properties[pair.Key] = toGenaiSchema(pair.Value)
			out.PropertyOrdering = append(out.PropertyOrdering, pair.Key)
		}
	}
	if s.Items != nil {
		out.Items = toGenaiSchema(s.Items)
	}
	for _, e := range s.Enum {
		if v, ok := e.(string); ok {
			out.Enum = append(out.Enum, v)
		}
	}
	return out
}

package search

import (
	"context"

	"travel-companion/internal/domain/generation"
	"travel-companion/internal/domain/interaction"
)

// QueryArgs are the arguments of the web search tool.
type QueryArgs struct {
	Query string `json:"query" jsonschema:"description=Search query, written in the language most likely to find local results"`
}

// Tool exposes web search to the model. Failures return an empty list so the
// model can still answer from its own knowledge.
func (c *Client) Tool() generation.Tool {
	return generation.NewFuncTool(
		interaction.ToolWebSearch,
		"Search the web and return up to 40 results with title, link, snippet, display_link and the main text of the top pages.",
		func(ctx context.Context, args QueryArgs) (any, error) {
			results, err := c.Search(ctx, args.Query)
			if err != nil {
				c.log.Error().Err(err).Str("query", args.Query).Msg("web search failed")
				return []Result{}, nil
			}
			return results, nil
		},
	)
}

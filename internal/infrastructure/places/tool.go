package places

import (
	"context"
	"fmt"
	"strings"

	"travel-companion/internal/domain/generation"
	"travel-companion/internal/domain/interaction"
)

// SearchArgs are the arguments of the nearby search tool.
type SearchArgs struct {
	Latitude  float64 `json:"latitude" jsonschema:"description=Latitude of the search center"`
	Longitude float64 `json:"longitude" jsonschema:"description=Longitude of the search center"`
	Keyword   string  `json:"keyword" jsonschema:"description=What to look for, e.g. restaurant or cafe or museum"`
}

// Tool exposes nearby search to the model. Lookup failures return an empty
// list so the model can still answer.
func (c *Client) Tool() generation.Tool {
	return generation.NewFuncTool(
		interaction.ToolNearbyPlaces,
		"Search places within walking distance of a position, sorted by distance. Returns name, location, open_now, rating, types and distance_km.",
		func(ctx context.Context, args SearchArgs) (any, error) {
			origin := interaction.Coordinates{Latitude: args.Latitude, Longitude: args.Longitude}
			found, err := c.Nearby(ctx, origin, args.Keyword)
			if err != nil {
				c.log.Error().Err(err).Str("keyword", args.Keyword).Msg("nearby search failed")
				return []Place{}, nil
			}
			return found, nil
		},
	)
}

// Digest summarizes nearby places as numbered lines for a prompt.
func (c *Client) Digest(ctx context.Context, origin interaction.Coordinates, keyword string) (string, error) {
	found, err := c.Nearby(ctx, origin, keyword)
	if err != nil {
		return "", err
	}
	return FormatDigest(found), nil
}

// FormatDigest renders places as one line each.
func FormatDigest(places []Place) string {
	var sb strings.Builder
	for i, p := range places {
		fmt.Fprintf(&sb, "%d. %s (%.2f km", i+1, p.Name, p.DistanceKM)
		if p.Rating != nil {
			fmt.Fprintf(&sb, ", rating %.1f", *p.Rating)
		}
		if p.OpenNow != nil {
			if *p.OpenNow {
				sb.WriteString(", open now")
			} else {
				sb.WriteString(", closed")
			}
		}
		if p.Route != nil {
			fmt.Fprintf(&sb, ", %d m / %s", p.Route.DistanceMeters, p.Route.Duration)
		}
		sb.WriteString(")")
		if len(p.Types) > 0 {
			sb.WriteString(" [" + strings.Join(p.Types, ", ") + "]")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

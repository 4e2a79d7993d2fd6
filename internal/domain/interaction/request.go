package interaction

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidGPS is returned when a GPS block has malformed coordinates.
var ErrInvalidGPS = errors.New("invalid gps coordinates")

// Source identifies the boundary a request arrived through.
type Source string

const (
	SourceHTTP Source = "http"
	SourceChat Source = "chat"
)

// Coordinates is a WGS84 fix.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Location is a GPS fix plus optional address fields.
type Location struct {
	Coordinates
	Street string `json:"street,omitempty"`
	City   string `json:"city,omitempty"`
}

// Request is one incoming interaction.
type Request struct {
	ID        string
	Source    Source
	Location  *Location
	ImagePath string
	AudioPath string
	Text      string
	// ChannelID overrides the default delivery channel when set.
	ChannelID string
	// ReplyInline is set when the boundary delivers the reply itself.
	ReplyInline bool
}

// Presence reports which inputs the request carries.
func (r *Request) Presence() Presence {
	return Presence{
		GPS:   r.Location != nil,
		Image: r.ImagePath != "",
		Audio: r.AudioPath != "",
		Text:  strings.TrimSpace(r.Text) != "",
	}
}

// ParseGPSBlock parses newline separated key=value lines carrying latitude,
// longitude, street and city. A block without both coordinates yields a nil
// location; malformed or out of range coordinates yield ErrInvalidGPS.
func ParseGPSBlock(block string) (*Location, error) {
	fields := make(map[string]string)
	for _, line := range strings.Split(block, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}

	latRaw, hasLat := fields["latitude"]
	lonRaw, hasLon := fields["longitude"]
	if !hasLat || !hasLon || latRaw == "" || lonRaw == "" {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: latitude %q", ErrInvalidGPS, latRaw)
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: longitude %q", ErrInvalidGPS, lonRaw)
	}
	if math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return nil, fmt.Errorf("%w: (%v, %v) out of range", ErrInvalidGPS, lat, lon)
	}

	return &Location{
		Coordinates: Coordinates{Latitude: lat, Longitude: lon},
		Street:      fields["street"],
		City:        fields["city"],
	}, nil
}

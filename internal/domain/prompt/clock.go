package prompt

import (
	"time"
	_ "time/tzdata"

	"github.com/ringsaturn/tzf"
	"github.com/rs/zerolog"

	"travel-companion/internal/domain/interaction"
)

// TimeLayout is the local time format used in prompts.
const TimeLayout = "2006-01-02 15:04:05"

// ZoneFinder resolves an IANA zone name from a position.
type ZoneFinder interface {
	GetTimezoneName(lng float64, lat float64) string
}

// Clock formats the local time at a GPS fix.
type Clock struct {
	finder ZoneFinder
	now    func() time.Time
}

// NewClock creates a clock backed by finder. A nil finder always uses UTC.
func NewClock(finder ZoneFinder) *Clock {
	return &Clock{finder: finder, now: time.Now}
}

// NewDefaultClock loads the bundled timezone polygons. When they cannot be
// loaded the clock falls back to UTC for every position.
func NewDefaultClock(log zerolog.Logger) *Clock {
	finder, err := tzf.NewDefaultFinder()
	if err != nil {
		log.Warn().Err(err).Msg("timezone finder unavailable, using UTC")
		return NewClock(nil)
	}
	return NewClock(finder)
}

// WithNow replaces the time source.
func (c *Clock) WithNow(now func() time.Time) *Clock {
	c.now = now
	return c
}

// Location returns the zone at coords, or UTC when it cannot be resolved.
func (c *Clock) Location(coords interaction.Coordinates) *time.Location {
	if c.finder == nil {
		return time.UTC
	}
	name := c.finder.GetTimezoneName(coords.Longitude, coords.Latitude)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LocalTime formats the current time at coords.
func (c *Clock) LocalTime(coords interaction.Coordinates) string {
	return c.now().In(c.Location(coords)).Format(TimeLayout)
}

// UTC formats the current UTC time.
func (c *Clock) UTC() string {
	return c.now().UTC().Format(TimeLayout)
}

package interaction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Table(t *testing.T) {
	tests := []struct {
		name string
		p    Presence
		want Mode
	}{
		{"gps only", Presence{GPS: true}, ModeGPSOnly},
		{"image gps", Presence{GPS: true, Image: true}, ModeImageGPS},
		{"image text gps", Presence{GPS: true, Image: true, Text: true}, ModeImageTextGPS},
		{"image audio gps", Presence{GPS: true, Image: true, Audio: true}, ModeImageAudioGPS},
		{"image audio text gps", Presence{GPS: true, Image: true, Audio: true, Text: true}, ModeFallback},
		{"text gps", Presence{GPS: true, Text: true}, ModeTextGPS},
		{"audio gps", Presence{GPS: true, Audio: true}, ModeAudioGPS},
		{"audio text gps", Presence{GPS: true, Audio: true, Text: true}, ModeFallback},
		{"nothing", Presence{}, ModeFallback},
		{"text only", Presence{Text: true}, ModeFallback},
		{"image only", Presence{Image: true}, ModeFallback},
		{"image audio text without gps", Presence{Image: true, Audio: true, Text: true}, ModeFallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.p))
		})
	}
}

func TestClassify_Total(t *testing.T) {
	valid := map[Mode]bool{}
	for _, m := range AllModes() {
		valid[m] = true
	}

	for bits := 0; bits < 16; bits++ {
		p := Presence{GPS: bits&8 != 0, Image: bits&4 != 0, Audio: bits&2 != 0, Text: bits&1 != 0}
		mode := Classify(p)
		assert.True(t, valid[mode], "bits %04b", bits)

		if !p.GPS || (p.Audio && p.Text) {
			assert.Equal(t, ModeFallback, mode, "bits %04b", bits)
		}
	}
}

func TestProfileFor(t *testing.T) {
	gps := ProfileFor(ModeGPSOnly)
	assert.Equal(t, TemplateRestaurant, gps.Template)
	assert.Equal(t, []string{ToolNearbyPlaces}, gps.Tools)
	assert.True(t, gps.ProactivePlaces)

	img := ProfileFor(ModeImageGPS)
	assert.True(t, img.Voiced)
	assert.Empty(t, img.Tools)

	audio := ProfileFor(ModeAudioGPS)
	assert.True(t, audio.Transcribe)
	assert.ElementsMatch(t, []string{ToolNearbyPlaces, ToolWebSearch}, audio.Tools)

	unknown := ProfileFor(Mode("bogus"))
	assert.Equal(t, ModeFallback, unknown.Mode)

	gps.Tools[0] = "mutated"
	assert.Equal(t, ToolNearbyPlaces, ProfileFor(ModeGPSOnly).Tools[0])
}

func TestParseGPSBlock(t *testing.T) {
	loc, err := ParseGPSBlock("latitude=37.5665\nlongitude=126.9780\nstreet=세종대로\ncity=서울")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.InDelta(t, 37.5665, loc.Latitude, 1e-9)
	assert.InDelta(t, 126.978, loc.Longitude, 1e-9)
	assert.Equal(t, "세종대로", loc.Street)
	assert.Equal(t, "서울", loc.City)

	loc, err = ParseGPSBlock("street=somewhere")
	require.NoError(t, err)
	assert.Nil(t, loc)

	_, err = ParseGPSBlock("latitude=abc\nlongitude=1")
	assert.ErrorIs(t, err, ErrInvalidGPS)

	_, err = ParseGPSBlock("latitude=91\nlongitude=1")
	assert.ErrorIs(t, err, ErrInvalidGPS)
}

func TestRequest_Presence(t *testing.T) {
	r := &Request{Text: "   ", ImagePath: "a.jpg"}
	assert.Equal(t, Presence{Image: true}, r.Presence())
}

func TestLocationTracker_Expires(t *testing.T) {
	now := time.Unix(1000, 0)
	tr := NewLocationTracker(time.Minute)
	tr.now = func() time.Time { return now }

	assert.Nil(t, tr.Current())
	tr.Update(&Location{Coordinates: Coordinates{Latitude: 1, Longitude: 2}})
	require.NotNil(t, tr.Current())

	now = now.Add(2 * time.Minute)
	assert.Nil(t, tr.Current())
}

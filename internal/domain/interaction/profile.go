package interaction

// Template identifies a system prompt template.
type Template string

const (
	TemplateRestaurant    Template = "restaurant"
	TemplateImageAnalysis Template = "image_analysis"
	TemplateMultimodal    Template = "multimodal"
	TemplateLocation      Template = "location"
	TemplateGeneral       Template = "general"
)

// Tool names exposed to the generation model.
const (
	ToolNearbyPlaces = "search_nearby_places"
	ToolWebSearch    = "get_search_results"
)

// Profile describes how a mode is handled end to end.
type Profile struct {
	Mode     Mode
	Template Template
	Tools    []string

	// Transcribe means the user text comes from the voice clip.
	Transcribe bool
	// AcceptsText means the prompt language follows the user's text.
	AcceptsText bool
	// ProactivePlaces fetches nearby places before generation when enabled.
	ProactivePlaces bool
	// Voiced sends a synthesized reply as a separate, media-only delivery.
	Voiced bool
	// AttachImage sends the uploaded image together with the reply text.
	AttachImage bool
}

var profiles = map[Mode]Profile{
	ModeGPSOnly: {
		Mode:            ModeGPSOnly,
		Template:        TemplateRestaurant,
		Tools:           []string{ToolNearbyPlaces},
		ProactivePlaces: true,
	},
	ModeImageGPS: {
		Mode:        ModeImageGPS,
		Template:    TemplateImageAnalysis,
		Voiced:      true,
		AttachImage: true,
	},
	ModeImageTextGPS: {
		Mode:        ModeImageTextGPS,
		Template:    TemplateMultimodal,
		Tools:       []string{ToolWebSearch},
		AcceptsText: true,
		AttachImage: true,
	},
	ModeImageAudioGPS: {
		Mode:        ModeImageAudioGPS,
		Template:    TemplateMultimodal,
		Tools:       []string{ToolWebSearch},
		Transcribe:  true,
		AcceptsText: true,
		AttachImage: true,
	},
	ModeTextGPS: {
		Mode:        ModeTextGPS,
		Template:    TemplateLocation,
		Tools:       []string{ToolNearbyPlaces, ToolWebSearch},
		AcceptsText: true,
	},
	ModeAudioGPS: {
		Mode:        ModeAudioGPS,
		Template:    TemplateLocation,
		Tools:       []string{ToolNearbyPlaces, ToolWebSearch},
		Transcribe:  true,
		AcceptsText: true,
	},
	ModeFallback: {
		Mode:        ModeFallback,
		Template:    TemplateGeneral,
		Tools:       []string{ToolWebSearch},
		AcceptsText: true,
		AttachImage: true,
	},
}

// ProfileFor returns the handling profile of a mode. Unknown modes get the
// fallback profile.
func ProfileFor(mode Mode) Profile {
	p, ok := profiles[mode]
	if !ok {
		p = profiles[ModeFallback]
	}
	p.Tools = append([]string(nil), p.Tools...)
	return p
}

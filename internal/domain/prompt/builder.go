// Package prompt renders the system prompts and location messages sent to
// the generation model.
package prompt

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"travel-companion/internal/domain/interaction"
)

//go:embed templates.yaml
var templatesYAML []byte

const (
	sectionPrefix       = "section/"
	locationMessageName = "location_message"
)

type templateFile struct {
	LocationMessage string            `yaml:"location_message"`
	Sections        map[string]string `yaml:"sections"`
	Templates       map[string]string `yaml:"templates"`
}

// Params are the values interpolated into a template.
type Params struct {
	Latitude    float64
	Longitude   float64
	Street      string
	City        string
	LocalTime   string
	Language    string
	Preference  string
	Places      string
	HasLocation bool
}

// Input is what the builder needs to render the prompt for one request.
type Input struct {
	Profile  interaction.Profile
	Location *interaction.Location
	// UserText drives the output language for modes that accept text.
	UserText string
	// Places is a pre-fetched nearby places digest, if any.
	Places string
}

// Builder renders system prompts per template id.
type Builder struct {
	set        *template.Template
	clock      *Clock
	detector   LanguageDetector
	preference string
}

// NewBuilder parses the embedded templates.
func NewBuilder(clock *Clock, detector LanguageDetector, preference string) (*Builder, error) {
	set, err := parseTemplates(templatesYAML)
	if err != nil {
		return nil, err
	}
	for _, id := range []interaction.Template{
		interaction.TemplateRestaurant,
		interaction.TemplateImageAnalysis,
		interaction.TemplateMultimodal,
		interaction.TemplateLocation,
		interaction.TemplateGeneral,
	} {
		if set.Lookup(string(id)) == nil {
			return nil, fmt.Errorf("prompt template %q is not defined", id)
		}
	}
	if clock == nil {
		clock = NewClock(nil)
	}
	return &Builder{set: set, clock: clock, detector: detector, preference: preference}, nil
}

func parseTemplates(raw []byte) (*template.Template, error) {
	var file templateFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode prompt templates: %w", err)
	}

	root := template.New("prompts").Option("missingkey=error")
	if _, err := root.New(locationMessageName).Parse(file.LocationMessage); err != nil {
		return nil, fmt.Errorf("parse location message: %w", err)
	}
	for name, body := range file.Sections {
		if _, err := root.New(sectionPrefix + name).Parse(body); err != nil {
			return nil, fmt.Errorf("parse section %s: %w", name, err)
		}
	}
	for name, body := range file.Templates {
		if _, err := root.New(name).Parse(body); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
	}
	return root, nil
}

// Params computes the template parameters for an input.
func (b *Builder) Params(in Input) Params {
	p := Params{
		Language:   DefaultLanguage,
		Preference: b.preference,
		Places:     in.Places,
	}
	if in.Profile.AcceptsText && strings.TrimSpace(in.UserText) != "" && b.detector != nil {
		p.Language = LanguageName(b.detector.Detect(in.UserText))
	}
	if in.Location != nil {
		p.HasLocation = true
		p.Latitude = in.Location.Latitude
		p.Longitude = in.Location.Longitude
		p.Street = in.Location.Street
		p.City = in.Location.City
		p.LocalTime = b.clock.LocalTime(in.Location.Coordinates)
	} else {
		p.LocalTime = b.clock.UTC()
	}
	return p
}

// System renders the system prompt for the input's profile.
func (b *Builder) System(in Input) (string, error) {
	return b.render(string(in.Profile.Template), b.Params(in))
}

// LocationMessage renders the user message sent by modes without free text.
func (b *Builder) LocationMessage(loc interaction.Location) string {
	params := Params{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Street:    loc.Street,
		City:      loc.City,
		LocalTime: b.clock.LocalTime(loc.Coordinates),
	}
	out, err := b.render(locationMessageName, params)
	if err != nil {
		// The message template is static and validated at startup.
		return fmt.Sprintf("위도 %v, 경도 %v", loc.Latitude, loc.Longitude)
	}
	return out
}

func (b *Builder) render(name string, params Params) (string, error) {
	var sb strings.Builder
	if err := b.set.ExecuteTemplate(&sb, name, params); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return strings.TrimSpace(sb.String()), nil
}

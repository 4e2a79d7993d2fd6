// Package media defines the preprocessing ports used before generation.
package media

import (
	"context"
	"errors"
)

// ErrUnusableAudio means an audio clip could not be converted to a
// transcribable format. Callers treat the request as having no audio.
var ErrUnusableAudio = errors.New("unusable audio")

// Tier selects the transcription model size.
type Tier string

const (
	TierBase   Tier = "base"
	TierMedium Tier = "medium"
	TierLarge  Tier = "large"
)

// Gender selects a synthesized voice.
type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
)

// ImagePreparer shrinks an image until it fits under maxBytes. It never fails
// because of size; it returns the best effort it reached.
type ImagePreparer interface {
	PrepareImage(ctx context.Context, path string, maxBytes int64) (string, error)
}

// AudioPreparer converts audio to a format the transcriber accepts.
type AudioPreparer interface {
	PrepareAudio(ctx context.Context, path string) (string, error)
}

// Transcriber converts speech to text. ok is false when no text could be
// produced; that is not an error.
type Transcriber interface {
	Transcribe(ctx context.Context, path string, tier Tier) (text string, ok bool)
}

// Synthesizer converts text to a speech file. ok is false when synthesis
// failed.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, gender Gender, speed float64) (path string, ok bool)
}

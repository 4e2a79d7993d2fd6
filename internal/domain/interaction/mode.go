package interaction

// Mode is the interaction category derived from which inputs are present.
type Mode string

const (
	ModeGPSOnly       Mode = "GPS_ONLY"
	ModeImageGPS      Mode = "IMAGE_GPS"
	ModeImageTextGPS  Mode = "IMAGE_TEXT_GPS"
	ModeImageAudioGPS Mode = "IMAGE_AUDIO_GPS"
	ModeTextGPS       Mode = "TEXT_GPS"
	ModeAudioGPS      Mode = "AUDIO_GPS"
	ModeFallback      Mode = "FALLBACK"
)

// Presence records which inputs a request carries.
type Presence struct {
	GPS   bool
	Image bool
	Audio bool
	Text  bool
}

// key packs a Presence into a 4-bit table index.
func (p Presence) key() uint8 {
	var k uint8
	if p.GPS {
		k |= 1 << 3
	}
	if p.Image {
		k |= 1 << 2
	}
	if p.Audio {
		k |= 1 << 1
	}
	if p.Text {
		k |= 1
	}
	return k
}

// modeTable maps GPS|image|audio|text bit patterns to modes. Combinations that
// are not listed, including audio together with typed text and everything
// without GPS, resolve to ModeFallback.
var modeTable = map[uint8]Mode{
	0b1000: ModeGPSOnly,
	0b1100: ModeImageGPS,
	0b1101: ModeImageTextGPS,
	0b1110: ModeImageAudioGPS,
	0b1001: ModeTextGPS,
	0b1010: ModeAudioGPS,
}

// Classify maps the presence of inputs to a Mode. It is total over all
// sixteen combinations.
func Classify(p Presence) Mode {
	if mode, ok := modeTable[p.key()]; ok {
		return mode
	}
	return ModeFallback
}

// AllModes lists every mode in a stable order.
func AllModes() []Mode {
	return []Mode{
		ModeGPSOnly,
		ModeImageGPS,
		ModeImageTextGPS,
		ModeImageAudioGPS,
		ModeTextGPS,
		ModeAudioGPS,
		ModeFallback,
	}
}

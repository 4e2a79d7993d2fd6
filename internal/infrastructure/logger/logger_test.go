package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.raw), tt.raw)
	}
}

func TestWriter_JSONIsPassthrough(t *testing.T) {
	var buf bytes.Buffer
	assert.Same(t, &buf, writer("json", &buf))

	_, ok := writer("console", &buf).(zerolog.ConsoleWriter)
	assert.True(t, ok)
}

// Package delivery sends replies and media to the notification sink.
package delivery

import (
	"fmt"
	"os"
	"strings"

	"travel-companion/internal/domain/interaction"
)

const (
	// MaxMessageRunes is the sink's hard message size limit.
	MaxMessageRunes = 2000
	// ChunkRunes is the size of each chunk when a body exceeds the limit.
	ChunkRunes = 1900
)

// Delivery is one logical reply to the sink.
type Delivery struct {
	Text      string
	ImagePath string
	AudioPath string
	// MediaOnly sends the attachments with an empty body.
	MediaOnly bool
	// Location adds the location block to the body when set.
	Location *interaction.Location
	// ChannelID overrides the sink's default destination.
	ChannelID string
}

// Message is one send to the sink.
type Message struct {
	ChannelID string
	Content   string
	Files     []string
}

// Body composes the message text of a delivery.
func Body(d Delivery) string {
	if d.MediaOnly {
		return ""
	}
	if d.Location == nil {
		return d.Text
	}

	var parts []string
	if strings.TrimSpace(d.Text) != "" {
		parts = append(parts, fmt.Sprintf("💬 **메시지**:\n%s\n\n", d.Text))
	}
	parts = append(parts, fmt.Sprintf("📍 **위치 정보**\n위도: %v\n경도: %v", d.Location.Latitude, d.Location.Longitude))
	if d.Location.Street != "" || d.Location.City != "" {
		parts = append(parts, fmt.Sprintf("주소: %s, %s", d.Location.Street, d.Location.City))
	}
	return strings.Join(parts, "\n")
}

// Chunk splits text over the size limit into labelled chunks. Text within
// the limit is returned as a single unlabelled chunk.
func Chunk(text string) []string {
	runes := []rune(text)
	if len(runes) <= MaxMessageRunes {
		return []string{text}
	}

	total := (len(runes) + ChunkRunes - 1) / ChunkRunes
	chunks := make([]string, 0, total)
	for i := 0; i < total; i++ {
		start := i * ChunkRunes
		end := min(start+ChunkRunes, len(runes))
		chunks = append(chunks, fmt.Sprintf("part %d/%d:\n%s", i+1, total, string(runes[start:end])))
	}
	return chunks
}

// Messages expands a delivery into the sends it needs. Only the first send
// carries files; files that do not exist are skipped.
func Messages(d Delivery) []Message {
	files := existingFiles(d.ImagePath, d.AudioPath)
	body := Body(d)
	if strings.TrimSpace(body) == "" {
		if len(files) == 0 {
			return nil
		}
		return []Message{{ChannelID: d.ChannelID, Files: files}}
	}

	chunks := Chunk(body)
	msgs := make([]Message, 0, len(chunks))
	for i, c := range chunks {
		m := Message{ChannelID: d.ChannelID, Content: c}
		if i == 0 {
			m.Files = files
		}
		msgs = append(msgs, m)
	}
	return msgs
}

func existingFiles(paths ...string) []string {
	var out []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			out = append(out, p)
		}
	}
	return out
}

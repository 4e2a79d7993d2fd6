package responses

import (
	"travel-companion/internal/domain/conversation"
)

// StatusSuccess is the status of every accepted upload.
const StatusSuccess = "success"

// UploadResponse echoes the inputs of an upload with the generated reply.
// Absent files are reported as null.
type UploadResponse struct {
	Status        string  `json:"status"`
	Filename      *string `json:"filename"`
	AudioFilename *string `json:"audio_filename"`
	ResponseAudio *string `json:"response_audio"`
	Message       string  `json:"message"`
	LLMResponse   string  `json:"llm_response"`
	Latitude      string  `json:"latitude"`
	Longitude     string  `json:"longitude"`
	Street        string  `json:"street"`
	City          string  `json:"city"`
	Mode          string  `json:"mode"`
}

// HistoryResponse is the shared conversation snapshot.
type HistoryResponse struct {
	MaxPairs int                 `json:"max_pairs"`
	Turns    []conversation.Turn `json:"turns"`
}

// StatusResponse is a bare acknowledgement.
type StatusResponse struct {
	Status string `json:"status"`
}

// Nullable maps an empty path to JSON null.
func Nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

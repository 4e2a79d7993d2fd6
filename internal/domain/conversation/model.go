package conversation

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// NoResponse is reported when a history holds no assistant turn.
const NoResponse = "no response found"

// ErrorReplyPrefix prefixes the synthetic assistant turn committed when
// generation fails.
const ErrorReplyPrefix = "오류: "

// Turn is one message in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// LastAssistant scans turns from the end and returns the newest assistant
// content, or NoResponse.
func LastAssistant(turns []Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleAssistant {
			return turns[i].Content
		}
	}
	return NoResponse
}

// ErrorReply formats the assistant turn recorded for a failed generation.
func ErrorReply(err error) string {
	if err == nil {
		return ErrorReplyPrefix + "unknown error"
	}
	return ErrorReplyPrefix + err.Error()
}

package generation

// Role of a content element in the sequence sent to the model.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Part is one piece of a multi-part content element. Exactly one of Text or
// ImagePath is set.
type Part struct {
	Text      string
	ImagePath string
	MIMEType  string
}

// Content is one element of the content sequence.
type Content struct {
	Role  Role
	Parts []Part
}

// TextContent builds a single-part text element.
func TextContent(role Role, text string) Content {
	return Content{Role: role, Parts: []Part{{Text: text}}}
}

// Text concatenates the text parts of the element.
func (c Content) Text() string {
	var out string
	for _, p := range c.Parts {
		if p.Text == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += p.Text
	}
	return out
}

// HasImage reports whether any part references an image.
func (c Content) HasImage() bool {
	for _, p := range c.Parts {
		if p.ImagePath != "" {
			return true
		}
	}
	return false
}

// Request is one generation call. Contents[0] is always the system prompt.
type Request struct {
	Contents []Content
	Tools    []Tool
}

// System returns the system prompt text, or "" when absent.
func (r Request) System() string {
	if len(r.Contents) == 0 || r.Contents[0].Role != RoleSystem {
		return ""
	}
	return r.Contents[0].Text()
}

// Conversation returns the elements after the system prompt.
func (r Request) Conversation() []Content {
	if len(r.Contents) > 0 && r.Contents[0].Role == RoleSystem {
		return r.Contents[1:]
	}
	return r.Contents
}

// ToolNames lists the names of the exposed tools.
func (r Request) ToolNames() []string {
	names := make([]string, 0, len(r.Tools))
	for _, t := range r.Tools {
		names = append(names, t.Name())
	}
	return names
}

// Result is the outcome of a generation call.
type Result struct {
	Text      string
	ToolCalls int
}

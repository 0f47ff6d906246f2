package llm

import "strings"

// Prompt markers of the OpenAssistant model family. The template is fixed:
// user turns are wrapped as prompter blocks, every other turn as assistant
// blocks, and a trailing open assistant marker invites the next turn.
const (
	prompterMarker  = "<|prompter|>"
	assistantMarker = "<|assistant|>"
	endMarker       = "<|endoftext|>"
)

// BuildPrompt renders a conversation into the OpenAssistant prompt template.
// It is total over any finite message sequence; an empty conversation yields
// just the trailing assistant marker.
func BuildPrompt(messages []Message) string {
	var sb strings.Builder
	for _, m := range messages {
		if m.Role == "user" {
			sb.WriteString(prompterMarker)
		} else {
			sb.WriteString(assistantMarker)
		}
		sb.WriteString(m.Content)
		sb.WriteString(endMarker)
	}
	sb.WriteString(assistantMarker)
	return sb.String()
}

package llm

import "strings"

// StripCodeFences removes a leading ```json / ``` fence line and a trailing
// ``` fence from model output, leaving the payload untouched otherwise.
func StripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "```") {
		if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
			trimmed = trimmed[idx+1:]
		} else {
			trimmed = strings.TrimPrefix(trimmed, "```json")
			trimmed = strings.TrimPrefix(trimmed, "```")
		}
	}
	trimmed = strings.TrimSpace(trimmed)
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSuffix(trimmed, "```")
	}
	return strings.TrimSpace(trimmed)
}

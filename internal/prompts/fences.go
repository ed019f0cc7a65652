package prompts

import "strings"

// StripFences removes a surrounding markdown code fence, including an
// optional language tag on the opening line. Text without a fence is
// returned trimmed.
func StripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	body := strings.TrimPrefix(trimmed, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = ""
	}
	body = strings.TrimRight(body, " \t\r\n")
	body = strings.TrimSuffix(body, "```")

	return strings.TrimSpace(body)
}

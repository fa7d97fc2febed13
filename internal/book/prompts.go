package book

import "strings"

// JoinPromptParts joins non-empty prompt fragments with ", ", trimming
// whitespace and stray commas from each part.
func JoinPromptParts(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.Trim(strings.TrimSpace(part), ",")
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		cleaned = append(cleaned, value)
	}
	return strings.Join(cleaned, ", ")
}

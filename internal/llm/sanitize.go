package llm

import "strings"

// ExtractJSONPayload strips markdown code fences some models wrap around
// their JSON answer and trims surrounding noise down to the outermost object.
func ExtractJSONPayload(content string) []byte {
	s := strings.TrimSpace(content)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	// Keep only the outermost object if the model added prose around it.
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return []byte(s)
}

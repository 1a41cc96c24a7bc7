package gateway

import (
	"fmt"
	"strings"
)

// ExtractJSONObject pulls the outermost JSON object out of a model reply.
// Local models tend to surround JSON with prose or code fences even when
// asked not to; everything outside the first '{' and last '}' is noise.
func ExtractJSONObject(content string) ([]byte, error) {
	content = strings.TrimSpace(content)

	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object in model reply (%d chars)", len(content))
	}
	return []byte(content[start : end+1]), nil
}

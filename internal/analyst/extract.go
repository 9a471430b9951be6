// extract.go recovers the JSON object from analyst model output.
//
// The tolerance is a contract, not an accident: the model occasionally wraps
// its JSON in prose or code fences, and the parser must recover. Three
// strategies run in order — raw parse, fence-stripped parse, then the
// substring from the first '{' to the last '}'. If all three fail the unit
// of work is skipped.
package analyst

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON reports that no well-formed object could be recovered.
var ErrNoJSON = errors.New("no parseable JSON object in analyst response")

// ExtractJSON returns the first well-formed JSON object in text.
func ExtractJSON(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)

	// Strategy 1: the whole response is the object.
	if obj, ok := tryParse(trimmed); ok {
		return obj, nil
	}

	// Strategy 2: strip code-fence wrappers.
	if stripped, ok := stripFences(trimmed); ok {
		if obj, ok := tryParse(stripped); ok {
			return obj, nil
		}
	}

	// Strategy 3: first '{' to last '}'.
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if obj, ok := tryParse(trimmed[start : end+1]); ok {
			return obj, nil
		}
	}

	return nil, ErrNoJSON
}

// DecodeObject extracts and unmarshals the response object into out.
func DecodeObject(text string, out any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Join(ErrNoJSON, err)
	}
	return nil
}

func tryParse(s string) (json.RawMessage, bool) {
	if !strings.HasPrefix(strings.TrimSpace(s), "{") {
		return nil, false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &probe); err != nil {
		return nil, false
	}
	return json.RawMessage(strings.TrimSpace(s)), true
}

// stripFences removes a leading ```/```json line and a trailing ``` line.
func stripFences(s string) (string, bool) {
	if !strings.Contains(s, "```") {
		return "", false
	}
	body := s
	if idx := strings.Index(body, "```"); idx >= 0 {
		body = body[idx+3:]
		// Drop a language tag like "json" up to the first newline.
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			first := strings.TrimSpace(body[:nl])
			if first != "" && !strings.HasPrefix(first, "{") {
				body = body[nl+1:]
			}
		}
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	body = strings.TrimSpace(body)
	return body, body != ""
}

package models

import (
	"encoding/base64"
	"fmt"
)

// StringSlice converts a decoded JSON array (or a []string) to []string.
// Non-string elements are skipped.
func StringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// SchemaProperties returns the "properties" object of a JSON schema.
func SchemaProperties(schema map[string]any) map[string]any {
	props, _ := schema["properties"].(map[string]any)
	return props
}

// DecodeImage returns the raw bytes of a base64 image payload.
func DecodeImage(data string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return raw, nil
}

package gemini

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
)

func TestSchemaFromMap(t *testing.T) {
	s := schemaFromMap(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{"type": "string", "enum": []any{"read", "write"}},
			"paths":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []any{"action"},
	})
	if s.Type != genai.TypeObject {
		t.Fatalf("expected object, got %v", s.Type)
	}
	if len(s.Required) != 1 || s.Required[0] != "action" {
		t.Errorf("unexpected required: %v", s.Required)
	}
	if got := s.Properties["action"].Enum; len(got) != 2 {
		t.Errorf("unexpected enum: %v", got)
	}
	if s.Properties["paths"].Items == nil || s.Properties["paths"].Items.Type != genai.TypeString {
		t.Errorf("array items not converted: %+v", s.Properties["paths"])
	}
	if schemaFromMap(nil) != nil {
		t.Error("expected nil schema for empty map")
	}
}

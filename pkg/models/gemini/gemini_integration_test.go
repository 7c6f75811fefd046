package gemini_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/models"
	"github.com/nstogner/agentcore/pkg/models/gemini"
)

func TestIntegration_Gemini(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("Skipping Gemini integration test: GEMINI_API_KEY not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := gemini.New(ctx, apiKey, "gemini-2.0-flash", nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	names, err := client.List(ctx)
	if err != nil {
		t.Fatalf("Failed to list models: %v", err)
	}
	if len(names) == 0 {
		t.Fatal("No models found")
	}

	t.Run("Text", func(t *testing.T) {
		resp, err := client.Generate(ctx, models.Request{
			System: "Answer in one word.",
			Turns:  []content.Turn{content.UserTurn(content.TextPrompt{Text: "What color is the sky?"})},
		})
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if resp.Text() == "" {
			t.Fatal("Expected text in response")
		}
		t.Logf("Response: %s", resp.Text())
	})

	t.Run("ToolCall", func(t *testing.T) {
		resp, err := client.Generate(ctx, models.Request{
			Turns: []content.Turn{content.UserTurn(content.TextPrompt{Text: "List the files in /tmp using the bash tool."})},
			Tools: []models.ToolSpec{{
				Name:        "bash",
				Description: "Run a shell command.",
				InputSchema: map[string]any{
					"type":       "object",
					"properties": map[string]any{"command": map[string]any{"type": "string"}},
					"required":   []string{"command"},
				},
			}},
		})
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		calls := resp.ToolCalls()
		if len(calls) == 0 {
			t.Fatalf("Expected a tool call, got text: %s", resp.Text())
		}
		if calls[0].Name != "bash" || calls[0].ID == "" {
			t.Errorf("Unexpected call: %+v", calls[0])
		}
	})
}

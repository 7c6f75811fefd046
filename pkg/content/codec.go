package content

import (
	"encoding/json"
	"fmt"
)

// BlockType is the wire tag of a Block.
type BlockType string

const (
	TypeTextPrompt BlockType = "text_prompt"
	TypeTextResult BlockType = "text_result"
	TypeImage      BlockType = "image"
	TypeToolCall   BlockType = "tool_call"
	TypeToolResult BlockType = "tool_result"
)

// WireBlock is the serialized form of a Block: a type tag plus the fields of
// the matching variant. It is shared by the JSON and CBOR encodings.
type WireBlock struct {
	Type      BlockType       `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	Signature []byte          `json:"signature,omitempty"`
	MediaType string          `json:"media_type,omitempty"`
	Data      string          `json:"data,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Output    string          `json:"output,omitempty"`
}

// WireTurn is the serialized form of a Turn.
type WireTurn struct {
	Role   Role        `json:"role"`
	Blocks []WireBlock `json:"blocks"`
}

// ToWire converts a block to its serialized form.
func ToWire(b Block) (WireBlock, error) {
	switch v := b.(type) {
	case TextPrompt:
		return WireBlock{Type: TypeTextPrompt, Text: v.Text}, nil
	case TextResult:
		return WireBlock{Type: TypeTextResult, Text: v.Text, Thinking: v.Thinking, Signature: v.Signature}, nil
	case ImageBlock:
		return WireBlock{Type: TypeImage, MediaType: v.MediaType, Data: v.Data}, nil
	case ToolCall:
		input, err := json.Marshal(v.Input)
		if err != nil {
			return WireBlock{}, fmt.Errorf("marshal tool input for %q: %w", v.ID, err)
		}
		return WireBlock{Type: TypeToolCall, ID: v.ID, Name: v.Name, Input: input, Signature: v.Signature}, nil
	case ToolFormattedResult:
		return WireBlock{Type: TypeToolResult, CallID: v.CallID, Name: v.Name, Output: v.Output}, nil
	default:
		return WireBlock{}, fmt.Errorf("unsupported block type %T", b)
	}
}

// FromWire converts a serialized block back into a Block.
func FromWire(w WireBlock) (Block, error) {
	switch w.Type {
	case TypeTextPrompt:
		return TextPrompt{Text: w.Text}, nil
	case TypeTextResult:
		return TextResult{Text: w.Text, Thinking: w.Thinking, Signature: w.Signature}, nil
	case TypeImage:
		return ImageBlock{MediaType: w.MediaType, Data: w.Data}, nil
	case TypeToolCall:
		var input map[string]any
		if len(w.Input) > 0 {
			if err := json.Unmarshal(w.Input, &input); err != nil {
				return nil, fmt.Errorf("unmarshal tool input for %q: %w", w.ID, err)
			}
		}
		return ToolCall{ID: w.ID, Name: w.Name, Input: input, Signature: w.Signature}, nil
	case TypeToolResult:
		return ToolFormattedResult{CallID: w.CallID, Name: w.Name, Output: w.Output}, nil
	default:
		return nil, fmt.Errorf("unknown block type %q", w.Type)
	}
}

// TurnToWire converts a turn to its serialized form.
func TurnToWire(t Turn) (WireTurn, error) {
	wt := WireTurn{Role: t.Role, Blocks: make([]WireBlock, 0, len(t.Blocks))}
	for _, b := range t.Blocks {
		w, err := ToWire(b)
		if err != nil {
			return WireTurn{}, err
		}
		wt.Blocks = append(wt.Blocks, w)
	}
	return wt, nil
}

// TurnFromWire converts a serialized turn back into a Turn.
func TurnFromWire(wt WireTurn) (Turn, error) {
	t := Turn{Role: wt.Role, Blocks: make([]Block, 0, len(wt.Blocks))}
	for _, w := range wt.Blocks {
		b, err := FromWire(w)
		if err != nil {
			return Turn{}, err
		}
		t.Blocks = append(t.Blocks, b)
	}
	return t, nil
}

// MarshalJSON implements json.Marshaler.
func (t Turn) MarshalJSON() ([]byte, error) {
	wt, err := TurnToWire(t)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wt)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Turn) UnmarshalJSON(data []byte) error {
	var wt WireTurn
	if err := json.Unmarshal(data, &wt); err != nil {
		return err
	}
	decoded, err := TurnFromWire(wt)
	if err != nil {
		return err
	}
	*t = decoded
	return nil
}

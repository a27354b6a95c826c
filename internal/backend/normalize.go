package backend

import (
	"encoding/json"
	"fmt"
)

// NormalizeReply converts an arbitrary backend reply value into display text.
//
// The backend is fronted by more than one model wrapper, so the reply field
// drifts between shapes. The checks run in a fixed order: plain string, an
// object's "output_text" field, an object's "text" field, any other object
// serialized whole, and finally the string form of any remaining value. Every
// branch yields a string; shape drift must never fail a turn.
func NormalizeReply(v any) string {
	switch reply := v.(type) {
	case string:
		return reply
	case map[string]any:
		if s, ok := reply["output_text"].(string); ok && s != "" {
			return s
		}
		if s, ok := reply["text"].(string); ok && s != "" {
			return s
		}
		return serialize(reply)
	case []any:
		return serialize(reply)
	default:
		return fmt.Sprint(reply)
	}
}

func serialize(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

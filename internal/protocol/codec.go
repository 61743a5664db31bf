package protocol

import (
	"encoding/json"
	"fmt"
)

// Encode serializes a frame to a single JSON document (no trailing newline;
// the channel layer owns line framing).
func Encode(f *Frame) ([]byte, error) {
	if err := validate(f); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// Decode parses and validates one frame. Anything that does not match a
// known tagged variant is rejected here, at the channel boundary, rather
// than trusted downstream.
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	if err := validate(&f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return &f, nil
}

func validate(f *Frame) error {
	if f.ID == "" {
		return fmt.Errorf("missing correlation id")
	}

	switch f.Kind {
	case KindCall:
		if f.Proxy == "" {
			return fmt.Errorf("call frame missing proxy identifier")
		}
		if f.Method == "" {
			return fmt.Errorf("call frame missing method")
		}
		if f.Result != nil || f.Error != nil {
			return fmt.Errorf("call frame carries reply fields")
		}
	case KindReply:
		if f.Proxy != "" || f.Method != "" || f.Args != nil {
			return fmt.Errorf("reply frame carries call fields")
		}
		if f.Result != nil && f.Error != nil {
			return fmt.Errorf("reply frame carries both result and error")
		}
		if f.Error != nil && f.Error.Code == "" {
			return fmt.Errorf("reply error missing code")
		}
	default:
		return fmt.Errorf("unknown frame kind %q", f.Kind)
	}
	return nil
}

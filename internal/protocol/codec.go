package protocol

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

var ErrMissingType = errors.New("message has no type")

// api mirrors encoding/json: invalid UTF-8 in terminal output is replaced
// rather than emitted raw, so every frame stays valid JSON.
var api = sonic.ConfigStd

// Decode parses one client frame
func Decode(data []byte) (Inbound, error) {
	var msg Inbound
	if err := api.Unmarshal(data, &msg); err != nil {
		return Inbound{}, fmt.Errorf("decode message: %w", err)
	}
	if msg.Type == "" {
		return Inbound{}, ErrMissingType
	}
	return msg, nil
}

// Encode serialises one server frame
func Encode(v any) ([]byte, error) {
	data, err := api.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyMessage   = errors.New("empty message")
	ErrMissingMessage = errors.New("missing message name")
)

// Envelope is a decoded control message with its parameters left raw.
type Envelope struct {
	Message    string          `json:"message"`
	Parameters json.RawMessage `json:"parameters"`
}

// Encode serializes a control action as JSON text.
func Encode(a Action) ([]byte, error) {
	if a.Message == "" {
		return nil, ErrMissingMessage
	}
	if a.Parameters == nil {
		a.Parameters = Status{}
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", a.Message, err)
	}
	return data, nil
}

// Decode parses a control message without interpreting its parameters.
func Decode(msg []byte) (Envelope, error) {
	if len(msg) == 0 {
		return Envelope{}, ErrEmptyMessage
	}
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode control message: %w", err)
	}
	if env.Message == "" {
		return Envelope{}, ErrMissingMessage
	}
	return env, nil
}

// DecodeJSON decodes the JSON payload into the given struct.
func DecodeJSON(payload []byte, v any) error {
	return json.Unmarshal(payload, v)
}

// IsAck reports whether a video message is a pull request.
func IsAck(msg []byte) bool {
	return string(msg) == Ack
}

// EndpointURL appends the path discriminator to a session endpoint. The
// endpoint's existing query string is kept byte for byte.
func EndpointURL(endpoint, path string) string {
	sep := "&"
	switch {
	case !strings.Contains(endpoint, "?"):
		sep = "?"
	case strings.HasSuffix(endpoint, "?"), strings.HasSuffix(endpoint, "&"):
		sep = ""
	}
	return endpoint + sep + "path=" + path
}

package wire

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Encode builds a JSON-encoded Envelope from a topic and payload.
func Encode(topic string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	data, err := json.Marshal(Envelope{Type: topic, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", topic, err)
	}
	return data, nil
}

// Decode parses raw bytes into an Envelope. The payload stays raw; the
// topic handler decodes it with DecodePayload.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("envelope missing type")
	}
	return env, nil
}

// DecodePayload parses an envelope payload into the typed form.
func DecodePayload[T any](payload []byte) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("unmarshal payload: %w", err)
	}
	return v, nil
}

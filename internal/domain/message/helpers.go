package message

import (
	"encoding/json"

	"noprime/redirector/internal/domain"
)

func marshalDetection(d *domain.Detection) ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	return json.Marshal(d)
}

// DecodeDetection reads a reply payload; null yields nil.
func DecodeDetection(env *Envelope) (*domain.Detection, error) {
	if env.IsNull() {
		return nil, nil
	}
	return Decode[*domain.Detection](env)
}

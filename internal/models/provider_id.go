package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// ProviderID links an entry to a provider record. Older catalog documents
// carry these ids as JSON numbers, newer ones as strings; both decode.
type ProviderID string

func (p ProviderID) String() string {
	return string(p)
}

func (p ProviderID) IsZero() bool {
	return strings.TrimSpace(string(p)) == ""
}

func (p *ProviderID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if n, ok := raw.(json.Number); ok {
		raw = n.String()
	}
	s, err := cast.ToStringE(raw)
	if err != nil {
		return fmt.Errorf("provider id: %w", err)
	}
	*p = ProviderID(strings.TrimSpace(s))
	return nil
}

package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidState reports a session blob that is not a JSON object.
var ErrInvalidState = errors.New("invalid session state")

// State is the opaque session blob exchanged with the runtime. It is always
// a JSON object.
type State []byte

// Data is the typed view of the fields the host cares about. Unknown fields
// are preserved in State but not here.
type Data struct {
	Version         int             `json:"version,omitempty"`
	AppDomain       string          `json:"appDomain,omitempty"`
	AppPrivateKey   string          `json:"appPrivateKey,omitempty"`
	IdentityAddress string          `json:"identityAddress,omitempty"`
	HubURL          string          `json:"hubUrl,omitempty"`
	UserData        json.RawMessage `json:"userData,omitempty"`
	HubConfig       *HubConfig      `json:"hubConfig,omitempty"`
}

// HubConfig is the storage hub description cached by the runtime.
type HubConfig struct {
	ReadURLPrefix string `json:"readUrlPrefix"`
}

// Validate checks that s is a JSON object.
func (s State) Validate() error {
	trimmed := bytes.TrimSpace(s)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return fmt.Errorf("%w: expected a JSON object", ErrInvalidState)
	}
	return nil
}

// Decode returns the typed view of s.
func (s State) Decode() (Data, error) {
	var d Data
	if err := s.Validate(); err != nil {
		return d, err
	}
	if err := json.Unmarshal(s, &d); err != nil {
		return d, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return d, nil
}

// SignedIn reports whether d carries an app key.
func (d Data) SignedIn() bool {
	return d.AppPrivateKey != ""
}

func (s State) String() string { return string(s) }

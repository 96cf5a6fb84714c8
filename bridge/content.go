package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/caffeineduck/stackbridge/wire"
)

// Content is a file or message payload. It remembers whether it started as
// text or raw bytes so a round trip returns the same shape.
type Content struct {
	data   []byte
	binary bool
}

// Text wraps a string payload.
func Text(s string) Content {
	return Content{data: []byte(s)}
}

// Bytes wraps a binary payload. b is copied.
func Bytes(b []byte) Content {
	return Content{data: bytes.Clone(b), binary: true}
}

// ContentOf accepts a string, a []byte or a Content. Anything else is
// rejected with ErrInvalidArgument.
func ContentOf(v any) (Content, error) {
	switch c := v.(type) {
	case string:
		return Text(c), nil
	case []byte:
		return Bytes(c), nil
	case Content:
		return c, nil
	default:
		return Content{}, invalid("content must be a string or []byte, got %T", v)
	}
}

func (c Content) IsBinary() bool { return c.binary }

func (c Content) String() string { return string(c.data) }

// Bytes returns a copy of the payload.
func (c Content) Bytes() []byte { return bytes.Clone(c.data) }

func (c Content) Len() int { return len(c.data) }

// frame returns the payload as it crosses into the runtime. Text must be
// valid UTF-8; runtime strings cannot carry arbitrary bytes.
func (c Content) frame() (string, bool, error) {
	if c.binary {
		return wire.EncodeBytes(c.data), true, nil
	}
	if !utf8.Valid(c.data) {
		return "", false, invalid("text content is not valid UTF-8; use Bytes")
	}
	return string(c.data), false, nil
}

func unframe(s string, isBinary bool) (Content, error) {
	if !isBinary {
		return Text(s), nil
	}
	b, err := wire.DecodeBytes(s)
	if err != nil {
		return Content{}, err
	}
	return Content{data: b, binary: true}, nil
}

// Profile is a user profile document as returned by the lookup service.
type Profile map[string]any

func parseProfile(s string) (Profile, error) {
	var p Profile
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("%w: profile: %v", wire.ErrInvalid, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: profile is null", wire.ErrInvalid)
	}
	return p, nil
}

// Name returns the profile's display name, if any.
func (p Profile) Name() string {
	s, _ := p["name"].(string)
	return s
}

// Apps returns the app origin to storage URL prefix map.
func (p Profile) Apps() map[string]string {
	raw, _ := p["apps"].(map[string]any)
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

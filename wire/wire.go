// Package wire defines the versioned records exchanged across the
// host/runtime boundary.
//
// Every record is plain JSON with stable field names. Binary payloads travel
// as standard base64 with an explicit encoding or isBinary flag so the
// receiving side never has to guess.
package wire

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Version is stamped on records the host sends into the runtime.
const Version = 1

// Body encodings.
const (
	EncodingText   = "text"
	EncodingBase64 = "base64"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid record")

// validate is shared; validator caches struct metadata per instance.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate runs struct-tag validation on v and wraps failures in ErrInvalid.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// EncodeBytes frames b for a text-only channel.
func EncodeBytes(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBytes reverses EncodeBytes.
func DecodeBytes(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64: %v", ErrInvalid, err)
	}
	return b, nil
}

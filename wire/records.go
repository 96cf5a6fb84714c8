package wire

import (
	"encoding/json"
	"fmt"
)

// GetFileOptions configures a file read.
type GetFileOptions struct {
	Decrypt           bool   `json:"decrypt"`
	Username          string `json:"username,omitempty"`
	App               string `json:"app,omitempty" validate:"omitempty,url"`
	ZoneFileLookupURL string `json:"zoneFileLookupURL,omitempty" validate:"omitempty,url"`
}

// PutFileOptions configures a file write.
type PutFileOptions struct {
	Encrypt       bool   `json:"encrypt"`
	EncryptionKey string `json:"encryptionKey,omitempty" validate:"omitempty,hexadecimal,len=64"`
	ContentType   string `json:"contentType,omitempty"`
}

// CryptoOptions selects the key for encryptContent/decryptContent. Empty
// keys fall back to the session app key.
type CryptoOptions struct {
	PublicKey  string `json:"publicKey,omitempty" validate:"omitempty,hexadecimal,len=64"`
	PrivateKey string `json:"privateKey,omitempty" validate:"omitempty,hexadecimal,len=64"`
}

// SignInRequest carries the credentials for signIn.
type SignInRequest struct {
	Domain          string          `json:"domain" validate:"required,url"`
	AppPrivateKey   string          `json:"appPrivateKey" validate:"required,hexadecimal,len=64"`
	IdentityAddress string          `json:"identityAddress" validate:"required"`
	HubURL          string          `json:"hubUrl" validate:"required,url"`
	UserData        json.RawMessage `json:"userData,omitempty"`
}

// Validate checks tags and that UserData, when present, is a JSON object.
func (r SignInRequest) Validate() error {
	if err := Validate(r); err != nil {
		return err
	}
	if len(r.UserData) > 0 && !json.Valid(r.UserData) {
		return fmt.Errorf("%w: userData is not valid JSON", ErrInvalid)
	}
	return nil
}

// UserDataJSON returns UserData or an empty object.
func (r SignInRequest) UserDataJSON() string {
	if len(r.UserData) == 0 {
		return "{}"
	}
	return string(r.UserData)
}

// DecryptedContent is returned by the runtime's decryptContent.
type DecryptedContent struct {
	V        int    `json:"v"`
	Content  string `json:"content"`
	IsBinary bool   `json:"isBinary"`
}

// ParseDecrypted decodes and checks a DecryptedContent payload.
func ParseDecrypted(s string) (DecryptedContent, error) {
	var d DecryptedContent
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return d, fmt.Errorf("%w: decrypted content: %v", ErrInvalid, err)
	}
	if d.V != Version {
		return d, fmt.Errorf("%w: decrypted content version %d", ErrInvalid, d.V)
	}
	return d, nil
}

// MarshalOptions encodes an options record for a runtime entry point.
func MarshalOptions(v any) (string, error) {
	if err := Validate(v); err != nil {
		return "", err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode options: %w", err)
	}
	return string(b), nil
}

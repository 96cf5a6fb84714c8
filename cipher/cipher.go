// Package cipher implements the ECIES scheme behind encryptContent and
// decryptContent.
//
// A fresh ephemeral X25519 key agrees a secret with the recipient key. HKDF
// stretches it into an AES-256-CBC key and an HMAC-SHA256 key. The MAC covers
// iv, ephemeral public key and ciphertext and is checked before decryption.
package cipher

import (
	"bytes"
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const keySize = curve25519.ScalarSize

var (
	ErrInvalidKey    = errors.New("invalid key")
	ErrInvalidCipher = errors.New("invalid cipher object")
	// ErrAuth means the MAC did not verify: wrong key or tampered data.
	ErrAuth = errors.New("cipher authentication failed")
)

var kdfInfo = []byte("stackbridge ecies v1")

// CipherObject is the serialized form of an encrypted payload. All byte
// fields are lowercase hex.
type CipherObject struct {
	IV          string `json:"iv"`
	EphemeralPK string `json:"ephemeralPK"`
	CipherText  string `json:"cipherText"`
	MAC         string `json:"mac"`
	WasString   bool   `json:"wasString"`
}

// Parse decodes a CipherObject from JSON and checks every field is present.
func Parse(data []byte) (CipherObject, error) {
	var c CipherObject
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidCipher, err)
	}
	if c.IV == "" || c.EphemeralPK == "" || c.CipherText == "" || c.MAC == "" {
		return c, fmt.Errorf("%w: missing field", ErrInvalidCipher)
	}
	return c, nil
}

// JSON encodes c.
func (c CipherObject) JSON() string {
	b, _ := json.Marshal(c)
	return string(b)
}

// GenerateKey returns a new hex private key and its public key.
func GenerateKey() (priv, pub string, err error) {
	return generateKey(rand.Reader)
}

func generateKey(r io.Reader) (string, string, error) {
	k := make([]byte, keySize)
	if _, err := io.ReadFull(r, k); err != nil {
		return "", "", fmt.Errorf("read random: %w", err)
	}
	p, err := curve25519.X25519(k, curve25519.Basepoint)
	if err != nil {
		return "", "", err
	}
	return hex.EncodeToString(k), hex.EncodeToString(p), nil
}

// PublicKey derives the hex public key for a hex private key.
func PublicKey(privHex string) (string, error) {
	priv, err := decodeKey(privHex)
	if err != nil {
		return "", err
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return hex.EncodeToString(pub), nil
}

// Encrypt seals plaintext for the holder of pubHex. wasString records whether
// the caller handed in text so Decrypt can restore the same shape.
func Encrypt(pubHex string, plaintext []byte, wasString bool) (CipherObject, error) {
	pub, err := decodeKey(pubHex)
	if err != nil {
		return CipherObject{}, err
	}

	ephPrivHex, ephPubHex, err := GenerateKey()
	if err != nil {
		return CipherObject{}, err
	}
	ephPriv, _ := hex.DecodeString(ephPrivHex)
	ephPub, _ := hex.DecodeString(ephPubHex)

	shared, err := curve25519.X25519(ephPriv, pub)
	if err != nil {
		return CipherObject{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	encKey, macKey, err := deriveKeys(shared, ephPub)
	if err != nil {
		return CipherObject{}, err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return CipherObject{}, fmt.Errorf("read iv: %w", err)
	}
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return CipherObject{}, err
	}
	padded := pad(plaintext)
	ct := make([]byte, len(padded))
	gocipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

	return CipherObject{
		IV:          hex.EncodeToString(iv),
		EphemeralPK: ephPubHex,
		CipherText:  hex.EncodeToString(ct),
		MAC:         hex.EncodeToString(mac(macKey, iv, ephPub, ct)),
		WasString:   wasString,
	}, nil
}

// Decrypt opens c with privHex and returns the plaintext and the wasString
// flag it was sealed with.
func Decrypt(privHex string, c CipherObject) ([]byte, bool, error) {
	priv, err := decodeKey(privHex)
	if err != nil {
		return nil, false, err
	}
	iv, err := hex.DecodeString(c.IV)
	if err != nil || len(iv) != aes.BlockSize {
		return nil, false, fmt.Errorf("%w: iv", ErrInvalidCipher)
	}
	ephPub, err := hex.DecodeString(c.EphemeralPK)
	if err != nil || len(ephPub) != keySize {
		return nil, false, fmt.Errorf("%w: ephemeralPK", ErrInvalidCipher)
	}
	ct, err := hex.DecodeString(c.CipherText)
	if err != nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return nil, false, fmt.Errorf("%w: cipherText", ErrInvalidCipher)
	}
	tag, err := hex.DecodeString(c.MAC)
	if err != nil {
		return nil, false, fmt.Errorf("%w: mac", ErrInvalidCipher)
	}

	shared, err := curve25519.X25519(priv, ephPub)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidCipher, err)
	}
	encKey, macKey, err := deriveKeys(shared, ephPub)
	if err != nil {
		return nil, false, err
	}
	if !hmac.Equal(tag, mac(macKey, iv, ephPub, ct)) {
		return nil, false, ErrAuth
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, false, err
	}
	out := make([]byte, len(ct))
	gocipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)
	out, err = unpad(out)
	if err != nil {
		return nil, false, err
	}
	return out, c.WasString, nil
}

func decodeKey(s string) ([]byte, error) {
	k, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: not hex", ErrInvalidKey)
	}
	if len(k) != keySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, keySize, len(k))
	}
	return k, nil
}

func deriveKeys(shared, salt []byte) (encKey, macKey []byte, err error) {
	r := hkdf.New(sha256.New, shared, salt, kdfInfo)
	buf := make([]byte, 64)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, nil, fmt.Errorf("derive keys: %w", err)
	}
	return buf[:32], buf[32:], nil
}

func mac(key, iv, ephPub, ct []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(iv)
	h.Write(ephPub)
	h.Write(ct)
	return h.Sum(nil)
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrInvalidCipher)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrInvalidCipher)
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrInvalidCipher)
		}
	}
	return b[:len(b)-n], nil
}

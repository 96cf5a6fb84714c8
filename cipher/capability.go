package cipher

import (
	"context"

	"github.com/caffeineduck/stackbridge/hostfunc"
	"github.com/caffeineduck/stackbridge/wire"
)

// Register adds encryptECIES, decryptECIES and publicKeyFromPrivate to reg.
func Register(reg *hostfunc.Registry) error {
	for name, fn := range map[string]hostfunc.Func{
		"encryptECIES":         encryptCapability,
		"decryptECIES":         decryptCapability,
		"publicKeyFromPrivate": publicKeyCapability,
	} {
		if err := reg.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// encryptCapability takes {publicKey, content, isBinary}. Binary content
// arrives base64 framed. It returns the cipher object as a JSON string.
func encryptCapability(_ context.Context, args map[string]any) (any, error) {
	pub, err := hostfunc.String(args, "publicKey")
	if err != nil {
		return nil, err
	}
	content, err := hostfunc.String(args, "content")
	if err != nil {
		return nil, err
	}
	isBinary, err := hostfunc.Bool(args, "isBinary")
	if err != nil {
		return nil, err
	}

	plaintext := []byte(content)
	if isBinary {
		if plaintext, err = wire.DecodeBytes(content); err != nil {
			return nil, err
		}
	}
	c, err := Encrypt(pub, plaintext, !isBinary)
	if err != nil {
		return nil, err
	}
	return c.JSON(), nil
}

// decryptCapability takes {privateKey, cipherText} where cipherText is the
// cipher object JSON, and returns {content, isBinary}.
func decryptCapability(_ context.Context, args map[string]any) (any, error) {
	priv, err := hostfunc.String(args, "privateKey")
	if err != nil {
		return nil, err
	}
	raw, err := hostfunc.String(args, "cipherText")
	if err != nil {
		return nil, err
	}
	c, err := Parse([]byte(raw))
	if err != nil {
		return nil, err
	}
	plaintext, wasString, err := Decrypt(priv, c)
	if err != nil {
		return nil, err
	}
	if wasString {
		return map[string]any{"content": string(plaintext), "isBinary": false}, nil
	}
	return map[string]any{"content": wire.EncodeBytes(plaintext), "isBinary": true}, nil
}

func publicKeyCapability(_ context.Context, args map[string]any) (any, error) {
	priv, err := hostfunc.String(args, "privateKey")
	if err != nil {
		return nil, err
	}
	return PublicKey(priv)
}

package auth

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/BradenHooton/sessionguard/internal/models"
)

const (
	activationHashBytes = 16
	macSize             = sha256.Size

	encKeyInfo = "activation-enc"
	macKeyInfo = "activation-mac"
)

var keyEncoding = base64.RawURLEncoding.Strict()

// ExpiryMode selects the comparison CheckExpires applies
type ExpiryMode int

const (
	// MustBeYounger holds when the key was issued less than maxAge ago (reset-link validity)
	MustBeYounger ExpiryMode = iota
	// MustBeOlder holds when the key was issued at least maxAge ago (resend cooldown)
	MustBeOlder
)

// ActivationKey is the decoded content of an activation key
type ActivationKey struct {
	UserID   int64
	Hash     string
	IssuedAt time.Time
}

// ActivationCodec issues and decodes encrypt-then-MAC activation keys:
// base64url(iv || AES-128-CBC(json[user_id, hash, issued_at]) || HMAC-SHA256(iv || ct)).
type ActivationCodec struct {
	encKey []byte
	macKey []byte
	now    func() time.Time
}

// NewActivationCodec derives independent encryption and MAC keys from the process secret
func NewActivationCodec(secret string) (*ActivationCodec, error) {
	if secret == "" {
		return nil, errors.New("activation codec requires a secret")
	}
	encKey, err := deriveKey(secret, encKeyInfo, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	macKey, err := deriveKey(secret, macKeyInfo, sha256.Size)
	if err != nil {
		return nil, err
	}
	return &ActivationCodec{
		encKey: encKey,
		macKey: macKey,
		now:    time.Now,
	}, nil
}

// deriveKey expands the process secret into a subkey bound to info
func deriveKey(secret, info string, size int) ([]byte, error) {
	h := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
	out := make([]byte, size)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", info, err)
	}
	return out, nil
}

// Issue creates a key for userID stamped with the current time
func (c *ActivationCodec) Issue(userID int64) (string, ActivationKey, error) {
	random := make([]byte, activationHashBytes)
	if _, err := rand.Read(random); err != nil {
		return "", ActivationKey{}, fmt.Errorf("generate activation hash: %w", err)
	}

	key := ActivationKey{
		UserID:   userID,
		Hash:     hex.EncodeToString(random),
		IssuedAt: c.now().Truncate(time.Second),
	}
	encoded, err := c.Encode(key)
	if err != nil {
		return "", ActivationKey{}, err
	}
	return encoded, key, nil
}

// Encode seals key. Sub-second precision of IssuedAt is dropped.
func (c *ActivationCodec) Encode(key ActivationKey) (string, error) {
	plaintext, err := json.Marshal([]any{key.UserID, key.Hash, key.IssuedAt.Unix()})
	if err != nil {
		return "", fmt.Errorf("marshal activation payload: %w", err)
	}

	block, err := aes.NewCipher(c.encKey)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	plaintext = pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(plaintext), aes.BlockSize+len(plaintext)+macSize)
	iv := out[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], plaintext)

	out = append(out, c.sign(out)...)
	return keyEncoding.EncodeToString(out), nil
}

// Decode authenticates and opens an encoded key. Every failure is ErrActivationKeyInvalid.
func (c *ActivationCodec) Decode(encoded string) (ActivationKey, error) {
	raw, err := keyEncoding.DecodeString(encoded)
	if err != nil {
		return ActivationKey{}, models.ErrActivationKeyInvalid
	}

	body := len(raw) - macSize
	if body < 2*aes.BlockSize || (body-aes.BlockSize)%aes.BlockSize != 0 {
		return ActivationKey{}, models.ErrActivationKeyInvalid
	}
	if !hmac.Equal(raw[body:], c.sign(raw[:body])) {
		return ActivationKey{}, models.ErrActivationKeyInvalid
	}

	block, err := aes.NewCipher(c.encKey)
	if err != nil {
		return ActivationKey{}, fmt.Errorf("init cipher: %w", err)
	}
	iv, ciphertext := raw[:aes.BlockSize], raw[aes.BlockSize:body]
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, ok := pkcs7Unpad(plaintext, aes.BlockSize)
	if !ok {
		return ActivationKey{}, models.ErrActivationKeyInvalid
	}

	var fields []json.RawMessage
	if err := json.Unmarshal(plaintext, &fields); err != nil || len(fields) != 3 {
		return ActivationKey{}, models.ErrActivationKeyInvalid
	}

	var key ActivationKey
	var issued int64
	if json.Unmarshal(fields[0], &key.UserID) != nil ||
		json.Unmarshal(fields[1], &key.Hash) != nil ||
		json.Unmarshal(fields[2], &issued) != nil {
		return ActivationKey{}, models.ErrActivationKeyInvalid
	}
	key.IssuedAt = time.Unix(issued, 0)
	return key, nil
}

func (c *ActivationCodec) sign(data []byte) []byte {
	m := hmac.New(sha256.New, c.macKey)
	m.Write(data)
	return m.Sum(nil)
}

// CheckExpires compares the age of a key issued at issuedAt against maxAge
func CheckExpires(issuedAt time.Time, maxAge time.Duration, mode ExpiryMode, now time.Time) bool {
	age := now.Sub(issuedAt)
	if mode == MustBeOlder {
		return age >= maxAge
	}
	return age < maxAge
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, bool) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, false
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}

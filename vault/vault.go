/*
Package vault stores per-user third-party API tokens encrypted at rest.

PURPOSE:
  Jira and Toggl tokens are personal credentials; they are encrypted
  with a server-held symmetric key before they touch the store and
  decrypted only on the way out. The vault owns the token columns on
  the user row; nothing else reads or writes them.

SCHEME:
  AES-256-GCM, random nonce prefixed to the ciphertext, the whole blob
  base64url-encoded. GCM's authentication tag is what turns a corrupt
  ciphertext or a rotated key into a detectable ErrCrypto instead of
  silently decrypting garbage.

ERROR SEMANTICS:
  An unset token is (_, false, nil) - absence is not an error. A missing
  user is points.ErrUserNotFound. A failed decrypt is ErrCrypto: fatal
  for that token, not for the request.
*/
package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/synetech/synepoints/points"
)

// Kind names a third-party credential slot.
type Kind string

const (
	KindJira  Kind = "jira"
	KindToggl Kind = "toggl"
)

func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindJira, KindToggl:
		return Kind(s), true
	}
	return "", false
}

// ErrCrypto is returned when a stored ciphertext cannot be decrypted:
// corruption, truncation, or a key that no longer matches.
var ErrCrypto = errors.New("credential decryption failed")

// Vault encrypts and persists tokens. The key must be 32 bytes (AES-256).
type Vault struct {
	aead  cipher.AEAD
	store points.Store
}

func New(key []byte, store points.Store) (*Vault, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("vault key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Vault{aead: aead, store: store}, nil
}

// StoreToken encrypts plaintext and upserts it onto the user row.
// An empty plaintext clears the slot.
func (v *Vault) StoreToken(ctx context.Context, email string, kind Kind, plaintext string) error {
	ciphertext := ""
	if plaintext != "" {
		var err error
		ciphertext, err = v.encrypt(plaintext)
		if err != nil {
			return err
		}
	}
	return v.store.SetUserToken(ctx, email, string(kind), ciphertext)
}

// GetToken decrypts the stored token. ok is false when no token is set.
func (v *Vault) GetToken(ctx context.Context, email string, kind Kind) (string, bool, error) {
	u, err := v.store.GetUser(ctx, email)
	if err != nil {
		return "", false, err
	}

	var ciphertext string
	switch kind {
	case KindJira:
		ciphertext = u.JiraToken
	case KindToggl:
		ciphertext = u.TogglToken
	default:
		return "", false, fmt.Errorf("unknown token kind %q", kind)
	}
	if ciphertext == "" {
		return "", false, nil
	}

	plaintext, err := v.decrypt(ciphertext)
	if err != nil {
		return "", false, err
	}
	return plaintext, true, nil
}

func (v *Vault) encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

func (v *Vault) decrypt(encoded string) (string, error) {
	sealed, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	if len(sealed) < v.aead.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrCrypto)
	}
	nonce, ciphertext := sealed[:v.aead.NonceSize()], sealed[v.aead.NonceSize():]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return string(plaintext), nil
}

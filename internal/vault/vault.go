// Package vault encrypts and decrypts sensitive configuration fields.
//
// Encryption is AES-256-GCM with a per-value random nonce; the key is
// derived from a caller-supplied passphrase with Argon2id and a random
// salt. The stored representation is a single string:
//
//	vault:v1:<base64 salt>:<base64 nonce||ciphertext>
//
// so encrypted values round-trip through every format adapter without
// special casing. Decryption with the wrong key or over tampered
// ciphertext fails closed with a DecryptionError; plaintext secret
// values never appear in error messages.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/confman-io/confman/internal/configtree"
)

// Stored-value format tag. Bumping the version allows future cipher
// changes without breaking existing ciphertext.
const prefix = "vault:v1:"

// Argon2id parameters — OWASP 2025 recommendation.
const (
	argonTime    = 3         // iterations
	argonMemory  = 64 * 1024 // 64 MiB
	argonThreads = 1         // parallelism
	argonKeyLen  = 32        // AES-256 key length
	argonSaltLen = 16        // salt length
)

// DecryptionError reports a value that could not be authenticated and
// decrypted. It deliberately carries no plaintext or ciphertext detail.
type DecryptionError struct {
	Path string
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("field %q: decryption failed (wrong key or tampered ciphertext)", e.Path)
}

// IsEncrypted reports whether a string carries the vault storage format.
func IsEncrypted(s string) bool {
	return strings.HasPrefix(s, prefix)
}

// Vault performs field-level encryption with a fixed passphrase. Derived
// keys are cached per salt, so decrypting a document with many fields
// pays the Argon2 cost once per distinct salt.
type Vault struct {
	passphrase []byte
	keys       map[string][]byte
}

// New creates a Vault from passphrase key material. The passphrase is
// supplied out-of-band (environment variable or key file) and is never
// part of any configuration document.
func New(passphrase []byte) (*Vault, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("vault passphrase must not be empty")
	}
	return &Vault{
		passphrase: passphrase,
		keys:       make(map[string][]byte),
	}, nil
}

// EncryptFields returns a copy of the tree with every marked String
// field replaced by its encrypted representation. Fields already in
// vault format are left untouched, so re-encrypting a document is
// idempotent. Non-string and unmarked fields pass through unchanged.
func (v *Vault) EncryptFields(tree *configtree.Value, markers *Markers) (*configtree.Value, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	key := v.deriveKey(salt)
	return v.transform(tree, markers, "", "", func(path, plain string) (string, error) {
		if IsEncrypted(plain) {
			return plain, nil
		}
		return seal(key, salt, plain)
	})
}

// DecryptFields returns a copy of the tree with every marked,
// vault-formatted String field decrypted. The input tree is unchanged,
// so a failed decryption never corrupts stored ciphertext.
func (v *Vault) DecryptFields(tree *configtree.Value, markers *Markers) (*configtree.Value, error) {
	return v.transform(tree, markers, "", "", func(path, stored string) (string, error) {
		if !IsEncrypted(stored) {
			return stored, nil
		}
		return v.open(path, stored)
	})
}

// transform walks the tree, applying fn to marked string fields.
// Sequence elements keep their enclosing field's path so markers apply
// inside sequences without index syntax.
func (v *Vault) transform(tree *configtree.Value, markers *Markers, path, key string,
	fn func(path, s string) (string, error)) (*configtree.Value, error) {
	switch tree.Kind() {
	case configtree.KindString:
		if key == "" || !markers.Matches(path, key) {
			return tree.Clone(), nil
		}
		s, err := fn(path, tree.StringVal())
		if err != nil {
			return nil, err
		}
		return configtree.String(s), nil
	case configtree.KindSequence:
		items := make([]*configtree.Value, 0, tree.Len())
		for _, item := range tree.Items() {
			t, err := v.transform(item, markers, path, key, fn)
			if err != nil {
				return nil, err
			}
			items = append(items, t)
		}
		return configtree.Sequence(items...), nil
	case configtree.KindMapping:
		m := configtree.Mapping()
		for _, k := range tree.Keys() {
			val, _ := tree.Get(k)
			t, err := v.transform(val, markers, configtree.ChildPath(path, k), k, fn)
			if err != nil {
				return nil, err
			}
			m.Set(k, t)
		}
		return m, nil
	default:
		return tree.Clone(), nil
	}
}

// deriveKey derives (and caches) the AES key for a salt.
func (v *Vault) deriveKey(salt []byte) []byte {
	cacheKey := string(salt)
	if key, ok := v.keys[cacheKey]; ok {
		return key
	}
	key := argon2.IDKey(v.passphrase, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	v.keys[cacheKey] = key
	return key
}

// seal encrypts one plaintext value into the vault storage format.
func seal(key, salt []byte, plain string) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plain), nil)
	return prefix +
		base64.RawStdEncoding.EncodeToString(salt) + ":" +
		base64.RawStdEncoding.EncodeToString(sealed), nil
}

// open authenticates and decrypts one stored value.
func (v *Vault) open(path, stored string) (string, error) {
	parts := strings.Split(strings.TrimPrefix(stored, prefix), ":")
	if len(parts) != 2 {
		return "", &DecryptionError{Path: path}
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil || len(salt) != argonSaltLen {
		return "", &DecryptionError{Path: path}
	}
	sealed, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", &DecryptionError{Path: path}
	}

	gcm, err := newGCM(v.deriveKey(salt))
	if err != nil {
		return "", &DecryptionError{Path: path}
	}
	if len(sealed) < gcm.NonceSize() {
		return "", &DecryptionError{Path: path}
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		// Authentication failure: wrong key or tampered data. Fail
		// closed rather than returning garbage plaintext.
		return "", &DecryptionError{Path: path}
	}
	return string(plain), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}

// Package vault implements encryption, key rotation, and integrity checking
// for PlatformConnection credentials. Grounded on internal/security/
// token_broker.go's rotation-grace pattern and internal/multitenancy/
// tenant_manager.go's use of bcrypt for secret hashing.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrIntegrityFailure is returned by Open when the stored HMAC does
	// not match the recomputed one. The caller must mark the record
	// quarantined; it must never attempt to use the decrypted bytes.
	ErrIntegrityFailure = errors.New("vault: credential integrity check failed")
	// ErrUnknownKeyVersion is returned when a ciphertext references a
	// keyVersion the vault does not hold a decrypt key for.
	ErrUnknownKeyVersion = errors.New("vault: unknown key version")
)

// Sealed is the at-rest representation of an encrypted credential: the
// fields that map directly onto EncryptedCredential's ciphertext/nonce/
// keyVersion/integrityHash columns (spec.md §3).
type Sealed struct {
	Ciphertext   []byte
	Nonce        []byte
	KeyVersion   int
	IntegrityHash string
}

// Vault holds the active and previously-active AES-256-GCM keys. Multiple
// decrypt-capable keys are held at once (keyed by version) so that records
// encrypted under a retired key still decrypt during a rotation's grace
// window, mirroring TokenBroker's secret/prevSecret pair generalized to an
// arbitrary number of historical versions.
type Vault struct {
	mu           sync.RWMutex
	keys         map[int][]byte // keyVersion -> 32-byte AES key
	currentVersion int
}

// New constructs a Vault whose current encrypt key is keys[currentVersion].
// All entries in keys are eligible decrypt keys.
func New(keys map[int][]byte, currentVersion int) (*Vault, error) {
	if _, ok := keys[currentVersion]; !ok {
		return nil, fmt.Errorf("vault: currentVersion %d has no matching key", currentVersion)
	}
	for v, k := range keys {
		if len(k) != 32 {
			return nil, fmt.Errorf("vault: key version %d is %d bytes, want 32 (AES-256)", v, len(k))
		}
	}
	return &Vault{keys: keys, currentVersion: currentVersion}, nil
}

// RotateKey installs a new current encrypt key, retaining the old key as a
// valid decrypt key so in-flight and previously-sealed records stay
// readable. Callers re-encrypt records opportunistically on next write;
// rotation never triggers a bulk re-encrypt itself.
func (v *Vault) RotateKey(newVersion int, newKey []byte) error {
	if len(newKey) != 32 {
		return fmt.Errorf("vault: new key is %d bytes, want 32 (AES-256)", len(newKey))
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys[newVersion] = newKey
	v.currentVersion = newVersion
	return nil
}

// Seal encrypts plaintext under the current key and returns the sealed
// record, including an HMAC-SHA256 integrity hash over the ciphertext,
// nonce, and keyVersion (reusing crypto/hmac, already imported by the
// teacher's token broker for signed tokens).
func (v *Vault) Seal(plaintext []byte) (*Sealed, error) {
	v.mu.RLock()
	version := v.currentVersion
	key := v.keys[version]
	v.mu.RUnlock()

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	sealed := &Sealed{
		Ciphertext: ciphertext,
		Nonce:      nonce,
		KeyVersion: version,
	}
	sealed.IntegrityHash = v.integrityHash(key, sealed)
	return sealed, nil
}

// Open decrypts a sealed record, first verifying its integrity hash against
// the key matching its keyVersion. A mismatch returns ErrIntegrityFailure
// and the caller must quarantine the record rather than retry.
func (v *Vault) Open(sealed *Sealed) ([]byte, error) {
	v.mu.RLock()
	key, ok := v.keys[sealed.KeyVersion]
	v.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownKeyVersion
	}

	expected := v.integrityHash(key, sealed)
	if !hmac.Equal([]byte(expected), []byte(sealed.IntegrityHash)) {
		return nil, ErrIntegrityFailure
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: new gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, sealed.Nonce, sealed.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: decrypt: %w", err)
	}
	return plaintext, nil
}

func (v *Vault) integrityHash(key []byte, sealed *Sealed) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(sealed.Ciphertext)
	mac.Write(sealed.Nonce)
	fmt.Fprintf(mac, "%d", sealed.KeyVersion)
	return hex.EncodeToString(mac.Sum(nil))
}

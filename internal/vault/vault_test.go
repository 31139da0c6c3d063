package vault

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeys() map[int][]byte {
	return map[int][]byte{
		1: []byte("01234567890123456789012345678901"),
		2: []byte("abcdefghijklmnopqrstuvwxyzabcdef"),
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	v, err := New(testKeys(), 1)
	require.NoError(t, err)

	sealed, err := v.Seal([]byte(`{"accessToken":"xoxb-secret"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, sealed.KeyVersion)

	plaintext, err := v.Open(sealed)
	require.NoError(t, err)
	assert.JSONEq(t, `{"accessToken":"xoxb-secret"}`, string(plaintext))
}

func TestOpenDetectsTamperedCiphertext(t *testing.T) {
	v, err := New(testKeys(), 1)
	require.NoError(t, err)

	sealed, err := v.Seal([]byte("super secret"))
	require.NoError(t, err)

	sealed.Ciphertext[0] ^= 0xFF

	_, err = v.Open(sealed)
	assert.ErrorIs(t, err, ErrIntegrityFailure)
}

func TestRotateKeyKeepsOldVersionDecryptable(t *testing.T) {
	v, err := New(testKeys(), 1)
	require.NoError(t, err)

	sealedUnderV1, err := v.Seal([]byte("pre-rotation"))
	require.NoError(t, err)

	err = v.RotateKey(3, []byte("thirdthirdthirdthirdthirdthirdth"))
	require.NoError(t, err)

	sealedUnderV3, err := v.Seal([]byte("post-rotation"))
	require.NoError(t, err)
	assert.Equal(t, 3, sealedUnderV3.KeyVersion)

	plaintext, err := v.Open(sealedUnderV1)
	require.NoError(t, err)
	assert.Equal(t, "pre-rotation", string(plaintext))
}

func TestOpenUnknownKeyVersion(t *testing.T) {
	v, err := New(testKeys(), 1)
	require.NoError(t, err)

	sealed := &Sealed{Ciphertext: []byte("x"), Nonce: []byte("y"), KeyVersion: 99}
	_, err = v.Open(sealed)
	assert.ErrorIs(t, err, ErrUnknownKeyVersion)
}

func TestNewRejectsWrongKeyLength(t *testing.T) {
	_, err := New(map[int][]byte{1: []byte("too-short")}, 1)
	assert.Error(t, err)
}

func TestCredentialNeedsRefresh(t *testing.T) {
	future := time.Now().Add(2 * time.Minute)
	c := &Credential{Type: CredentialOAuth2, ExpiresAt: &future}
	assert.True(t, c.NeedsRefresh(300)) // within 5 minute buffer
	assert.False(t, c.NeedsRefresh(60))

	nonExpiring := &Credential{Type: CredentialBearer, ExpiresAt: nil}
	assert.False(t, nonExpiring.NeedsRefresh(300))

	neverExpiresOAuth := &Credential{Type: CredentialOAuth2, ExpiresAt: nil}
	assert.False(t, neverExpiresOAuth.NeedsRefresh(300))
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	orig := &Credential{
		Type:         CredentialOAuth2,
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresAt:    &exp,
	}
	bytes, err := MarshalForSeal(orig)
	require.NoError(t, err)

	got, err := UnmarshalFromOpen(CredentialOAuth2, bytes)
	require.NoError(t, err)
	assert.Equal(t, orig.AccessToken, got.AccessToken)
	assert.Equal(t, orig.RefreshToken, got.RefreshToken)
	assert.WithinDuration(t, *orig.ExpiresAt, *got.ExpiresAt, time.Second)
}

func TestRefreshCoordinatorRunsFnAndReturnsResult(t *testing.T) {
	coord := NewRefreshCoordinator()
	calls := 0

	cred := &Credential{Type: CredentialOAuth2, AccessToken: "old"}
	result, err := coord.Refresh(context.Background(), "conn-1", cred, func(_ context.Context, c *Credential) (*Credential, error) {
		calls++
		return &Credential{Type: CredentialOAuth2, AccessToken: "new"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "new", result.AccessToken)
}

func TestRefreshCoordinatorSerializesConcurrentCallsPerConnection(t *testing.T) {
	coord := NewRefreshCoordinator()
	var mu sync.Mutex
	concurrent := 0
	maxConcurrent := 0

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = coord.Refresh(context.Background(), "conn-shared", &Credential{}, func(_ context.Context, c *Credential) (*Credential, error) {
				mu.Lock()
				concurrent++
				if concurrent > maxConcurrent {
					maxConcurrent = concurrent
				}
				mu.Unlock()

				time.Sleep(10 * time.Millisecond)

				mu.Lock()
				concurrent--
				mu.Unlock()
				return c, nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxConcurrent)
}

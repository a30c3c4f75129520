package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestNewCodec_RejectsBadKeySize(t *testing.T) {
	for _, size := range []int{0, 16, 31, 33, 64} {
		_, err := NewCodec(make([]byte, size))
		assert.ErrorIs(t, err, ErrInvalidKeySize, "size %d", size)
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	codec, err := NewCodec(testKey(t))
	require.NoError(t, err)

	cases := []string{
		"hello",
		"",
		"unicode: héllo wörld 你好",
		strings.Repeat("x", 10000),
		`{"nested":"json","n":1}`,
	}

	for _, plaintext := range cases {
		token, err := codec.Encrypt(plaintext)
		require.NoError(t, err)

		got, err := codec.Decrypt(token)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestCodec_TokenIsURLSafeAndVersioned(t *testing.T) {
	codec, err := NewCodec(testKey(t))
	require.NoError(t, err)

	token, err := codec.Encrypt("payload")
	require.NoError(t, err)

	raw, err := base64.URLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Equal(t, byte(TokenVersion), raw[0])
	assert.GreaterOrEqual(t, len(raw), 1+NonceSize)
}

func TestCodec_CiphertextHidesPlaintext(t *testing.T) {
	codec, err := NewCodec(testKey(t))
	require.NoError(t, err)

	token, err := codec.Encrypt("secret")
	require.NoError(t, err)
	assert.NotContains(t, token, "secret")
}

func TestCodec_Decrypt_Tampered(t *testing.T) {
	codec, err := NewCodec(testKey(t))
	require.NoError(t, err)

	token, err := codec.Encrypt("payload")
	require.NoError(t, err)

	raw, err := base64.URLEncoding.DecodeString(token)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.URLEncoding.EncodeToString(raw)

	_, err = codec.Decrypt(tampered)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestCodec_Decrypt_WrongKey(t *testing.T) {
	codec1, err := NewCodec(testKey(t))
	require.NoError(t, err)
	codec2, err := NewCodec(testKey(t))
	require.NoError(t, err)

	token, err := codec1.Encrypt("payload")
	require.NoError(t, err)

	_, err = codec2.Decrypt(token)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestCodec_Decrypt_Malformed(t *testing.T) {
	codec, err := NewCodec(testKey(t))
	require.NoError(t, err)

	cases := map[string]string{
		"not base64":   "!!!not-base64!!!",
		"empty":        "",
		"too short":    base64.URLEncoding.EncodeToString([]byte{TokenVersion, 1, 2}),
		"wrong version": func() string {
			token, err := codec.Encrypt("x")
			require.NoError(t, err)
			raw, err := base64.URLEncoding.DecodeString(token)
			require.NoError(t, err)
			raw[0] = 0x02
			return base64.URLEncoding.EncodeToString(raw)
		}(),
	}

	for name, token := range cases {
		_, err := codec.Decrypt(token)
		assert.ErrorIs(t, err, ErrDecrypt, name)
	}
}

func TestCodec_ConcurrentUse(t *testing.T) {
	codec, err := NewCodec(testKey(t))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				token, err := codec.Encrypt("concurrent")
				assert.NoError(t, err)
				got, err := codec.Decrypt(token)
				assert.NoError(t, err)
				assert.Equal(t, "concurrent", got)
			}
		}()
	}
	wg.Wait()
}

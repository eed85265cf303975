package encrypt_test

import (
	"bytes"
	"crypto/rand"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/docvault/pkg/internal/encrypt"
	"github.com/yeisme/docvault/pkg/internal/errs"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()

	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)

	return b
}

func encryptAll(t *testing.T, c *encrypt.Cipher, plain []byte, key string) []byte {
	t.Helper()

	r, err := c.EncryptReader(bytes.NewReader(plain), key)
	require.NoError(t, err)

	out, err := io.ReadAll(r)
	require.NoError(t, err)

	return out
}

// TestRoundTrip 加密后解密还原原文，且长度不变.
func TestRoundTrip(t *testing.T) {
	c := encrypt.New(true)
	key, err := encrypt.GeneratePrivateKey()
	require.NoError(t, err)

	for _, size := range []int{0, 1, 15, 16, 17, 4096, 1 << 20} {
		plain := randomBytes(t, size)

		cipherText := encryptAll(t, c, plain, key)
		assert.Len(t, cipherText, size, "ciphertext length")

		if size > 0 {
			assert.NotEqual(t, plain, cipherText)
		}

		r, err := c.DecryptReader(bytes.NewReader(cipherText), key)
		require.NoError(t, err)

		decoded, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, plain, decoded, "size %d", size)
	}
}

// TestDifferentKeys 不同私钥得到不同密文，错误私钥无法还原.
func TestDifferentKeys(t *testing.T) {
	c := encrypt.New(true)
	plain := []byte("the quick brown fox jumps over the lazy dog")

	a := encryptAll(t, c, plain, "key-a")
	b := encryptAll(t, c, plain, "key-b")
	assert.NotEqual(t, a, b)

	r, err := c.DecryptReader(bytes.NewReader(a), "key-b")
	require.NoError(t, err)

	wrong, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.NotEqual(t, plain, wrong)
}

// TestDisabledIsIdentity 关闭加密时返回原始流.
func TestDisabledIsIdentity(t *testing.T) {
	c := encrypt.New(false)
	assert.False(t, c.Enabled())

	src := bytes.NewReader([]byte("plain"))

	r, err := c.EncryptReader(src, "")
	require.NoError(t, err)
	assert.Same(t, src, r)

	r, err = c.DecryptReader(src, "any")
	require.NoError(t, err)
	assert.Same(t, src, r)
}

// TestEmptyKey 开启加密时空私钥返回 ErrInvalidKey.
func TestEmptyKey(t *testing.T) {
	c := encrypt.New(true)

	_, err := c.EncryptReader(bytes.NewReader(nil), "")
	require.ErrorIs(t, err, errs.ErrInvalidKey)

	_, err = c.DecryptToTemp(bytes.NewReader(nil), "", t.TempDir())
	require.ErrorIs(t, err, errs.ErrInvalidKey)
}

// failingReader 读取即失败.
type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrClosedPipe }

// TestDecryptToTemp 解密到临时文件，读取失败时不留下文件.
func TestDecryptToTemp(t *testing.T) {
	dir := t.TempDir()
	c := encrypt.New(true)
	plain := randomBytes(t, 2048)

	tmp, err := c.DecryptToTemp(bytes.NewReader(encryptAll(t, c, plain, "k")), "k", dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(tmp))

	got, err := os.ReadFile(tmp)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
	require.NoError(t, os.Remove(tmp))

	_, err = c.DecryptToTemp(failingReader{}, "k", dir)
	require.ErrorIs(t, err, errs.ErrIOFailure)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestGeneratePrivateKey 生成的私钥非空且互不相同.
func TestGeneratePrivateKey(t *testing.T) {
	seen := make(map[string]struct{})

	for range 32 {
		k, err := encrypt.GeneratePrivateKey()
		require.NoError(t, err)
		require.NotEmpty(t, k)
		assert.LessOrEqual(t, len(k), 36) // 176 位在 32 进制下最多 36 个字符

		_, dup := seen[k]
		assert.False(t, dup)
		seen[k] = struct{}{}
	}
}

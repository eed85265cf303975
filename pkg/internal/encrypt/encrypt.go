// Package encrypt 提供基于用户私钥的透明流加密.
//
// 私钥经 PBKDF2（固定盐与迭代次数）派生出 256 位 AES 密钥与计数器初始值，
// 使用 CTR 模式，密文长度与明文长度完全一致，可以直接包裹长度未知的文件拷贝.
//
// 关闭加密时所有方法返回原始流.
package encrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"math/big"
	"os"

	"golang.org/x/crypto/pbkdf2"

	"github.com/yeisme/docvault/pkg/internal/errs"
)

const (
	// salt 全局固定盐.
	salt = "LEpxZmm2SMu2PeKzPNrar2rhVAS6LrrgvXKeL9uyXC4vgKHg"
	// iterations PBKDF2 迭代次数.
	iterations = 2000
	// keyLen AES-256 密钥长度.
	keyLen = 32
	// privateKeyBits 生成私钥的随机位数.
	privateKeyBits = 176
)

// Cipher 流加解密器，构造后不可变.
type Cipher struct {
	enabled bool
}

// New 创建 Cipher，enabled 为 false 时所有包装均为恒等变换.
func New(enabled bool) *Cipher {
	return &Cipher{enabled: enabled}
}

// Enabled 是否开启加密.
func (c *Cipher) Enabled() bool {
	return c.enabled
}

// stream 从私钥派生 CTR 密钥流.
func stream(privateKey string) (cipher.Stream, error) {
	if privateKey == "" {
		return nil, errs.ErrInvalidKey
	}

	material := pbkdf2.Key([]byte(privateKey), []byte(salt), iterations, keyLen+aes.BlockSize, sha256.New)

	block, err := aes.NewCipher(material[:keyLen])
	if err != nil {
		return nil, errs.Wrap(errs.ErrCipherInit, err)
	}

	return cipher.NewCTR(block, material[keyLen:]), nil
}

// EncryptReader 返回读取时即加密的 reader.
func (c *Cipher) EncryptReader(r io.Reader, privateKey string) (io.Reader, error) {
	return c.wrapReader(r, privateKey)
}

// DecryptReader 返回读取时即解密的 reader.
func (c *Cipher) DecryptReader(r io.Reader, privateKey string) (io.Reader, error) {
	return c.wrapReader(r, privateKey)
}

// CTR 模式下加密与解密是同一个变换.
func (c *Cipher) wrapReader(r io.Reader, privateKey string) (io.Reader, error) {
	if !c.enabled {
		return r, nil
	}

	s, err := stream(privateKey)
	if err != nil {
		return nil, err
	}

	return cipher.StreamReader{S: s, R: r}, nil
}

// DecryptToTemp 把密文流 r 解密到 dir 下的临时文件，返回临时文件路径，调用方负责删除.
// dir 为空时使用系统临时目录. 失败时不留下临时文件.
func (c *Cipher) DecryptToTemp(r io.Reader, privateKey, dir string) (string, error) {
	plain, err := c.DecryptReader(r, privateKey)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, "docvault-decrypt-*")
	if err != nil {
		return "", errs.Wrap(errs.ErrIOFailure, err)
	}

	if _, err := io.Copy(tmp, plain); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return "", errs.Wrap(errs.ErrIOFailure, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return "", errs.Wrap(errs.ErrIOFailure, err)
	}

	return tmp.Name(), nil
}

// GeneratePrivateKey 生成新的用户私钥：176 位随机数的 32 进制表示.
func GeneratePrivateKey() (string, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), privateKeyBits)

	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate private key: %w", err)
	}

	return n.Text(32), nil
}

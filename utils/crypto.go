package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const contactKeyInfo = "parkwise reservation contact"

// FieldCipher 以 AES-256-GCM 加密單一欄位，輸出為 base64(nonce || ciphertext)
type FieldCipher struct {
	aead cipher.AEAD
}

// NewFieldCipher 由 AES_KEY 經 HKDF-SHA256 導出 32 bytes 金鑰，因此 AES_KEY 不限長度
func NewFieldCipher(secret string) (*FieldCipher, error) {
	if secret == "" {
		return nil, errors.New("AES_KEY environment variable is not set")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(contactKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &FieldCipher{aead: gcm}, nil
}

// Seal 加密明文
func (c *FieldCipher) Seal(plainText string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	cipherText := c.aead.Seal(nonce, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(cipherText), nil
}

// Open 解密 Seal 的輸出
func (c *FieldCipher) Open(sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, cipherText := data[:nonceSize], data[nonceSize:]
	plainText, err := c.aead.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return "", err
	}
	return string(plainText), nil
}

package torm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"sync"
)

// encryptionKeyRegistry 保存密钥引用名到密钥字节的映射。
// 密钥在进程启动时注册一次，随后只读
var encryptionKeyRegistry sync.Map // keyRef -> []byte

// RegisterEncryptionKey binds a named key used by encrypted fields.
// 密钥长度必须是 16、24 或 32 字节（AES-128/192/256）
func RegisterEncryptionKey(keyRef string, key []byte) error {
	if keyRef == "" {
		return fmt.Errorf("torm: encryption key reference cannot be empty")
	}
	switch len(key) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("torm: encryption key %q must be 16, 24 or 32 bytes, got %d", keyRef, len(key))
	}
	stored := make([]byte, len(key))
	copy(stored, key)
	encryptionKeyRegistry.Store(keyRef, stored)
	return nil
}

// lookupEncryptionKey resolves a key reference to its key bytes
func lookupEncryptionKey(keyRef string) ([]byte, error) {
	value, ok := encryptionKeyRegistry.Load(keyRef)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEncryptionKeyNotFound, keyRef)
	}
	return value.([]byte), nil
}

// EncryptField encrypts a string field value under the named key.
// 输出为 base64(nonce || ciphertext)，每次加密使用随机 nonce，
// 同一明文两次加密产生不同密文
func EncryptField(value, keyRef string) (string, error) {
	key, err := lookupEncryptionKey(keyRef)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("torm: create cipher for key %q: %w", keyRef, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("torm: create GCM for key %q: %w", keyRef, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("torm: generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(value), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptField decrypts a string field value previously produced by
// EncryptField under the same key
func DecryptField(value, keyRef string) (string, error) {
	key, err := lookupEncryptionKey(keyRef)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("torm: decode encrypted value: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("torm: create cipher for key %q: %w", keyRef, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("torm: create GCM for key %q: %w", keyRef, err)
	}

	if len(raw) < gcm.NonceSize() {
		return "", fmt.Errorf("torm: encrypted value too short for key %q", keyRef)
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("torm: decrypt value for key %q: %w", keyRef, err)
	}
	return string(plaintext), nil
}

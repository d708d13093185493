// Package cipher implements the WeChat message cipher: AES-256-CBC over a
// framed buffer of random prefix, big-endian content length, message body
// and app id, base64 on the wire.
package cipher

import (
	"crypto/aes"
	ciph "crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	keySize    = 32
	prefixSize = 16
	// The platform pads the framed buffer to a 32-byte boundary.
	padBlockSize = 32
)

var (
	// ErrEncryption covers malformed ciphertext, base64 faults and cipher
	// errors. The input is attacker-controlled, so details are wrapped but
	// payload content never appears in the error.
	ErrEncryption = errors.New("encryption failure")
	// ErrAppIDMismatch is returned when the identity embedded in a decrypted
	// frame does not match the configured app id.
	ErrAppIDMismatch = errors.New("app id mismatch")
)

// randomPrefix supplies the 16 discardable bytes at the head of each frame.
// Tests replace it to make Encrypt deterministic.
var randomPrefix = func() ([]byte, error) {
	b := make([]byte, prefixSize)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// DecodeKey decodes a base64 cipher key as configured in the platform
// console. An empty input means encryption is not configured and yields a
// nil key. The console's 43-character unpadded form is accepted.
func DecodeKey(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	key, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: bad key encoding: %v", ErrEncryption, err)
	}
	return key, nil
}

// Encrypt frames and encrypts plaintext for appID, returning base64
// ciphertext. Frame layout: rand[16] || len[4] || plaintext || appID.
func Encrypt(key []byte, plaintext, appID string) (string, error) {
	prefix, err := randomPrefix()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	buf := make([]byte, 0, prefixSize+4+len(plaintext)+len(appID)+padBlockSize)
	buf = append(buf, prefix...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(plaintext)))
	buf = append(buf, plaintext...)
	buf = append(buf, appID...)
	buf = pad(buf)

	block, err := newBlock(key)
	if err != nil {
		return "", err
	}
	ciph.NewCBCEncrypter(block, key[:aes.BlockSize]).CryptBlocks(buf, buf)

	return base64.StdEncoding.EncodeToString(buf), nil
}

// Decrypt reverses Encrypt and checks the embedded app id against appID.
func Decrypt(key []byte, b64, appID string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext encoding", ErrEncryption)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d", ErrEncryption, len(raw))
	}

	block, err := newBlock(key)
	if err != nil {
		return "", err
	}
	ciph.NewCBCDecrypter(block, key[:aes.BlockSize]).CryptBlocks(raw, raw)

	buf, err := unpad(raw)
	if err != nil {
		return "", err
	}
	if len(buf) < prefixSize+4 {
		return "", fmt.Errorf("%w: frame too short", ErrEncryption)
	}

	// First 16 bytes are discarded randomness.
	length := binary.BigEndian.Uint32(buf[prefixSize : prefixSize+4])
	body := buf[prefixSize+4:]
	if uint64(length) > uint64(len(body)) {
		return "", fmt.Errorf("%w: content length out of range", ErrEncryption)
	}

	plaintext := body[:length]
	if string(body[length:]) != appID {
		return "", ErrAppIDMismatch
	}
	return string(plaintext), nil
}

func newBlock(key []byte) (ciph.Block, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrEncryption, keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	return block, nil
}

func pad(b []byte) []byte {
	n := padBlockSize - len(b)%padBlockSize
	for i := 0; i < n; i++ {
		b = append(b, byte(n))
	}
	return b
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrEncryption)
	}
	n := int(b[len(b)-1])
	if n < 1 || n > padBlockSize || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrEncryption)
	}
	return b[:len(b)-n], nil
}

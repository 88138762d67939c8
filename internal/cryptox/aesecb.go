package cryptox

import (
	"bytes"
	"crypto/aes"
	"fmt"
)

// The legacy message queue encryption is AES-ECB with PKCS#7 padding.
// crypto/cipher has no ECB mode, so blocks are processed one at a time.

func EncryptAESECB(key []byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	pad := bs - len(plaintext)%bs
	src := append(append([]byte{}, plaintext...), bytes.Repeat([]byte{byte(pad)}, pad)...)

	out := make([]byte, len(src))
	for i := 0; i < len(src); i += bs {
		block.Encrypt(out[i:i+bs], src[i:i+bs])
	}
	return out, nil
}

func DecryptAESECB(key []byte, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	if len(ciphertext) == 0 || len(ciphertext)%bs != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of %d", len(ciphertext), bs)
	}

	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += bs {
		block.Decrypt(out[i:i+bs], ciphertext[i:i+bs])
	}
	return unpad(out, bs), nil
}

// unpad strips PKCS#7 padding. Some producers pad with zero bytes or
// whitespace instead; anything that is not valid PKCS#7 is trimmed of
// trailing control characters.
func unpad(b []byte, bs int) []byte {
	n := int(b[len(b)-1])
	if n > 0 && n <= bs && n <= len(b) {
		ok := true
		for _, c := range b[len(b)-n:] {
			if int(c) != n {
				ok = false
				break
			}
		}
		if ok {
			return b[:len(b)-n]
		}
	}
	return bytes.TrimRightFunc(b, func(r rune) bool { return r < 0x20 })
}

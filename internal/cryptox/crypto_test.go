package cryptox

import (
	"bytes"
	"crypto/aes"
	"testing"
)

const testAccessKey = "0123456789abcdef0123456789abcdef"

func TestPayloadKey(t *testing.T) {
	key, err := PayloadKey(testAccessKey)
	if err != nil {
		t.Fatalf("PayloadKey failed: %v", err)
	}
	if string(key) != "89abcdef01234567" {
		t.Fatalf("expected key 89abcdef01234567, got %s", key)
	}
	if _, err := PayloadKey("too-short"); err == nil {
		t.Fatalf("expected error for short access key")
	}
}

func TestAESECB_RoundTrip(t *testing.T) {
	key, _ := PayloadKey(testAccessKey)

	for _, plain := range []string{
		`{"devId":"dev1","status":[{"code":"switch_1","value":true}]}`,
		"0123456789abcdef", // exact block size gets a full padding block
		"x",
	} {
		ct, err := EncryptAESECB(key, []byte(plain))
		if err != nil {
			t.Fatalf("EncryptAESECB failed: %v", err)
		}
		if len(ct)%aes.BlockSize != 0 {
			t.Fatalf("expected block-aligned ciphertext, got %d bytes", len(ct))
		}
		got, err := DecryptAESECB(key, ct)
		if err != nil {
			t.Fatalf("DecryptAESECB failed: %v", err)
		}
		if string(got) != plain {
			t.Fatalf("expected %q, got %q", plain, got)
		}
	}
}

func TestAESECB_RejectsUnalignedInput(t *testing.T) {
	key, _ := PayloadKey(testAccessKey)
	if _, err := DecryptAESECB(key, []byte("short")); err == nil {
		t.Fatalf("expected error for unaligned ciphertext")
	}
}

func TestUnpad_ZeroPadding(t *testing.T) {
	b := append([]byte(`{"a":1}`), bytes.Repeat([]byte{0}, 9)...)
	if got := unpad(b, aes.BlockSize); string(got) != `{"a":1}` {
		t.Fatalf("expected zero padding to be trimmed, got %q", got)
	}
}

func TestAESGCM_RoundTrip(t *testing.T) {
	key, _ := PayloadKey(testAccessKey)
	plain := []byte(`{"devId":"dev1"}`)

	blob, err := EncryptAESGCM(key, plain)
	if err != nil {
		t.Fatalf("EncryptAESGCM failed: %v", err)
	}
	got, err := DecryptAESGCM(key, blob)
	if err != nil {
		t.Fatalf("DecryptAESGCM failed: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("expected %q, got %q", plain, got)
	}

	blob[len(blob)-1] ^= 0xff
	if _, err := DecryptAESGCM(key, blob); err == nil {
		t.Fatalf("expected tampered ciphertext to fail")
	}
}

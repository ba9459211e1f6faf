package util

import (
	"bytes"
	"testing"
)

func TestAES(t *testing.T) {
	key, _ := NewAESKey()
	plainText := []byte("hello world")
	aad := []byte("context")

	t.Run("EncryptDecryptWithAAD", func(t *testing.T) {
		cipherText, err := EncryptAESWithAAD(plainText, key, aad)
		if err != nil {
			t.Fatalf("EncryptAESWithAAD failed: %v", err)
		}
		decrypted, err := DecryptAESWithAAD(cipherText, key, aad)
		if err != nil {
			t.Fatalf("DecryptAESWithAAD failed: %v", err)
		}
		if !bytes.Equal(plainText, decrypted) {
			t.Errorf("expected %s, got %s", plainText, decrypted)
		}
	})

	t.Run("TamperAAD", func(t *testing.T) {
		cipherText, _ := EncryptAESWithAAD(plainText, key, aad)
		if _, err := DecryptAESWithAAD(cipherText, key, []byte("wrong context")); err == nil {
			t.Error("expected error with wrong AAD, got nil")
		}
	})

	t.Run("TamperCipherText", func(t *testing.T) {
		cipherText, _ := EncryptAESWithAAD(plainText, key, aad)
		cipherText[len(cipherText)-1] ^= 0xFF
		if _, err := DecryptAESWithAAD(cipherText, key, aad); err == nil {
			t.Error("expected error with tampered ciphertext, got nil")
		}
	})

	t.Run("ShortCipherText", func(t *testing.T) {
		if _, err := DecryptAESWithAAD([]byte("short"), key, aad); err == nil {
			t.Error("expected error with short ciphertext, got nil")
		}
	})

	t.Run("RejectBadKeySize", func(t *testing.T) {
		if _, err := EncryptAESWithAAD(plainText, []byte("too short"), aad); err == nil {
			t.Error("expected error with wrong key size, got nil")
		}
	})
}

func TestArgon2id(t *testing.T) {
	params := DefaultArgon2idParams()
	params.MemoryKiB = 8 * 1024 // keep the test fast
	salt := []byte("0123456789abcdef")

	key, err := DeriveArgon2idKey("correct horse battery staple", salt, params)
	if err != nil {
		t.Fatalf("DeriveArgon2idKey failed: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("expected key length 32, got %d", len(key))
	}

	again, _ := DeriveArgon2idKey("correct horse battery staple", salt, params)
	if !bytes.Equal(key, again) {
		t.Error("expected deterministic derivation")
	}

	other, _ := DeriveArgon2idKey("wrong passphrase", salt, params)
	if bytes.Equal(key, other) {
		t.Error("expected different keys for different passphrases")
	}

	t.Run("NormalizesPassphrase", func(t *testing.T) {
		composed, _ := DeriveArgon2idKey("caf\u00e9", salt, params)
		decomposed, _ := DeriveArgon2idKey("cafe\u0301", salt, params)
		if !bytes.Equal(composed, decomposed) {
			t.Error("expected NFC and NFD spellings to derive the same key")
		}
	})

	t.Run("RejectsShortSalt", func(t *testing.T) {
		if _, err := DeriveArgon2idKey("x", []byte("salt"), params); err == nil {
			t.Error("expected error for short salt")
		}
	})

	t.Run("RejectsKeyLen", func(t *testing.T) {
		p := params
		p.KeyLen = 16
		if _, err := DeriveArgon2idKey("x", salt, p); err == nil {
			t.Error("expected error for non-32-byte key length")
		}
	})
}

func TestDefaultArgon2idParams_MeetsOWASPMinimums(t *testing.T) {
	p := DefaultArgon2idParams()
	if p.Time < 3 {
		t.Errorf("default Time=%d is below OWASP recommended minimum of 3", p.Time)
	}
	if p.MemoryKiB < 64*1024 {
		t.Errorf("default MemoryKiB=%d is below 64 MiB", p.MemoryKiB)
	}
}

func TestBytes(t *testing.T) {
	a := []byte{0x01, 0x02, 0x03}
	copied := CopyBytes(a)
	if !bytes.Equal(copied, a) {
		t.Error("CopyBytes failed")
	}
	copied[0] = 0xFF
	if a[0] == 0xFF {
		t.Error("CopyBytes should return a new slice")
	}
	if CopyBytes(nil) != nil {
		t.Error("CopyBytes(nil) should stay nil")
	}

	WipeBytes(copied)
	if !bytes.Equal(copied, make([]byte, 3)) {
		t.Errorf("WipeBytes left %v", copied)
	}
}

func TestEncoding(t *testing.T) {
	encoded := HexEncode([]byte("test string"))
	decoded, err := HexDecode(" " + encoded + "\n")
	if err != nil {
		t.Fatalf("HexDecode failed: %v", err)
	}
	if string(decoded) != "test string" {
		t.Errorf("expected %q, got %q", "test string", decoded)
	}

	if got := Normalize("caf\u00e9"); got != "cafe\u0301" {
		t.Errorf("Normalize failed, got %q", got)
	}
}

func TestRandomBytes(t *testing.T) {
	b1, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes failed: %v", err)
	}
	b2, _ := RandomBytes(32)
	if len(b1) != 32 {
		t.Errorf("expected 32 bytes, got %d", len(b1))
	}
	if bytes.Equal(b1, b2) {
		t.Error("RandomBytes should produce different outputs")
	}
}

package security

import (
	"crypto/ecdsa"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPEM_Inline(t *testing.T) {
	b, err := LoadPEM(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("LoadPEM: %v", err)
	}
	if string(b) != testPrivateKeyPEM {
		t.Error("inline PEM was not returned verbatim")
	}
}

func TestLoadPEM_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(path, []byte(testPublicKeyPEM), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	b, err := LoadPEM(path)
	if err != nil {
		t.Fatalf("LoadPEM: %v", err)
	}
	if string(b) != testPublicKeyPEM {
		t.Error("file PEM content mismatch")
	}
}

func TestLoadPEM_Empty(t *testing.T) {
	if _, err := LoadPEM("   "); err == nil {
		t.Error("LoadPEM on blank input should fail")
	}
}

func TestParseKeys_ECDSA(t *testing.T) {
	priv, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	if _, ok := priv.(*ecdsa.PrivateKey); !ok {
		t.Errorf("private key type = %T, want *ecdsa.PrivateKey", priv)
	}
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if _, ok := pub.(*ecdsa.PublicKey); !ok {
		t.Errorf("public key type = %T, want *ecdsa.PublicKey", pub)
	}
}

func TestParsePrivateKey_Invalid(t *testing.T) {
	if _, err := ParsePrivateKey("-----BEGIN JUNK-----\nAAAA\n-----END JUNK-----"); err == nil {
		t.Error("ParsePrivateKey on junk PEM should fail")
	}
}

package security

import (
	"errors"
	"testing"
	"time"
)

func TestCodec_IssueAndVerifyAccess(t *testing.T) {
	c, err := NewTestCodec(15 * time.Minute)
	if err != nil {
		t.Fatalf("NewTestCodec: %v", err)
	}

	token, exp, err := c.IssueAccess("subject-7")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if token == "" {
		t.Fatal("IssueAccess returned empty token")
	}
	if exp.Before(time.Now()) {
		t.Fatal("expires at in the past")
	}

	sub, err := c.VerifyAccess(token)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if sub != "subject-7" {
		t.Errorf("subject = %q, want %q", sub, "subject-7")
	}
}

func TestCodec_VerifyAccessMalformed(t *testing.T) {
	c, err := NewTestCodec(15 * time.Minute)
	if err != nil {
		t.Fatalf("NewTestCodec: %v", err)
	}

	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if _, err := c.VerifyAccess(tok); !errors.Is(err, ErrMalformed) {
			t.Errorf("VerifyAccess(%q) = %v, want ErrMalformed", tok, err)
		}
	}
}

func TestCodec_VerifyAccessExpired(t *testing.T) {
	c, err := NewTestCodec(-1 * time.Minute)
	if err != nil {
		t.Fatalf("NewTestCodec: %v", err)
	}

	token, _, err := c.IssueAccess("subject-7")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := c.VerifyAccess(token); !errors.Is(err, ErrExpired) {
		t.Errorf("VerifyAccess on expired token = %v, want ErrExpired", err)
	}
}

func TestCodec_VerifyAccessWrongIssuer(t *testing.T) {
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	issuing := NewCodec(signer, pub, "other-issuer", "test-audience", 15*time.Minute)
	verifying := NewCodec(signer, pub, "test-issuer", "test-audience", 15*time.Minute)

	token, _, err := issuing.IssueAccess("subject-7")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := verifying.VerifyAccess(token); !errors.Is(err, ErrMalformed) {
		t.Errorf("VerifyAccess with wrong issuer = %v, want ErrMalformed", err)
	}
}

package dkim

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func generateKeyFile(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	path := filepath.Join(t.TempDir(), "dkim.key")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewSignerFromFile(t *testing.T) {
	path := generateKeyFile(t)

	signer, err := NewSignerFromFile(path, "example.org", "mail")
	if err != nil {
		t.Fatal(err)
	}
	if signer.Domain() != "example.org" || signer.Selector() != "mail" {
		t.Errorf("unexpected signer identity: %s/%s", signer.Domain(), signer.Selector())
	}
}

func TestNewSignerFromFileErrors(t *testing.T) {
	if _, err := NewSignerFromFile(filepath.Join(t.TempDir(), "missing.key"), "example.org", "mail"); err == nil {
		t.Error("expected error for missing key file")
	}

	bad := filepath.Join(t.TempDir(), "bad.key")
	if err := os.WriteFile(bad, []byte("not a pem"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewSignerFromFile(bad, "example.org", "mail"); err == nil {
		t.Error("expected error for non-PEM key file")
	}
}

func TestSign(t *testing.T) {
	path := generateKeyFile(t)
	signer, err := NewSignerFromFile(path, "example.org", "mail")
	if err != nil {
		t.Fatal(err)
	}

	msg := []byte("From: bot@example.org\r\nTo: ada@example.org\r\nSubject: hi\r\n\r\nbody\r\n")
	signed, err := signer.Sign(msg)
	if err != nil {
		t.Fatal(err)
	}

	s := string(signed)
	if !strings.Contains(s, "DKIM-Signature:") {
		t.Error("signed message has no DKIM-Signature header")
	}
	if !strings.Contains(s, "d=example.org") || !strings.Contains(s, "s=mail") {
		t.Errorf("signature missing identity tags: %s", s[:strings.Index(s, "\r\n\r\n")])
	}
}

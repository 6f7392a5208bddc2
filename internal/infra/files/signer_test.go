package files

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"challenge-engine/internal/domain"
)

func TestHMACSignerDownloadRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	signer := NewHMACSigner("https://files.example.com/", "secret", time.Minute, clock)
	cert := domain.Certificate{CertificateID: "CERT-1", ChallengeID: "c1", VerificationCode: "ABC"}

	raw, err := signer.DownloadURL(context.Background(), cert)
	if err != nil {
		t.Fatalf("download url: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key != "certificates/c1/CERT-1.pdf" {
		t.Fatalf("unexpected key %q", key)
	}
	expires, sig := u.Query().Get("expires"), u.Query().Get("sig")
	if !signer.Valid(key, expires, sig) {
		t.Fatalf("expected signature to validate")
	}
	if signer.Valid("certificates/c1/CERT-2.pdf", expires, sig) {
		t.Fatalf("signature must be bound to the object key")
	}

	now = now.Add(2 * time.Minute)
	if signer.Valid(key, expires, sig) {
		t.Fatalf("expected link to expire")
	}
}

func TestHMACSignerShareURL(t *testing.T) {
	signer := NewHMACSigner("https://certs.example.com", "s", 0, nil)
	got, _ := signer.ShareURL(context.Background(), domain.Certificate{VerificationCode: "ABC123"})
	if got != "https://certs.example.com/verify/ABC123" {
		t.Fatalf("unexpected share url %q", got)
	}
}

package files

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"challenge-engine/internal/domain"
)

// ObjectKey is where a rendered certificate artifact is expected to live in file storage.
func ObjectKey(cert domain.Certificate) string {
	return "certificates/" + cert.ChallengeID + "/" + cert.CertificateID + ".pdf"
}

// HMACSigner builds expiring download links validated by the file server with a shared
// secret, and plain public links for sharing.
type HMACSigner struct {
	baseURL string
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
}

func NewHMACSigner(baseURL, secret string, ttl time.Duration, now func() time.Time) *HMACSigner {
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &HMACSigner{baseURL: strings.TrimRight(baseURL, "/"), secret: []byte(secret), ttl: ttl, now: now}
}

func (s *HMACSigner) DownloadURL(_ context.Context, cert domain.Certificate) (string, error) {
	expires := strconv.FormatInt(s.now().Add(s.ttl).Unix(), 10)
	key := ObjectKey(cert)
	q := url.Values{}
	q.Set("expires", expires)
	q.Set("sig", s.sign(key, expires))
	return fmt.Sprintf("%s/%s?%s", s.baseURL, key, q.Encode()), nil
}

func (s *HMACSigner) ShareURL(_ context.Context, cert domain.Certificate) (string, error) {
	return fmt.Sprintf("%s/verify/%s", s.baseURL, url.PathEscape(cert.VerificationCode)), nil
}

// Valid reports whether sig matches key and expires and the link has not expired.
func (s *HMACSigner) Valid(key, expires, sig string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || s.now().Unix() > exp {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(s.sign(key, expires)))
}

func (s *HMACSigner) sign(key, expires string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(key))
	mac.Write([]byte{0})
	mac.Write([]byte(expires))
	return hex.EncodeToString(mac.Sum(nil))
}

package files

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"challenge-engine/internal/domain"
)

// GCSSigner issues V4 signed URLs for certificate artifacts stored in a GCS bucket.
type GCSSigner struct {
	client  *storage.Client
	bucket  string
	shareTo string
	ttl     time.Duration
	now     func() time.Time
}

// NewGCSClient opens a storage client; credentialsFile may be empty to use ADC.
func NewGCSClient(ctx context.Context, credentialsFile string) (*storage.Client, error) {
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadOnly)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	return storage.NewClient(ctx, opts...)
}

// NewGCSSigner signs download links against bucket; share links point at shareBaseURL.
func NewGCSSigner(client *storage.Client, bucket, shareBaseURL string, ttl time.Duration) *GCSSigner {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &GCSSigner{client: client, bucket: bucket, shareTo: shareBaseURL, ttl: ttl, now: time.Now}
}

func (s *GCSSigner) DownloadURL(_ context.Context, cert domain.Certificate) (string, error) {
	u, err := s.client.Bucket(s.bucket).SignedURL(ObjectKey(cert), &storage.SignedURLOptions{
		Method:  "GET",
		Expires: s.now().Add(s.ttl),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("gcs signed url: %w", err)
	}
	return u, nil
}

func (s *GCSSigner) ShareURL(ctx context.Context, cert domain.Certificate) (string, error) {
	return NewHMACSigner(s.shareTo, "", s.ttl, s.now).ShareURL(ctx, cert)
}

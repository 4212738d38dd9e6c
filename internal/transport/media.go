package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPMediaResolver fetches media attachments by URL at send time.
type HTTPMediaResolver struct {
	http *http.Client
	// MaxBytes caps the attachment size; zero means no cap.
	MaxBytes int64
}

func NewHTTPMediaResolver() *HTTPMediaResolver {
	return &HTTPMediaResolver{
		http:     &http.Client{Timeout: 60 * time.Second},
		MaxBytes: 64 << 20,
	}
}

// Resolve downloads the referenced binary. A missing or empty reference
// maps to ErrMediaNotFound so the scheduler can apply its skip policy.
func (r *HTTPMediaResolver) Resolve(ctx context.Context, mediaURL string) ([]byte, error) {
	if mediaURL == "" {
		return nil, fmt.Errorf("empty media reference: %w", ErrMediaNotFound)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", mediaURL, ErrMediaNotFound)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", mediaURL, ErrMediaNotFound)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s: %w", mediaURL, resp.Status, ErrMediaNotFound)
	}

	reader := io.Reader(resp.Body)
	if r.MaxBytes > 0 {
		reader = io.LimitReader(resp.Body, r.MaxBytes)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", mediaURL, ErrMediaNotFound)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s is empty: %w", mediaURL, ErrMediaNotFound)
	}
	return data, nil
}

package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"photorevive/internal/domain"
)

const maxArtifactBytes = 256 << 20 // vendors cap video output well below this

// Mirrorer copies a vendor-hosted artifact URL into the configured object
// store. Downloads are retried a bounded number of times before the failure
// surfaces as domain.ErrMirrorFailure.
type Mirrorer struct {
	objects     ObjectStore
	httpClient  *http.Client
	maxAttempts int
	retryDelay  time.Duration
	logger      zerolog.Logger
}

type MirrorerOptions struct {
	Objects     ObjectStore
	HTTPClient  *http.Client
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      zerolog.Logger
}

func NewMirrorer(opts MirrorerOptions) *Mirrorer {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &Mirrorer{
		objects:     opts.Objects,
		httpClient:  httpClient,
		maxAttempts: attempts,
		retryDelay:  delay,
		logger:      opts.Logger,
	}
}

// Mirror downloads sourceURL and persists it under an owner-scoped key.
// Returns the durable reference.
func (m *Mirrorer) Mirror(ctx context.Context, sourceURL, ownerID, contentKind string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(m.retryDelay * time.Duration(attempt-1)):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", domain.ErrMirrorFailure, ctx.Err())
			}
		}
		ref, err := m.mirrorOnce(ctx, sourceURL, ownerID, contentKind)
		if err == nil {
			return ref, nil
		}
		lastErr = err
		m.logger.Warn().Err(err).Int("attempt", attempt).Str("source", sourceURL).Msg("mirror attempt failed")
	}
	return "", fmt.Errorf("%w: %d attempts: %v", domain.ErrMirrorFailure, m.maxAttempts, lastErr)
}

func (m *Mirrorer) mirrorOnce(ctx context.Context, sourceURL, ownerID, contentKind string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download artifact: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes))
	if err != nil {
		return "", fmt.Errorf("read artifact body: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("download artifact: empty body")
	}

	contentType := resp.Header.Get("Content-Type")
	key := fmt.Sprintf("mirrored/%s/%s%s", ownerID, uuid.NewString(), extensionFor(contentType, contentKind))
	ref, err := m.objects.Put(ctx, key, data, contentType)
	if err != nil {
		return "", fmt.Errorf("persist artifact: %w", err)
	}
	return ref, nil
}

func extensionFor(contentType, contentKind string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav":
		return ".wav"
	}
	switch contentKind {
	case "video":
		return ".mp4"
	case "audio":
		return ".mp3"
	case "image":
		return ".jpg"
	default:
		return ".bin"
	}
}

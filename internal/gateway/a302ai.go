package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	a302ColorizePath = "/302/submit/colorize"
	a302FetchPath    = "/302/fetch"
)

// A302Options configures the 302.AI adapter.
type A302Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

// A302 adapts the 302.AI DDColor colorization task API.
type A302 struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewA302(opts A302Options) *A302 {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 45 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.302.ai"
	}
	return &A302{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

type a302SubmitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

type a302FetchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output struct {
		ImageURL string `json:"image_url"`
		Images   []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"output"`
	Error string `json:"error"`
}

func (a *A302) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if a.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	body, err := json.Marshal(map[string]any{"image": req.SourceRef})
	if err != nil {
		return "", fmt.Errorf("302ai: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+a302ColorizePath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("302ai: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", &TransientError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &TransientError{Err: err}
	}
	if resp.StatusCode >= 500 {
		return "", &TransientError{Err: fmt.Errorf("302ai: status %d", resp.StatusCode)}
	}
	var decoded a302SubmitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("302ai: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || decoded.ID == "" {
		msg := decoded.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("%w: %s", ErrSubmissionRejected, msg)
	}
	return decoded.ID, nil
}

func (a *A302) Poll(ctx context.Context, externalID string) (PollResult, error) {
	if a.apiKey == "" {
		return PollResult{}, ErrMissingAPIKey
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+a302FetchPath+"?id="+externalID, nil)
	if err != nil {
		return PollResult{}, fmt.Errorf("302ai: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return PollResult{}, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PollResult{}, &TransientError{Err: err}
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return PollResult{}, &TransientError{Err: fmt.Errorf("302ai: status %d", resp.StatusCode)}
	}
	var decoded a302FetchResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return PollResult{}, fmt.Errorf("302ai: decode response: %w", err)
	}

	switch strings.ToLower(decoded.Status) {
	case "succeeded", "completed", "success":
		urls := make([]string, 0, 1)
		if decoded.Output.ImageURL != "" {
			urls = append(urls, decoded.Output.ImageURL)
		}
		for _, img := range decoded.Output.Images {
			if img.URL != "" {
				urls = append(urls, img.URL)
			}
		}
		if len(urls) == 0 {
			return PollResult{Status: StatusFailed, ErrorDetail: "302ai: task succeeded without artifacts"}, nil
		}
		return PollResult{Status: StatusSucceeded, ArtifactURLs: urls}, nil
	case "failed", "error", "canceled":
		detail := decoded.Error
		if detail == "" {
			detail = "302ai: task " + strings.ToLower(decoded.Status)
		}
		return PollResult{Status: StatusFailed, ErrorDetail: detail}, nil
	default:
		return PollResult{Status: StatusRunning, Progress: decoded.Status}, nil
	}
}

var _ Gateway = (*A302)(nil)

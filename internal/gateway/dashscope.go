package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"photorevive/internal/domain"
)

// ErrMissingAPIKey indicates that a client was configured without credentials.
var ErrMissingAPIKey = errors.New("gateway: api key is required")

const (
	dashScopeVideoSynthesisPath = "/api/v1/services/aigc/video-generation/video-synthesis"
	dashScopeImage2VideoPath    = "/api/v1/services/aigc/image2video/video-synthesis"
	dashScopeTasksPath          = "/api/v1/tasks/"
)

// DashScopeOptions configures the DashScope adapter.
type DashScopeOptions struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

// DashScope adapts the Alibaba DashScope async task API. It serves three
// job kinds: video synthesis (wanx i2v), LivePortrait lip-sync and
// emoji-driven face animation. All three share the task polling endpoint.
type DashScope struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewDashScope(opts DashScopeOptions) *DashScope {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com"
	}
	return &DashScope{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

type dashScopeSubmitRequest struct {
	Model      string         `json:"model"`
	Input      map[string]any `json:"input"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type dashScopeTaskResponse struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		VideoURL   string `json:"video_url"`
		Results    []struct {
			URL string `json:"url"`
		} `json:"results"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (d *DashScope) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if d.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	path, payload, err := d.shapeRequest(req)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("dashscope: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("dashscope: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-DashScope-Async", "enable")

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return "", &TransientError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &TransientError{Err: err}
	}
	if resp.StatusCode >= 500 {
		return "", &TransientError{Err: fmt.Errorf("dashscope: status %d", resp.StatusCode)}
	}
	var decoded dashScopeTaskResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("dashscope: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || decoded.Output.TaskID == "" {
		msg := decoded.Message
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("%w: %s", ErrSubmissionRejected, msg)
	}
	return decoded.Output.TaskID, nil
}

func (d *DashScope) Poll(ctx context.Context, externalID string) (PollResult, error) {
	if d.apiKey == "" {
		return PollResult{}, ErrMissingAPIKey
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+dashScopeTasksPath+externalID, nil)
	if err != nil {
		return PollResult{}, fmt.Errorf("dashscope: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return PollResult{}, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PollResult{}, &TransientError{Err: err}
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return PollResult{}, &TransientError{Err: fmt.Errorf("dashscope: status %d", resp.StatusCode)}
	}
	var decoded dashScopeTaskResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return PollResult{}, fmt.Errorf("dashscope: decode response: %w", err)
	}

	switch decoded.Output.TaskStatus {
	case "SUCCEEDED":
		urls := make([]string, 0, 1)
		if decoded.Output.VideoURL != "" {
			urls = append(urls, decoded.Output.VideoURL)
		}
		for _, r := range decoded.Output.Results {
			if r.URL != "" {
				urls = append(urls, r.URL)
			}
		}
		if len(urls) == 0 {
			return PollResult{
				Status:      StatusFailed,
				ErrorDetail: "dashscope: task succeeded without artifacts",
			}, nil
		}
		return PollResult{Status: StatusSucceeded, ArtifactURLs: urls}, nil
	case "FAILED", "CANCELED", "UNKNOWN":
		detail := decoded.Output.Message
		if detail == "" {
			detail = "dashscope: task " + strings.ToLower(decoded.Output.TaskStatus)
		}
		return PollResult{Status: StatusFailed, ErrorDetail: detail}, nil
	default:
		// PENDING / RUNNING and any future in-flight states.
		return PollResult{Status: StatusRunning, Progress: decoded.Output.TaskStatus}, nil
	}
}

func (d *DashScope) shapeRequest(req SubmitRequest) (string, dashScopeSubmitRequest, error) {
	prompt, _ := req.Params["prompt"].(string)
	switch req.Kind {
	case domain.JobKindVideoSynthesis:
		if prompt == "" {
			prompt = "animate the photo with natural motion and expression"
		}
		resolution, _ := req.Params["resolution"].(string)
		if resolution == "" {
			resolution = "720P"
		}
		return dashScopeVideoSynthesisPath, dashScopeSubmitRequest{
			Model: "wanx2.1-i2v-turbo",
			Input: map[string]any{"prompt": prompt, "img_url": req.SourceRef},
			Parameters: map[string]any{
				"resolution":    resolution,
				"prompt_extend": true,
			},
		}, nil
	case domain.JobKindLivePortrait:
		audioURL, _ := req.Params["audio_url"].(string)
		if audioURL == "" {
			return "", dashScopeSubmitRequest{}, fmt.Errorf("%w: audio_url is required for lip-sync", ErrSubmissionRejected)
		}
		return dashScopeImage2VideoPath, dashScopeSubmitRequest{
			Model: "liveportrait",
			Input: map[string]any{"image_url": req.SourceRef, "audio_url": audioURL},
		}, nil
	case domain.JobKindEmojiVideo:
		input := map[string]any{"image_url": req.SourceRef, "driven_id": drivenID(req.Params)}
		if bbox, ok := req.Params["face_bbox"]; ok {
			input["face_bbox"] = bbox
		}
		if bbox, ok := req.Params["ext_bbox"]; ok {
			input["ext_bbox"] = bbox
		}
		return dashScopeImage2VideoPath, dashScopeSubmitRequest{
			Model: "emoji-v1",
			Input: input,
		}, nil
	default:
		return "", dashScopeSubmitRequest{}, fmt.Errorf("dashscope: unsupported kind %q", req.Kind)
	}
}

func drivenID(params map[string]any) string {
	if id, ok := params["driven_id"].(string); ok && id != "" {
		return id
	}
	return "mengwa_kaixin"
}

var _ Gateway = (*DashScope)(nil)

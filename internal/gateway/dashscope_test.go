package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"photorevive/internal/domain"
)

func newDashScopeTestServer(t *testing.T, handler http.HandlerFunc) (*DashScope, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewDashScope(DashScopeOptions{APIKey: "test-key", BaseURL: srv.URL}), srv
}

func TestDashScopeSubmitVideoSynthesis(t *testing.T) {
	var captured struct {
		path   string
		async  string
		auth   string
		body   dashScopeSubmitRequest
		called bool
	}
	gw, _ := newDashScopeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		captured.called = true
		captured.path = r.URL.Path
		captured.async = r.Header.Get("X-DashScope-Async")
		captured.auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&captured.body)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"output": map[string]any{"task_id": "task-123", "task_status": "PENDING"},
		})
	})

	externalID, err := gw.Submit(context.Background(), SubmitRequest{
		JobID:     "job-1",
		Kind:      domain.JobKindVideoSynthesis,
		SourceRef: "https://photos.example.com/a.jpg",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if externalID != "task-123" {
		t.Fatalf("external id = %q", externalID)
	}
	if !captured.called {
		t.Fatal("vendor endpoint not called")
	}
	if captured.path != dashScopeVideoSynthesisPath {
		t.Fatalf("path = %q", captured.path)
	}
	if captured.async != "enable" {
		t.Fatalf("X-DashScope-Async = %q, want enable", captured.async)
	}
	if captured.auth != "Bearer test-key" {
		t.Fatalf("authorization = %q", captured.auth)
	}
	if captured.body.Model != "wanx2.1-i2v-turbo" {
		t.Fatalf("model = %q", captured.body.Model)
	}
	if captured.body.Input["img_url"] != "https://photos.example.com/a.jpg" {
		t.Fatalf("img_url = %v", captured.body.Input["img_url"])
	}
}

func TestDashScopeSubmitLivePortraitRequiresAudio(t *testing.T) {
	gw := NewDashScope(DashScopeOptions{APIKey: "test-key"})
	_, err := gw.Submit(context.Background(), SubmitRequest{
		JobID:     "job-1",
		Kind:      domain.JobKindLivePortrait,
		SourceRef: "https://photos.example.com/a.jpg",
	})
	if !errors.Is(err, ErrSubmissionRejected) {
		t.Fatalf("expected rejection without audio_url, got %v", err)
	}
}

func TestDashScopeSubmitEmojiDefaults(t *testing.T) {
	var body dashScopeSubmitRequest
	gw, _ := newDashScopeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"output": map[string]any{"task_id": "task-9"},
		})
	})

	if _, err := gw.Submit(context.Background(), SubmitRequest{
		JobID:     "job-1",
		Kind:      domain.JobKindEmojiVideo,
		SourceRef: "https://photos.example.com/a.jpg",
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if body.Model != "emoji-v1" {
		t.Fatalf("model = %q", body.Model)
	}
	if body.Input["driven_id"] != "mengwa_kaixin" {
		t.Fatalf("driven_id = %v, want default template", body.Input["driven_id"])
	}
}

func TestDashScopeSubmitMissingKey(t *testing.T) {
	gw := NewDashScope(DashScopeOptions{})
	if _, err := gw.Submit(context.Background(), SubmitRequest{Kind: domain.JobKindVideoSynthesis}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestDashScopePollStatuses(t *testing.T) {
	tests := []struct {
		name       string
		response   map[string]any
		wantStatus Status
		wantURLs   int
	}{
		{
			name: "succeeded with video url",
			response: map[string]any{
				"output": map[string]any{"task_id": "t", "task_status": "SUCCEEDED", "video_url": "https://v.example.com/out.mp4"},
			},
			wantStatus: StatusSucceeded,
			wantURLs:   1,
		},
		{
			name: "succeeded with results list",
			response: map[string]any{
				"output": map[string]any{
					"task_status": "SUCCEEDED",
					"results":     []map[string]any{{"url": "https://v.example.com/1.mp4"}, {"url": "https://v.example.com/2.mp4"}},
				},
			},
			wantStatus: StatusSucceeded,
			wantURLs:   2,
		},
		{
			name: "succeeded without artifacts fails",
			response: map[string]any{
				"output": map[string]any{"task_status": "SUCCEEDED"},
			},
			wantStatus: StatusFailed,
		},
		{
			name: "failed carries message",
			response: map[string]any{
				"output": map[string]any{"task_status": "FAILED", "message": "face not detected"},
			},
			wantStatus: StatusFailed,
		},
		{
			name: "in flight is running",
			response: map[string]any{
				"output": map[string]any{"task_status": "RUNNING"},
			},
			wantStatus: StatusRunning,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gw, _ := newDashScopeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != dashScopeTasksPath+"task-1" {
					t.Errorf("path = %q", r.URL.Path)
				}
				_ = json.NewEncoder(w).Encode(tc.response)
			})
			result, err := gw.Poll(context.Background(), "task-1")
			if err != nil {
				t.Fatalf("poll: %v", err)
			}
			if result.Status != tc.wantStatus {
				t.Fatalf("status = %s, want %s", result.Status, tc.wantStatus)
			}
			if len(result.ArtifactURLs) != tc.wantURLs {
				t.Fatalf("artifact urls = %v, want %d", result.ArtifactURLs, tc.wantURLs)
			}
			if tc.wantStatus == StatusFailed && result.ErrorDetail == "" {
				t.Fatal("failed result must carry a detail")
			}
		})
	}
}

func TestDashScopePollServerErrorIsTransient(t *testing.T) {
	gw, _ := newDashScopeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := gw.Poll(context.Background(), "task-1")
	if !IsTransient(err) {
		t.Fatalf("5xx must be transient, got %v", err)
	}
}

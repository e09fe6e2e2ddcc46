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

	"golang.org/x/text/language"
)

const maxTTSTextLength = 5000

// Voice catalogue: one default neural voice per supported language.
var ttsVoices = []struct {
	tag   language.Tag
	voice string
}{
	{language.SimplifiedChinese, "zh-CN-XiaoxiaoNeural"},
	{language.TraditionalChinese, "zh-TW-HsiaoChenNeural"},
	{language.AmericanEnglish, "en-US-AriaNeural"},
	{language.BritishEnglish, "en-GB-SoniaNeural"},
	{language.Japanese, "ja-JP-NanamiNeural"},
	{language.Korean, "ko-KR-SunHiNeural"},
	{language.French, "fr-FR-DeniseNeural"},
	{language.German, "de-DE-KatjaNeural"},
	{language.Spanish, "es-ES-ElviraNeural"},
}

var ttsMatcher = func() language.Matcher {
	tags := make([]language.Tag, len(ttsVoices))
	for i, v := range ttsVoices {
		tags[i] = v.tag
	}
	return language.NewMatcher(tags)
}()

// VoiceForLocale picks the catalogue voice closest to the requested locale.
func VoiceForLocale(locale string) string {
	if strings.TrimSpace(locale) == "" {
		return ttsVoices[0].voice
	}
	_, index, _ := ttsMatcher.Match(language.Make(locale))
	return ttsVoices[index].voice
}

// EdgeTTSOptions configures the Edge TTS adapter.
type EdgeTTSOptions struct {
	BaseURL        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

// EdgeTTS adapts a speech-synthesis service that completes synthesis within
// the submit call. To fit the uniform submit/poll surface the adapter
// encodes the finished audio URL into the external id, so a poll from any
// process resolves without adapter-side state.
type EdgeTTS struct {
	baseURL    string
	httpClient *http.Client
}

func NewEdgeTTS(opts EdgeTTSOptions) *EdgeTTS {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &EdgeTTS{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
	}
}

const ttsExternalIDPrefix = "tts:"

type edgeTTSResponse struct {
	AudioURL string `json:"audio_url"`
	Error    string `json:"error"`
}

func (e *EdgeTTS) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	text, _ := req.Params["text"].(string)
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: text is required", ErrSubmissionRejected)
	}
	if len(text) > maxTTSTextLength {
		return "", fmt.Errorf("%w: text exceeds %d characters", ErrSubmissionRejected, maxTTSTextLength)
	}
	voice, _ := req.Params["voice"].(string)
	if voice == "" {
		locale, _ := req.Params["locale"].(string)
		voice = VoiceForLocale(locale)
	}
	if e.baseURL == "" {
		return "", fmt.Errorf("%w: tts backend not configured", ErrSubmissionRejected)
	}

	body, err := json.Marshal(map[string]any{"text": text, "voice": voice})
	if err != nil {
		return "", fmt.Errorf("edgetts: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("edgetts: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return "", &TransientError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &TransientError{Err: err}
	}
	if resp.StatusCode >= 500 {
		return "", &TransientError{Err: fmt.Errorf("edgetts: status %d", resp.StatusCode)}
	}
	var decoded edgeTTSResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("edgetts: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || decoded.AudioURL == "" {
		msg := decoded.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("%w: %s", ErrSubmissionRejected, msg)
	}

	return ttsExternalIDPrefix + decoded.AudioURL, nil
}

func (e *EdgeTTS) Poll(ctx context.Context, externalID string) (PollResult, error) {
	audioURL, ok := strings.CutPrefix(externalID, ttsExternalIDPrefix)
	if !ok || audioURL == "" {
		return PollResult{Status: StatusFailed, ErrorDetail: "edgetts: unknown task " + externalID}, nil
	}
	return PollResult{Status: StatusSucceeded, ArtifactURLs: []string{audioURL}}, nil
}

var _ Gateway = (*EdgeTTS)(nil)

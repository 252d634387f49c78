package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/blackboard-backend/internal/observability"
	"github.com/yungbote/blackboard-backend/internal/platform/envutil"
	"github.com/yungbote/blackboard-backend/internal/platform/httpx"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
)

// Client is the subset of the OpenAI API the lesson backend talks to.
type Client interface {
	// Structured outputs (json_schema). Returns the raw output_text without parsing it.
	GenerateStructuredText(ctx context.Context, system, user, schemaName string, schema map[string]any) (string, error)

	// Structured outputs (json_schema), decoded.
	GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error)

	// Image generation (raster). Returns bytes (PNG by default).
	GenerateImage(ctx context.Context, req ImageRequest) (ImageGeneration, error)

	// Text to speech. Returns encoded audio bytes.
	SynthesizeSpeech(ctx context.Context, req SpeechRequest) (Speech, error)
}

type Config struct {
	APIKey           string
	BaseURL          string
	Model            string
	ImageModel       string
	ImageSize        string
	SpeechModel      string
	SpeechVoice      string
	Timeout          time.Duration
	ResponsesTimeout time.Duration
	MaxRetries       int
	// Nil disables temperature.
	Temperature *float64
	// Models (exact or "prefix*") that reject the temperature parameter.
	NoTemperatureModels string
}

// ConfigFromEnv reads OPENAI_* variables.
func ConfigFromEnv() Config {
	cfg := Config{
		APIKey:              envutil.String("OPENAI_API_KEY", ""),
		BaseURL:             envutil.String("OPENAI_BASE_URL", "https://api.openai.com"),
		Model:               envutil.String("OPENAI_MODEL", "gpt-4.1-mini"),
		ImageModel:          envutil.String("OPENAI_IMAGE_MODEL", "gpt-image-1"),
		ImageSize:           envutil.String("OPENAI_IMAGE_SIZE", ""),
		SpeechModel:         envutil.String("OPENAI_SPEECH_MODEL", "gpt-4o-mini-tts"),
		SpeechVoice:         envutil.String("OPENAI_SPEECH_VOICE", "alloy"),
		Timeout:             envutil.Duration("OPENAI_TIMEOUT_SECONDS", 180*time.Second),
		ResponsesTimeout:    envutil.Duration("OPENAI_RESPONSES_TIMEOUT_SECONDS", 0),
		MaxRetries:          envutil.Int("OPENAI_MAX_RETRIES", 4),
		NoTemperatureModels: envutil.String("OPENAI_NO_TEMPERATURE_MODELS", ""),
	}
	raw := strings.ToLower(envutil.String("OPENAI_TEMPERATURE", ""))
	switch {
	case envutil.Bool("OPENAI_DISABLE_TEMPERATURE", false):
	case raw == "off" || raw == "none" || raw == "false":
	default:
		temp := 0.7
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			temp = f
		}
		cfg.Temperature = &temp
	}
	return cfg
}

type client struct {
	log             *logger.Logger
	baseURL         string
	apiKey          string
	model           string
	imageModel      string
	imageSize       string
	speechModel     string
	speechVoice     string
	httpClient      *http.Client
	responsesClient *http.Client
	maxRetries      int
	temperature     *float64
	noTempModels    map[string]bool
	noTempPrefixes  []string

	// Models that rejected temperature at runtime.
	noTempMu   sync.RWMutex
	noTempSeen map[string]time.Time
	noTempTTL  time.Duration
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	responsesTimeout := cfg.ResponsesTimeout
	if responsesTimeout <= 0 {
		responsesTimeout = timeout
		if responsesTimeout < 600*time.Second {
			responsesTimeout = 600 * time.Second
		}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	noTempModels, noTempPrefixes := parseNoTempModelRules(cfg.NoTemperatureModels)
	return &client{
		log:             log.With("service", "OpenAIClient"),
		baseURL:         baseURL,
		apiKey:          apiKey,
		model:           strings.TrimSpace(cfg.Model),
		imageModel:      strings.TrimSpace(cfg.ImageModel),
		imageSize:       strings.TrimSpace(cfg.ImageSize),
		speechModel:     strings.TrimSpace(cfg.SpeechModel),
		speechVoice:     strings.TrimSpace(cfg.SpeechVoice),
		httpClient:      &http.Client{Timeout: timeout},
		responsesClient: &http.Client{Timeout: responsesTimeout},
		maxRetries:      maxRetries,
		temperature:     cfg.Temperature,
		noTempModels:    noTempModels,
		noTempPrefixes:  noTempPrefixes,
		noTempSeen:      map[string]time.Time{},
		noTempTTL:       24 * time.Hour,
	}, nil
}

func normalizeModelKey(m string) string {
	return strings.ToLower(strings.TrimSpace(m))
}

// parseNoTempModelRules accepts a comma-separated list; a "*" suffix is a prefix match.
func parseNoTempModelRules(raw string) (map[string]bool, []string) {
	m := map[string]bool{}
	var prefixes []string
	for _, part := range strings.Split(raw, ",") {
		s := normalizeModelKey(part)
		if s == "" {
			continue
		}
		if strings.HasSuffix(s, "*") {
			p := strings.TrimSpace(strings.TrimRight(strings.TrimSuffix(s, "*"), "-_./:"))
			if p != "" {
				prefixes = append(prefixes, p)
			}
			continue
		}
		m[s] = true
	}
	return m, prefixes
}

func (c *client) modelIsNoTemp(model string) bool {
	m := normalizeModelKey(model)
	if m == "" {
		return false
	}
	if c.noTempModels[m] {
		return true
	}
	for _, p := range c.noTempPrefixes {
		if strings.HasPrefix(m, p) {
			return true
		}
	}
	c.noTempMu.RLock()
	ts, ok := c.noTempSeen[m]
	c.noTempMu.RUnlock()
	return ok && (c.noTempTTL <= 0 || time.Since(ts) < c.noTempTTL)
}

func (c *client) noteNoTempModel(model string) {
	m := normalizeModelKey(model)
	if m == "" {
		return
	}
	c.noTempMu.Lock()
	c.noTempSeen[m] = time.Now().UTC()
	c.noTempMu.Unlock()
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *openAIHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func isUnsupportedParam(err error, param string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, param) {
		return false
	}
	for _, hint := range []string{
		"unsupported parameter",
		"unknown parameter",
		"unrecognized parameter",
		"not supported",
		"does not support",
		"only the default",
		"unsupported_value",
	} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

func (c *client) doOnce(ctx context.Context, httpClient *http.Client, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

// doRaw sends a JSON request with retries and returns the raw response body.
func (c *client) doRaw(ctx context.Context, httpClient *http.Client, method, path, model string, body any) (*http.Response, []byte, error) {
	backoff := 1 * time.Second
	start := time.Now()

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, httpClient, method, path, body)
		if err == nil {
			in, out := extractUsageFromRaw(resp, raw)
			observability.Current().ObserveLLMRequest(model, path, statusFromResp(resp), time.Since(start), in, out)
			return resp, raw, nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			observability.Current().ObserveLLMRequest(model, path, statusFromRespErr(resp, err), time.Since(start), 0, 0)
			return resp, raw, err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.SleepContext(ctx, sleepFor); err != nil {
			return nil, nil, err
		}
		backoff *= 2
	}
	return nil, nil, fmt.Errorf("unreachable retry loop")
}

func (c *client) doJSON(ctx context.Context, httpClient *http.Client, path, model string, body any, out any) error {
	_, raw, err := c.doRaw(ctx, httpClient, http.MethodPost, path, model, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("openai decode error: %w; raw=%s", err, string(raw))
	}
	return nil
}

func (c *client) downloadBytes(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	// Signed blob URLs break when they receive an unrelated Authorization header.
	if shouldAttachAuth(c.baseURL, rawURL) {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, "", readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, strings.TrimSpace(resp.Header.Get("Content-Type")), nil
}

func shouldAttachAuth(baseURL, rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	if bu, err := url.Parse(baseURL); err == nil && strings.EqualFold(bu.Hostname(), host) {
		return true
	}
	return host == "openai.com" || strings.HasSuffix(host, ".openai.com")
}

func extractUsageFromRaw(resp *http.Response, raw []byte) (int, int) {
	if len(raw) == 0 || resp == nil || !strings.Contains(resp.Header.Get("Content-Type"), "json") {
		return 0, 0
	}
	var payload struct {
		Usage struct {
			InputTokens      int `json:"input_tokens"`
			OutputTokens     int `json:"output_tokens"`
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, 0
	}
	u := payload.Usage
	if u.InputTokens == 0 && u.OutputTokens == 0 {
		return u.PromptTokens, u.CompletionTokens
	}
	return u.InputTokens, u.OutputTokens
}

func statusFromResp(resp *http.Response) string {
	if resp == nil {
		return "unknown"
	}
	return strconv.Itoa(resp.StatusCode)
}

func statusFromRespErr(resp *http.Response, err error) string {
	if resp != nil {
		return strconv.Itoa(resp.StatusCode)
	}
	var httpErr *openAIHTTPError
	if errors.As(err, &httpErr) {
		return strconv.Itoa(httpErr.StatusCode)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

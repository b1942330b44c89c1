// Package cloud adapts the neural-voice HTTP service to the provider
// contract. Synthesis is a two-step exchange: a JSON request yields an
// audio URL plus cost accounting, then the audio is fetched separately.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/hearsay-app/hearsay/internal/providers"
	"github.com/hearsay-app/hearsay/internal/voices"
)

// Config holds the cloud service settings.
type Config struct {
	BaseURL string `yaml:"base_url" env:"HEARSAY_CLOUD_BASE_URL" envDefault:"https://api.hearsay.app"`
	APIKey  string `yaml:"api_key" env:"HEARSAY_CLOUD_API_KEY"`

	// RequestTimeout bounds the synthesize call; FetchTimeout bounds the
	// audio download.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"HEARSAY_CLOUD_REQUEST_TIMEOUT" envDefault:"15s"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout" env:"HEARSAY_CLOUD_FETCH_TIMEOUT" envDefault:"20s"`

	// MaxTextLen guards against oversized requests before they leave the
	// process; the service rejects them anyway, without a retry.
	MaxTextLen int `yaml:"max_text_len" env:"HEARSAY_CLOUD_MAX_TEXT_LEN" envDefault:"5000"`

	// RequestsPerMinute keeps synthesis cost and service pressure bounded.
	RequestsPerMinute int `yaml:"requests_per_minute" env:"HEARSAY_CLOUD_RPM" envDefault:"60"`

	// SampleRate and Channels describe the PCM the service returns.
	SampleRate int `yaml:"sample_rate" env:"HEARSAY_CLOUD_SAMPLE_RATE" envDefault:"22050"`
	Channels   int `yaml:"channels" env:"HEARSAY_CLOUD_CHANNELS" envDefault:"1"`
}

// DefaultConfig returns the default cloud settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://api.hearsay.app",
		RequestTimeout:    15 * time.Second,
		FetchTimeout:      20 * time.Second,
		MaxTextLen:        5000,
		RequestsPerMinute: 60,
		SampleRate:        22050,
		Channels:          1,
	}
}

// Client implements providers.Provider against the HTTP service.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

var _ providers.Provider = (*Client)(nil)

// New creates a cloud provider client.
func New(cfg Config, logger *log.Logger) *Client {
	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaults.FetchTimeout
	}
	if cfg.MaxTextLen <= 0 {
		cfg.MaxTextLen = defaults.MaxTextLen
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = defaults.RequestsPerMinute
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaults.SampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = defaults.Channels
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		logger:     logger,
	}
}

// Kind reports the cloud provider kind.
func (c *Client) Kind() voices.ProviderKind { return voices.Cloud }

type voiceInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
}

// Voices fetches the service's voice list.
func (c *Client) Voices(ctx context.Context) ([]voices.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/voices", nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", providers.ErrUnreachable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: voices returned %d", providers.ErrUnreachable, resp.StatusCode)
	}

	var infos []voiceInfo
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		return nil, fmt.Errorf("decode voices: %w", err)
	}

	out := make([]voices.Voice, 0, len(infos))
	for _, info := range infos {
		out = append(out, voices.Voice{
			ID:          info.ID,
			Provider:    voices.Cloud,
			Language:    info.Language,
			DisplayName: info.Name,
		})
	}
	return out, nil
}

type synthesizeRequest struct {
	Text    string  `json:"text"`
	VoiceID string  `json:"voiceId"`
	Rate    float64 `json:"rate"`
}

type synthesizeResponse struct {
	AudioURL  string  `json:"audioUrl"`
	CostUnits float64 `json:"costUnits"`
	Cached    bool    `json:"cached"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Synthesize requests synthesis and downloads the resulting audio. The
// returned PCM is the caller's to play and cache.
func (c *Client) Synthesize(ctx context.Context, req providers.Request) (*providers.Result, error) {
	if len(req.Text) > c.cfg.MaxTextLen {
		return nil, fmt.Errorf("%w: text is %d bytes, limit %d",
			providers.ErrRequestRejected, len(req.Text), c.cfg.MaxTextLen)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, providers.ErrCanceled
	}

	sr, err := c.requestSynthesis(ctx, req)
	if err != nil {
		return nil, err
	}

	pcm, err := c.fetchAudio(ctx, sr.AudioURL)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("cloud synthesis complete",
		"bytes", len(pcm), "cost_units", sr.CostUnits, "server_cached", sr.Cached)

	return &providers.Result{
		PCM:          pcm,
		SampleRate:   c.cfg.SampleRate,
		Channels:     c.cfg.Channels,
		CostUnits:    sr.CostUnits,
		ServerCached: sr.Cached,
	}, nil
}

func (c *Client) requestSynthesis(ctx context.Context, req providers.Request) (*synthesizeResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	body, err := json.Marshal(synthesizeRequest{Text: req.Text, VoiceID: req.Voice.ID, Rate: req.Rate})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.BaseURL+"/v1/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, providers.ErrCanceled
		}
		if reqCtx.Err() != nil {
			return nil, providers.ErrTimeout
		}
		return nil, fmt.Errorf("%w: %s", providers.ErrUnreachable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, c.mapStatus(resp)
	}

	var sr synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %s", providers.ErrUnreachable, err)
	}
	if sr.AudioURL == "" {
		return nil, fmt.Errorf("%w: response missing audioUrl", providers.ErrUnreachable)
	}
	return &sr, nil
}

// mapStatus translates an HTTP error status into a typed rejection.
func (c *Client) mapStatus(resp *http.Response) error {
	var er errorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&er)

	detail := er.Error
	if detail == "" {
		detail = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusNotFound && er.Code == "voice_not_found",
		resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", providers.ErrVoiceRejected, detail)
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %s", providers.ErrRequestRejected, detail)
	default:
		return fmt.Errorf("%w: %s", providers.ErrUnreachable, detail)
	}
}

func (c *Client) fetchAudio(ctx context.Context, audioURL string) ([]byte, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: bad audio url: %s", providers.ErrUnreachable, err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, providers.ErrCanceled
		}
		return nil, fmt.Errorf("%w: audio fetch: %s", providers.ErrUnreachable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: audio fetch returned %d", providers.ErrUnreachable, resp.StatusCode)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: audio read: %s", providers.ErrUnreachable, err)
	}
	return pcm, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// Options configures a Client. Zero values fall back to sensible defaults.
type Options struct {
	BaseURL           string
	Token             string
	UserAgent         string
	RequestsPerMinute int
	Timeout           time.Duration
	Logger            *log.Logger
}

// Client talks to the Discord REST API on behalf of a single account.
type Client struct {
	httpClient     *http.Client
	downloadClient *http.Client
	baseURL        string
	token          string
	userAgent      string
	rateLimiter    *rate.Limiter
	logger         *log.Logger
}

func NewClient(opts Options) *Client {
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	// Client-side throttle; the server still has the final say via 429s.
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), opts.RequestsPerMinute)

	// Attachment bodies can take arbitrarily long to stream, so downloads
	// only bound the wait for response headers.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = opts.Timeout

	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		downloadClient: &http.Client{
			Transport: transport,
		},
		baseURL:     opts.BaseURL,
		token:       opts.Token,
		userAgent:   opts.UserAgent,
		rateLimiter: limiter,
		logger:      opts.Logger,
	}
}

// GetPins fetches every pinned message in a channel. The endpoint returns the
// complete set in one response, so there is no pagination.
func (c *Client) GetPins(ctx context.Context, channelID string) (*PinList, error) {
	endpoint := fmt.Sprintf("%s/channels/%s/pins", c.baseURL, url.PathEscape(channelID))

	c.logger.Debug("getting pins", "channel", channelID)
	resp, err := c.do(ctx, c.httpClient, http.MethodGet, endpoint, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get pins: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read pins response: %w", err)
	}
	if err := checkStatus(resp, body); err != nil {
		return nil, err
	}

	var pins []Pin
	if err := json.Unmarshal(body, &pins); err != nil {
		return nil, fmt.Errorf("failed to decode pins response: %w", err)
	}

	return &PinList{Pins: pins, Raw: json.RawMessage(body)}, nil
}

// DeletePin unpins a single message. A 429 comes back as *RateLimitError;
// the caller decides whether to retry.
func (c *Client) DeletePin(ctx context.Context, channelID, messageID string) error {
	endpoint := fmt.Sprintf("%s/channels/%s/pins/%s", c.baseURL, url.PathEscape(channelID), url.PathEscape(messageID))

	c.logger.Debug("deleting pin", "channel", channelID, "message", messageID)
	resp, err := c.do(ctx, c.httpClient, http.MethodDelete, endpoint, true)
	if err != nil {
		return fmt.Errorf("failed to delete pin: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read delete response: %w", err)
	}
	return checkStatus(resp, body)
}

// OpenAttachment starts a download of rawURL and returns the response body
// for the caller to stream. The account token is never sent to attachment hosts.
func (c *Client) OpenAttachment(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, c.downloadClient, http.MethodGet, rawURL, false)
	if err != nil {
		return nil, fmt.Errorf("failed to download attachment: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, checkStatus(resp, body)
	}

	return resp.Body, nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, endpoint string, authenticated bool) (*http.Response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	if authenticated {
		req.Header.Set("Authorization", c.token)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	c.logger.Debug(method, "url", endpoint, "status", resp.StatusCode)
	return resp, nil
}

func checkStatus(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}

	apiErr := &APIError{
		Method:     resp.Request.Method,
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		return apiErr
	}

	rl := &RateLimitError{APIError: apiErr}
	var payload rateLimitBody
	if err := json.Unmarshal(body, &payload); err == nil && payload.RetryAfter > 0 {
		rl.RetryAfter = secondsToDuration(payload.RetryAfter)
		rl.Global = payload.Global
	} else if h := resp.Header.Get("Retry-After"); h != "" {
		if secs, err := strconv.ParseFloat(h, 64); err == nil {
			rl.RetryAfter = secondsToDuration(secs)
		}
	}
	return rl
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

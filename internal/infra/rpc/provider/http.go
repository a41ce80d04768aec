package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/vietddude/faceguard/internal/core/domain"
)

// maxErrorBody bounds how much of an error response is read for its message.
const maxErrorBody = 64 << 10

// maxErrorMessage bounds a plain-text error message.
const maxErrorMessage = 200

// HTTPOptions tunes an HTTPProvider.
type HTTPOptions struct {
	Timeout   time.Duration
	Token     string
	RateLimit float64 // requests per second, 0 = unlimited
	Burst     int
}

// HTTPProvider sends operations to the remote service over HTTP.
type HTTPProvider struct {
	name       string
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter

	mu           sync.RWMutex
	health       HealthStatus
	totalLatency time.Duration
	successCount int
	failureCount int
	requestCount int

	Monitor *ProviderMonitor
}

// NewHTTPProvider creates a new HTTP provider rooted at baseURL.
func NewHTTPProvider(name, baseURL string, opts HTTPOptions) *HTTPProvider {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := max(opts.Burst, 1)
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &HTTPProvider{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   opts.Token,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: limiter,
		health: HealthStatus{
			Available:     true,
			LastSuccessAt: time.Now(),
		},
		Monitor: NewProviderMonitor(),
	}
}

// Execute performs a single HTTP attempt for op.
func (p *HTTPProvider) Execute(ctx context.Context, op domain.Operation) ([]byte, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("rate limit wait: %w", ctxErr)
			}
			// The limiter refuses early when the deadline is closer than the next token.
			return nil, fmt.Errorf("rate limit wait: %w: %v", context.DeadlineExceeded, err)
		}
	}

	start := time.Now()

	method := op.Method
	if method == "" {
		method = http.MethodGet
		if op.IsWrite() {
			method = http.MethodPost
		}
	}

	var body io.Reader
	if len(op.Payload) > 0 && method != http.MethodGet {
		body = bytes.NewReader(op.Payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+op.Path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		contentType := op.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		req.Header.Set("Content-Type", contentType)
	}
	if op.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", op.IdempotencyKey)
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.recordFailure()
		return nil, fmt.Errorf("%s %s: %w", method, op.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		p.Monitor.RecordThrottle(resp.Header.Get("Retry-After"))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		p.recordFailure()
		return nil, &StatusError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		p.recordFailure()
		return nil, fmt.Errorf("read response: %w", err)
	}

	latency := time.Since(start)
	p.Monitor.RecordRequest(latency)
	p.recordSuccess(latency)

	return data, nil
}

// errorMessage extracts {detail|message} from an error body, falling back to
// the trimmed raw text.
func errorMessage(raw []byte) string {
	var body struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		switch d := body.Detail.(type) {
		case string:
			if d != "" {
				return d
			}
		case nil:
		default:
			// Validation errors arrive as a list of objects.
			if b, err := json.Marshal(d); err == nil {
				return string(b)
			}
		}
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return truncate(strings.TrimSpace(string(raw)), maxErrorMessage)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Ping checks that the service answers at all.
func (p *HTTPProvider) Ping(ctx context.Context) error {
	_, err := p.Execute(ctx, domain.Operation{
		Kind:   domain.OperationRead,
		Key:    "health",
		Method: http.MethodGet,
		Path:   "/health",
	})
	return err
}

// GetName returns the provider's name.
func (p *HTTPProvider) GetName() string {
	return p.name
}

// GetHealth returns the provider's health status.
func (p *HTTPProvider) GetHealth() HealthStatus {
	p.mu.RLock()
	health := p.health
	p.mu.RUnlock()

	stats := p.Monitor.GetStats()
	health.MonitorStats = &stats
	return health
}

// Close cleans up resources.
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func (p *HTTPProvider) recordSuccess(latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.successCount++
	p.requestCount++
	p.totalLatency += latency
	p.health.LastSuccessAt = time.Now()
	p.health.Available = true

	p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)
	p.health.Latency = p.totalLatency / time.Duration(p.successCount)
}

func (p *HTTPProvider) recordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failureCount++
	p.requestCount++
	p.health.LastFailureAt = time.Now()

	p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)
	if p.health.ErrorRate > 0.5 {
		p.health.Available = false
	}
}

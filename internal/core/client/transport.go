package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pagewire/pagewire/internal/core/ratelimit"
	apperrors "github.com/pagewire/pagewire/internal/errors"
)

const (
	HeaderAPIVersion = "X-Api-Version"
	HeaderRequestID  = "X-Request-Id"

	maxErrorBody = 64 << 10
)

// ExchangeObserver is told about every HTTP exchange, retried or not. err is
// nil for a successful exchange.
type ExchangeObserver interface {
	RequestCompleted(endpoint string, err error, elapsed time.Duration)
}

// Request describes one API exchange.
type Request struct {
	// Endpoint names the operation for metrics and logs, e.g. "pages.retrieve".
	Endpoint  string
	Method    string
	Path      string
	Query     url.Values
	Body      any
	RequestID string
}

// Transport performs single HTTP exchanges and turns failures into
// classified *errors.APIError values. It never retries.
type Transport struct {
	BaseURL   *url.URL
	Token     string
	Version   string
	UserAgent string
	HTTP      *http.Client
	Tracker   *ratelimit.Tracker
	Observer  ExchangeObserver
	Logger    ratelimit.Logger
}

// errorBody is the JSON error document returned by the API.
type errorBody struct {
	Object    string `json:"object"`
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// Do sends req and decodes a successful response into out, which may be nil.
func (t *Transport) Do(ctx context.Context, req Request, out any) (err error) {
	started := time.Now()
	defer func() {
		if t.Observer != nil {
			t.Observer.RequestCompleted(req.Endpoint, err, time.Since(started))
		}
	}()

	httpReq, err := t.newRequest(ctx, req)
	if err != nil {
		return err
	}

	client := t.HTTP
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return t.exchangeError(ctx, req, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	t.observeHeaders(ctx, resp.Header)

	if resp.StatusCode >= http.StatusBadRequest {
		return t.statusError(req, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return t.exchangeError(ctx, req, io.ErrUnexpectedEOF)
		}
		return fmt.Errorf("decode %s %s response: %w", req.Method, req.Path, err)
	}
	return nil
}

func (t *Transport) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	if t.BaseURL == nil {
		return nil, errors.New("api base url is not configured")
	}
	if strings.TrimSpace(req.Method) == "" {
		req.Method = http.MethodGet
	}

	// Path segments are expected to be escaped already.
	target := t.BaseURL.JoinPath(req.Path)
	if len(req.Query) > 0 {
		target.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s request: %w", req.Method, req.Path, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if t.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.Token)
	}
	if t.Version != "" {
		httpReq.Header.Set(HeaderAPIVersion, t.Version)
	}
	if t.UserAgent != "" {
		httpReq.Header.Set("User-Agent", t.UserAgent)
	}
	if req.RequestID != "" {
		httpReq.Header.Set(HeaderRequestID, req.RequestID)
	}
	return httpReq, nil
}

// exchangeError classifies a failure that produced no HTTP status.
func (t *Transport) exchangeError(ctx context.Context, req Request, err error) error {
	kind := apperrors.Classify(err)
	if ctxErr := ctx.Err(); ctxErr != nil {
		kind = apperrors.KindCanceled
		err = ctxErr
	}
	return &apperrors.APIError{
		Kind:      kind,
		Method:    req.Method,
		Path:      req.Path,
		RequestID: req.RequestID,
		Err:       err,
	}
}

func (t *Transport) statusError(req Request, resp *http.Response) error {
	apiErr := &apperrors.APIError{
		Kind:      apperrors.KindFromStatus(resp.StatusCode),
		Status:    resp.StatusCode,
		Method:    req.Method,
		Path:      req.Path,
		RequestID: req.RequestID,
		Headers:   resp.Header.Clone(),
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body errorBody
	if len(raw) > 0 && json.Unmarshal(raw, &body) == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
		if body.RequestID != "" {
			apiErr.RequestID = body.RequestID
		}
	} else if text := strings.TrimSpace(string(raw)); text != "" {
		apiErr.Message = text
	}

	if t.Logger != nil {
		t.Logger.Debug("api error response",
			zap.String("endpoint", req.Endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code),
			zap.String("request_id", apiErr.RequestID),
		)
	}
	return apiErr
}

func (t *Transport) observeHeaders(ctx context.Context, h http.Header) {
	if t.Tracker == nil {
		return
	}
	state, ok := ratelimit.FromHeaders(h)
	if !ok {
		return
	}
	if err := t.Tracker.Observe(ctx, t.BaseURL.Host, state); err != nil && t.Logger != nil {
		t.Logger.Warn("record rate limit failed", zap.String("endpoint", t.BaseURL.Host), zap.Error(err))
	}
}

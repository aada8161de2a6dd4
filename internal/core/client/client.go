// Package client is the typed API client. Every exchange runs through the
// retry executor and every list endpoint through the pagination engine.
package client

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pagewire/pagewire/internal/core/paginate"
	"github.com/pagewire/pagewire/internal/core/ratelimit"
)

const (
	DefaultBaseURL   = "https://api.pagewire.dev"
	DefaultVersion   = "2025-09-03"
	DefaultPageSize  = 100
	DefaultTimeout   = 30 * time.Second
	defaultUserAgent = "pagewire"
)

// Config holds everything needed to reach the API.
type Config struct {
	BaseURL   string
	Token     string
	Version   string
	UserAgent string
	Timeout   time.Duration
	RateLimit ratelimit.Config
	PageSize  int
	MaxPages  int
}

// Observer receives every event the client reports. metrics.Client
// implements it.
type Observer interface {
	ratelimit.Observer
	paginate.Observer
	ExchangeObserver
}

type settings struct {
	httpClient *http.Client
	tracker    *ratelimit.Tracker
	observer   Observer
	logger     ratelimit.Logger
	sleeper    ratelimit.Sleeper
	calcOpts   []ratelimit.CalculatorOption
}

// Option customises a Client.
type Option func(*settings)

func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.httpClient = c }
}

// WithTracker shares rate-limit state between calls (and, with a persistent
// store, between processes).
func WithTracker(t *ratelimit.Tracker) Option {
	return func(s *settings) { s.tracker = t }
}

func WithObserver(o Observer) Option {
	return func(s *settings) { s.observer = o }
}

func WithLogger(l ratelimit.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithSleeper replaces the wait between retries.
func WithSleeper(sl ratelimit.Sleeper) Option {
	return func(s *settings) { s.sleeper = sl }
}

// WithCalculatorOptions passes options to the backoff calculator.
func WithCalculatorOptions(opts ...ratelimit.CalculatorOption) Option {
	return func(s *settings) { s.calcOpts = append(s.calcOpts, opts...) }
}

// Client is safe for concurrent use.
type Client struct {
	transport *Transport
	executor  *ratelimit.Executor
	pageSize  int
	pageOpts  []paginate.Option

	Pages       *PagesService
	Databases   *DatabasesService
	DataSources *DataSourcesService
	Blocks      *BlocksService
	Comments    *CommentsService
	Users       *UsersService
	FileUploads *FileUploadsService
}

// New builds a client. The rate limit policy is validated here.
func New(cfg Config, opts ...Option) (*Client, error) {
	s := settings{}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}

	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid api base url: %q", base)
	}

	if err := cfg.RateLimit.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := s.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := s.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &Transport{
		BaseURL:   baseURL,
		Token:     cfg.Token,
		Version:   firstNonEmpty(cfg.Version, DefaultVersion),
		UserAgent: firstNonEmpty(cfg.UserAgent, defaultUserAgent),
		HTTP:      httpClient,
		Tracker:   s.tracker,
		Logger:    logger,
	}

	execOpts := []ratelimit.ExecutorOption{
		ratelimit.WithLogger(logger),
		ratelimit.WithSleeper(s.sleeper),
	}
	pageOpts := []paginate.Option{paginate.WithLogger(logger)}
	if cfg.MaxPages > 0 {
		pageOpts = append(pageOpts, paginate.WithMaxPages(cfg.MaxPages))
	}
	if s.observer != nil {
		transport.Observer = s.observer
		execOpts = append(execOpts, ratelimit.WithObserver(s.observer))
		pageOpts = append(pageOpts, paginate.WithObserver(s.observer))
	}
	if s.tracker != nil {
		execOpts = append(execOpts, ratelimit.WithTracker(s.tracker, baseURL.Host))
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > DefaultPageSize {
		pageSize = DefaultPageSize
	}

	c := &Client{
		transport: transport,
		executor:  ratelimit.NewExecutor(ratelimit.NewCalculator(cfg.RateLimit, s.calcOpts...), execOpts...),
		pageSize:  pageSize,
		pageOpts:  pageOpts,
	}
	c.Pages = &PagesService{c: c}
	c.Databases = &DatabasesService{c: c}
	c.DataSources = &DataSourcesService{c: c}
	c.Blocks = &BlocksService{c: c}
	c.Comments = &CommentsService{c: c}
	c.Users = &UsersService{c: c}
	c.FileUploads = &FileUploadsService{c: c}
	return c, nil
}

// Executor exposes the retry executor, e.g. to run custom requests.
func (c *Client) Executor() *ratelimit.Executor {
	return c.executor
}

// Endpoint is the host the client talks to; it keys shared rate-limit state.
func (c *Client) Endpoint() string {
	return c.transport.BaseURL.Host
}

// call runs one logical request through the executor. The request id is
// fixed before the first attempt so retries share it.
func call[T any](ctx context.Context, c *Client, req Request) (T, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	return ratelimit.Do(ctx, c.executor, func(ctx context.Context) (T, error) {
		var out T
		err := c.transport.Do(ctx, req, &out)
		return out, err
	})
}

// listResponse is the envelope of every paginated endpoint.
type listResponse[T any] struct {
	Object     string  `json:"object"`
	Results    []T     `json:"results"`
	NextCursor *string `json:"next_cursor"`
	HasMore    bool    `json:"has_more"`
}

func (r listResponse[T]) page() paginate.Page[T] {
	page := paginate.Page[T]{Results: r.Results, HasMore: r.HasMore}
	if r.NextCursor != nil {
		page.NextCursor = *r.NextCursor
	}
	return page
}

// List is a paginated result set. Nothing is fetched until one of its methods
// runs; each fetch is retried on its own.
type List[T any] struct {
	c     *Client
	fetch paginate.Fetcher[T]
}

func newList[T any](c *Client, build func(cursor string, pageSize int) Request) List[T] {
	return List[T]{
		c: c,
		fetch: func(ctx context.Context, cursor string) (paginate.Page[T], error) {
			resp, err := call[listResponse[T]](ctx, c, build(cursor, c.pageSize))
			if err != nil {
				return paginate.Page[T]{}, err
			}
			return resp.page(), nil
		},
	}
}

// Collect fetches every page.
func (l List[T]) Collect(ctx context.Context) ([]T, error) {
	return paginate.CollectAll(ctx, l.fetch, l.c.pageOpts...)
}

// Iterate yields results lazily; see paginate.Items.
func (l List[T]) Iterate(ctx context.Context) iter.Seq2[T, error] {
	return paginate.Items(ctx, l.fetch, l.c.pageOpts...)
}

// IteratePages yields whole pages lazily.
func (l List[T]) IteratePages(ctx context.Context) iter.Seq2[paginate.Page[T], error] {
	return paginate.Pages(ctx, l.fetch, l.c.pageOpts...)
}

// Fetcher exposes the underlying page fetcher.
func (l List[T]) Fetcher() paginate.Fetcher[T] {
	return l.fetch
}

// cursorQuery builds the query string of a GET list endpoint.
func cursorQuery(base url.Values, cursor string, pageSize int) url.Values {
	q := url.Values{}
	for key, values := range base {
		q[key] = append([]string(nil), values...)
	}
	if cursor != "" {
		q.Set("start_cursor", cursor)
	}
	q.Set("page_size", strconv.Itoa(pageSize))
	return q
}

func escapeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("id is required")
	}
	return url.PathEscape(id), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

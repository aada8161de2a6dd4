// Package paginate walks cursor-paginated list endpoints, either collecting
// every result or yielding them lazily as a single-use sequence.
package paginate

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"go.uber.org/zap"

	apperrors "github.com/pagewire/pagewire/internal/errors"
)

// DefaultMaxPages bounds a walk when no limit is configured.
const DefaultMaxPages = 1000

var (
	// ErrMissingCursor reports a page that claims more results without a
	// cursor to fetch them.
	ErrMissingCursor = errors.New("page has more results but no next cursor")

	// ErrSequenceConsumed is yielded when a sequence is ranged over twice.
	ErrSequenceConsumed = errors.New("paginated sequence already consumed")
)

// Page is one page of a list endpoint. NextCursor is only consulted when
// HasMore is set.
type Page[T any] struct {
	Results    []T    `json:"results"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// Fetcher retrieves the page starting at cursor; "" selects the first page.
type Fetcher[T any] func(ctx context.Context, cursor string) (Page[T], error)

// Observer is told about every page fetched.
type Observer interface {
	PageFetched(items int)
}

// Logger receives page-level debug output.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
}

type options struct {
	maxPages int
	observer Observer
	logger   Logger
}

// Option configures a walk.
type Option func(*options)

// WithMaxPages caps the number of pages fetched. Values below one select
// DefaultMaxPages.
func WithMaxPages(n int) Option {
	return func(o *options) { o.maxPages = n }
}

func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

func WithLogger(l Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{maxPages: DefaultMaxPages}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.maxPages < 1 {
		o.maxPages = DefaultMaxPages
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// walker drives the cursor loop shared by every entry point.
type walker[T any] struct {
	fetch   Fetcher[T]
	opts    options
	cursor  string
	pages   int
	seen    map[string]struct{}
	pending error
	done    bool
}

func newWalker[T any](fetch Fetcher[T], opts []Option) *walker[T] {
	return &walker[T]{
		fetch: fetch,
		opts:  buildOptions(opts),
		seen:  make(map[string]struct{}),
	}
}

// next fetches the following page. It reports false once the walk is over;
// a page is never returned together with an error.
func (w *walker[T]) next(ctx context.Context) (Page[T], bool, error) {
	var zero Page[T]
	if w.pending != nil {
		err := w.pending
		w.pending = nil
		w.done = true
		return zero, false, err
	}
	if w.done {
		return zero, false, nil
	}
	if err := ctx.Err(); err != nil {
		w.done = true
		return zero, false, err
	}
	if w.pages >= w.opts.maxPages {
		w.done = true
		return zero, false, &apperrors.PaginationOverrunError{
			Pages:  w.pages,
			Limit:  w.opts.maxPages,
			Cursor: w.cursor,
		}
	}

	page, err := w.fetch(ctx, w.cursor)
	if err != nil {
		w.done = true
		return zero, false, err
	}
	w.pages++
	if w.opts.observer != nil {
		w.opts.observer.PageFetched(len(page.Results))
	}
	w.opts.logger.Debug("fetched page",
		zap.Int("page", w.pages),
		zap.Int("items", len(page.Results)),
		zap.Bool("has_more", page.HasMore),
	)

	switch {
	case !page.HasMore:
		w.done = true
	case page.NextCursor == "":
		w.pending = fmt.Errorf("page %d: %w", w.pages, ErrMissingCursor)
	default:
		if _, repeated := w.seen[page.NextCursor]; repeated {
			w.pending = &apperrors.PaginationOverrunError{
				Pages:  w.pages,
				Limit:  w.opts.maxPages,
				Cursor: page.NextCursor,
				Reason: fmt.Sprintf("cursor %q repeated", page.NextCursor),
			}
		}
		w.seen[page.NextCursor] = struct{}{}
		w.cursor = page.NextCursor
	}
	return page, true, nil
}

// CollectAll fetches every page and returns the results in server order.
func CollectAll[T any](ctx context.Context, fetch Fetcher[T], opts ...Option) ([]T, error) {
	w := newWalker(fetch, opts)
	all := make([]T, 0)
	for {
		page, ok, err := w.next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return all, nil
		}
		all = append(all, page.Results...)
	}
}

// Items returns a lazy, single-use sequence of results. A page is fetched
// only when its first item is needed, so stopping early leaves the remaining
// pages unfetched. A fetch error is yielded once and ends the sequence.
func Items[T any](ctx context.Context, fetch Fetcher[T], opts ...Option) iter.Seq2[T, error] {
	w := newWalker(fetch, opts)
	var started atomic.Bool
	return func(yield func(T, error) bool) {
		var zero T
		if !started.CompareAndSwap(false, true) {
			yield(zero, ErrSequenceConsumed)
			return
		}
		for {
			page, ok, err := w.next(ctx)
			if err != nil {
				yield(zero, err)
				return
			}
			if !ok {
				return
			}
			for _, item := range page.Results {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// Pages is Items at page granularity.
func Pages[T any](ctx context.Context, fetch Fetcher[T], opts ...Option) iter.Seq2[Page[T], error] {
	w := newWalker(fetch, opts)
	var started atomic.Bool
	return func(yield func(Page[T], error) bool) {
		var zero Page[T]
		if !started.CompareAndSwap(false, true) {
			yield(zero, ErrSequenceConsumed)
			return
		}
		for {
			page, ok, err := w.next(ctx)
			if err != nil {
				yield(zero, err)
				return
			}
			if !ok {
				return
			}
			if !yield(page, nil) {
				return
			}
		}
	}
}

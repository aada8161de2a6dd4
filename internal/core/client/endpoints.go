package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/pagewire/pagewire/internal/core"
)

// PagesService covers /v1/pages.
type PagesService struct{ c *Client }

// CreatePageRequest creates a page under Parent. Properties and Children are
// passed through as JSON.
type CreatePageRequest struct {
	Parent     core.Parent                `json:"parent"`
	Properties map[string]json.RawMessage `json:"properties,omitempty"`
	Children   []json.RawMessage          `json:"children,omitempty"`
}

// UpdatePageRequest patches properties or the archive flag.
type UpdatePageRequest struct {
	Properties map[string]json.RawMessage `json:"properties,omitempty"`
	Archived   *bool                      `json:"archived,omitempty"`
	InTrash    *bool                      `json:"in_trash,omitempty"`
}

func (s *PagesService) Retrieve(ctx context.Context, id string) (*core.Page, error) {
	escaped, err := escapeID(id)
	if err != nil {
		return nil, err
	}
	page, err := call[core.Page](ctx, s.c, Request{
		Endpoint: "pages.retrieve",
		Method:   http.MethodGet,
		Path:     "/v1/pages/" + escaped,
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *PagesService) Create(ctx context.Context, req CreatePageRequest) (*core.Page, error) {
	if req.Parent.Type == "" {
		return nil, errors.New("parent is required")
	}
	page, err := call[core.Page](ctx, s.c, Request{
		Endpoint: "pages.create",
		Method:   http.MethodPost,
		Path:     "/v1/pages",
		Body:     req,
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *PagesService) Update(ctx context.Context, id string, req UpdatePageRequest) (*core.Page, error) {
	escaped, err := escapeID(id)
	if err != nil {
		return nil, err
	}
	page, err := call[core.Page](ctx, s.c, Request{
		Endpoint: "pages.update",
		Method:   http.MethodPatch,
		Path:     "/v1/pages/" + escaped,
		Body:     req,
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// QueryRequest filters and sorts a database or data source query. Filter and
// Sorts are passed through as JSON.
type QueryRequest struct {
	Filter json.RawMessage `json:"filter,omitempty"`
	Sorts  json.RawMessage `json:"sorts,omitempty"`
}

// queryBody adds the cursor fields to a query.
type queryBody struct {
	QueryRequest
	StartCursor string `json:"start_cursor,omitempty"`
	PageSize    int    `json:"page_size,omitempty"`
}

// DatabasesService covers /v1/databases.
type DatabasesService struct{ c *Client }

func (s *DatabasesService) Retrieve(ctx context.Context, id string) (*core.Database, error) {
	escaped, err := escapeID(id)
	if err != nil {
		return nil, err
	}
	db, err := call[core.Database](ctx, s.c, Request{
		Endpoint: "databases.retrieve",
		Method:   http.MethodGet,
		Path:     "/v1/databases/" + escaped,
	})
	if err != nil {
		return nil, err
	}
	return &db, nil
}

// Query lists the pages of a database.
func (s *DatabasesService) Query(id string, q QueryRequest) (List[core.Page], error) {
	escaped, err := escapeID(id)
	if err != nil {
		return List[core.Page]{}, err
	}
	return newList[core.Page](s.c, func(cursor string, pageSize int) Request {
		return Request{
			Endpoint: "databases.query",
			Method:   http.MethodPost,
			Path:     "/v1/databases/" + escaped + "/query",
			Body:     queryBody{QueryRequest: q, StartCursor: cursor, PageSize: pageSize},
		}
	}), nil
}

// DataSourcesService covers /v1/data_sources.
type DataSourcesService struct{ c *Client }

// Query lists the pages of a data source.
func (s *DataSourcesService) Query(id string, q QueryRequest) (List[core.Page], error) {
	escaped, err := escapeID(id)
	if err != nil {
		return List[core.Page]{}, err
	}
	return newList[core.Page](s.c, func(cursor string, pageSize int) Request {
		return Request{
			Endpoint: "data_sources.query",
			Method:   http.MethodPost,
			Path:     "/v1/data_sources/" + escaped + "/query",
			Body:     queryBody{QueryRequest: q, StartCursor: cursor, PageSize: pageSize},
		}
	}), nil
}

// BlocksService covers /v1/blocks.
type BlocksService struct{ c *Client }

func (s *BlocksService) Retrieve(ctx context.Context, id string) (*core.Block, error) {
	escaped, err := escapeID(id)
	if err != nil {
		return nil, err
	}
	block, err := call[core.Block](ctx, s.c, Request{
		Endpoint: "blocks.retrieve",
		Method:   http.MethodGet,
		Path:     "/v1/blocks/" + escaped,
	})
	if err != nil {
		return nil, err
	}
	return &block, nil
}

// Children lists the child blocks of a block or page.
func (s *BlocksService) Children(id string) (List[core.Block], error) {
	escaped, err := escapeID(id)
	if err != nil {
		return List[core.Block]{}, err
	}
	return newList[core.Block](s.c, func(cursor string, pageSize int) Request {
		return Request{
			Endpoint: "blocks.children",
			Method:   http.MethodGet,
			Path:     "/v1/blocks/" + escaped + "/children",
			Query:    cursorQuery(nil, cursor, pageSize),
		}
	}), nil
}

// AppendChildren appends blocks and returns the created children.
func (s *BlocksService) AppendChildren(ctx context.Context, id string, children []json.RawMessage) ([]core.Block, error) {
	escaped, err := escapeID(id)
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return nil, errors.New("at least one child block is required")
	}
	resp, err := call[listResponse[core.Block]](ctx, s.c, Request{
		Endpoint: "blocks.append_children",
		Method:   http.MethodPatch,
		Path:     "/v1/blocks/" + escaped + "/children",
		Body:     map[string]any{"children": children},
	})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// CommentsService covers /v1/comments.
type CommentsService struct{ c *Client }

// CreateCommentRequest starts or replies to a discussion.
type CreateCommentRequest struct {
	Parent       *core.Parent    `json:"parent,omitempty"`
	DiscussionID string          `json:"discussion_id,omitempty"`
	RichText     []core.RichText `json:"rich_text"`
}

// List lists the unresolved comments on a block or page.
func (s *CommentsService) List(blockID string) (List[core.Comment], error) {
	blockID = strings.TrimSpace(blockID)
	if blockID == "" {
		return List[core.Comment]{}, errors.New("block id is required")
	}
	base := url.Values{"block_id": {blockID}}
	return newList[core.Comment](s.c, func(cursor string, pageSize int) Request {
		return Request{
			Endpoint: "comments.list",
			Method:   http.MethodGet,
			Path:     "/v1/comments",
			Query:    cursorQuery(base, cursor, pageSize),
		}
	}), nil
}

func (s *CommentsService) Create(ctx context.Context, req CreateCommentRequest) (*core.Comment, error) {
	if req.Parent == nil && req.DiscussionID == "" {
		return nil, errors.New("parent or discussion id is required")
	}
	comment, err := call[core.Comment](ctx, s.c, Request{
		Endpoint: "comments.create",
		Method:   http.MethodPost,
		Path:     "/v1/comments",
		Body:     req,
	})
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// UsersService covers /v1/users.
type UsersService struct{ c *Client }

func (s *UsersService) List() List[core.User] {
	return newList[core.User](s.c, func(cursor string, pageSize int) Request {
		return Request{
			Endpoint: "users.list",
			Method:   http.MethodGet,
			Path:     "/v1/users",
			Query:    cursorQuery(nil, cursor, pageSize),
		}
	})
}

// Me returns the bot user behind the token.
func (s *UsersService) Me(ctx context.Context) (*core.User, error) {
	user, err := call[core.User](ctx, s.c, Request{
		Endpoint: "users.me",
		Method:   http.MethodGet,
		Path:     "/v1/users/me",
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FileUploadsService covers /v1/file_uploads.
type FileUploadsService struct{ c *Client }

func (s *FileUploadsService) List() List[core.FileUpload] {
	return newList[core.FileUpload](s.c, func(cursor string, pageSize int) Request {
		return Request{
			Endpoint: "file_uploads.list",
			Method:   http.MethodGet,
			Path:     "/v1/file_uploads",
			Query:    cursorQuery(nil, cursor, pageSize),
		}
	})
}

// SearchFilter restricts search to one object type.
type SearchFilter struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

// SearchRequest searches page and data source titles.
type SearchRequest struct {
	Query  string        `json:"query,omitempty"`
	Filter *SearchFilter `json:"filter,omitempty"`
	Sort   *SearchSort   `json:"sort,omitempty"`
}

// SearchSort orders search results by last edit.
type SearchSort struct {
	Direction string `json:"direction"`
	Timestamp string `json:"timestamp"`
}

type searchBody struct {
	SearchRequest
	StartCursor string `json:"start_cursor,omitempty"`
	PageSize    int    `json:"page_size,omitempty"`
}

// Search lists pages and data sources matching req. The cursor travels in the
// request body.
func (c *Client) Search(req SearchRequest) List[core.SearchResult] {
	return newList[core.SearchResult](c, func(cursor string, pageSize int) Request {
		return Request{
			Endpoint: "search",
			Method:   http.MethodPost,
			Path:     "/v1/search",
			Body:     searchBody{SearchRequest: req, StartCursor: cursor, PageSize: pageSize},
		}
	})
}

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pagewire/pagewire/internal/core"
	apperrors "github.com/pagewire/pagewire/internal/errors"
)

const maxPageSize = 100

var errInvalidCursor = errors.New("start_cursor does not match any result")

// API serves the mock document API over a Fixtures workspace.
type API struct {
	fixtures *Fixtures
	pageSize int
	now      func() time.Time
}

// NewAPI serves f. pageSize is used when a request does not ask for one.
func NewAPI(f *Fixtures, pageSize int) *API {
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return &API{fixtures: f, pageSize: pageSize, now: time.Now}
}

// Routes registers the /v1 endpoints on r.
func (a *API) Routes(r chi.Router) {
	r.Post("/search", a.Search)

	r.Get("/users", a.ListUsers)
	r.Get("/users/me", a.Me)
	r.Get("/users/{id}", a.GetUser)

	r.Post("/pages", a.CreatePage)
	r.Get("/pages/{id}", a.GetPage)
	r.Patch("/pages/{id}", a.UpdatePage)

	r.Get("/databases/{id}", a.GetDatabase)
	r.Post("/databases/{id}/query", a.QueryDatabase)
	r.Post("/data_sources/{id}/query", a.QueryDataSource)

	r.Get("/blocks/{id}", a.GetBlock)
	r.Get("/blocks/{id}/children", a.ListChildren)
	r.Patch("/blocks/{id}/children", a.AppendChildren)

	r.Get("/comments", a.ListComments)
	r.Post("/comments", a.CreateComment)

	r.Get("/file_uploads", a.ListFileUploads)
}

// listBody is the envelope of every paginated response.
type listBody struct {
	Object     core.ObjectType `json:"object"`
	Results    any             `json:"results"`
	NextCursor *string         `json:"next_cursor"`
	HasMore    bool            `json:"has_more"`
}

// paginate slices items starting at the item whose id is cursor. The next
// cursor is the id of the first item left out.
func paginate[T any](items []T, idOf func(T) string, cursor string, pageSize int) (listBody, error) {
	start := 0
	if cursor != "" {
		start = slices.IndexFunc(items, func(item T) bool { return idOf(item) == cursor })
		if start < 0 {
			return listBody{}, errInvalidCursor
		}
	}
	end := min(start+pageSize, len(items))

	body := listBody{Object: core.ObjectList, Results: append(make([]T, 0, end-start), items[start:end]...)}
	if end < len(items) {
		next := idOf(items[end])
		body.NextCursor = &next
		body.HasMore = true
	}
	return body, nil
}

type cursorParams struct {
	StartCursor string `json:"start_cursor"`
	PageSize    int    `json:"page_size"`
}

func (a *API) resolvePageSize(size int) (int, error) {
	switch {
	case size == 0:
		return a.pageSize, nil
	case size < 0 || size > maxPageSize:
		return 0, fmt.Errorf("page_size must be between 1 and %d", maxPageSize)
	default:
		return size, nil
	}
}

func (a *API) queryCursor(r *http.Request) (cursorParams, error) {
	params := cursorParams{StartCursor: strings.TrimSpace(r.URL.Query().Get("start_cursor"))}
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return cursorParams{}, fmt.Errorf("page_size must be an integer")
		}
		params.PageSize = size
	}
	size, err := a.resolvePageSize(params.PageSize)
	params.PageSize = size
	return params, err
}

// decodeBody reads an optional JSON body into out.
func decodeBody(r *http.Request, out any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(out)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("invalid JSON body: %w", err)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func invalid(w http.ResponseWriter, r *http.Request, err error) {
	respondWithError(w, r, apperrors.NewInvalidInputError(err.Error()))
}

func notFound(w http.ResponseWriter, r *http.Request, kind, id string) {
	respondWithError(w, r, apperrors.NewNotFoundError(fmt.Sprintf("could not find %s with id: %s", kind, id)))
}

func writeList[T any](w http.ResponseWriter, r *http.Request, items []T, idOf func(T) string, params cursorParams) {
	body, err := paginate(items, idOf, params.StartCursor, params.PageSize)
	if err != nil {
		invalid(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func userID(u core.User) string { return u.ID }
func pageID(p core.Page) string { return p.ID }
func blockID(b core.Block) string { return b.ID }
func commentID(c core.Comment) string { return c.ID }
func uploadID(u core.FileUpload) string { return u.ID }
func searchResultID(r core.SearchResult) string { return r.ID() }

type searchRequest struct {
	cursorParams
	Query  string `json:"query"`
	Filter *struct {
		Property string `json:"property"`
		Value    string `json:"value"`
	} `json:"filter"`
}

func (a *API) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeBody(r, &req); err != nil {
		invalid(w, r, err)
		return
	}
	size, err := a.resolvePageSize(req.PageSize)
	if err != nil {
		invalid(w, r, err)
		return
	}

	var object core.ObjectType
	if req.Filter != nil {
		if req.Filter.Property != "object" {
			invalid(w, r, fmt.Errorf("filter.property must be \"object\""))
			return
		}
		object = core.ObjectType(req.Filter.Value)
		if object != core.ObjectPage && object != core.ObjectDataSource {
			invalid(w, r, fmt.Errorf("filter.value must be page or data_source"))
			return
		}
	}

	results := a.fixtures.Search(req.Query, object)
	writeList(w, r, results, searchResultID, cursorParams{StartCursor: req.StartCursor, PageSize: size})
}

func (a *API) ListUsers(w http.ResponseWriter, r *http.Request) {
	params, err := a.queryCursor(r)
	if err != nil {
		invalid(w, r, err)
		return
	}
	writeList(w, r, a.fixtures.Users(), userID, params)
}

func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.fixtures.Bot())
}

func (a *API) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user, ok := a.fixtures.User(id)
	if !ok {
		notFound(w, r, "user", id)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) GetPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	page, ok := a.fixtures.Page(id)
	if !ok {
		notFound(w, r, "page", id)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type createPageRequest struct {
	Parent     core.Parent                `json:"parent"`
	Properties map[string]json.RawMessage `json:"properties"`
	Children   []core.Block               `json:"children"`
}

func (a *API) CreatePage(w http.ResponseWriter, r *http.Request) {
	var req createPageRequest
	if err := decodeBody(r, &req); err != nil {
		invalid(w, r, err)
		return
	}
	if req.Parent.Type == "" {
		invalid(w, r, errors.New("parent is required"))
		return
	}

	now := a.now().UTC()
	page, err := a.fixtures.CreatePage(req.Parent, req.Properties, now)
	if err != nil {
		invalid(w, r, err)
		return
	}
	if len(req.Children) > 0 {
		a.fixtures.AppendChildren(page.ID, req.Children, now)
	}
	writeJSON(w, http.StatusOK, page)
}

type updatePageRequest struct {
	Properties map[string]json.RawMessage `json:"properties"`
	Archived   *bool                      `json:"archived"`
	InTrash    *bool                      `json:"in_trash"`
}

func (a *API) UpdatePage(w http.ResponseWriter, r *http.Request) {
	var req updatePageRequest
	if err := decodeBody(r, &req); err != nil {
		invalid(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	page, ok := a.fixtures.UpdatePage(id, PageUpdate(req), a.now().UTC())
	if !ok {
		notFound(w, r, "page", id)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) GetDatabase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	db, ok := a.fixtures.Database(id)
	if !ok {
		notFound(w, r, "database", id)
		return
	}
	writeJSON(w, http.StatusOK, db)
}

// QueryDatabase queries the first data source of the database.
func (a *API) QueryDatabase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	db, ok := a.fixtures.Database(id)
	if !ok || len(db.DataSources) == 0 {
		notFound(w, r, "database", id)
		return
	}
	a.query(w, r, db.DataSources[0].ID)
}

func (a *API) QueryDataSource(w http.ResponseWriter, r *http.Request) {
	a.query(w, r, chi.URLParam(r, "id"))
}

// query ignores filter and sorts; rows come back in creation order.
func (a *API) query(w http.ResponseWriter, r *http.Request, dataSourceID string) {
	var params cursorParams
	if err := decodeBody(r, &params); err != nil {
		invalid(w, r, err)
		return
	}
	size, err := a.resolvePageSize(params.PageSize)
	if err != nil {
		invalid(w, r, err)
		return
	}
	params.PageSize = size

	rows, ok := a.fixtures.Rows(dataSourceID)
	if !ok {
		notFound(w, r, "data source", dataSourceID)
		return
	}
	writeList(w, r, rows, pageID, params)
}

func (a *API) GetBlock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	block, ok := a.fixtures.Block(id)
	if !ok {
		notFound(w, r, "block", id)
		return
	}
	writeJSON(w, http.StatusOK, block)
}

func (a *API) ListChildren(w http.ResponseWriter, r *http.Request) {
	params, err := a.queryCursor(r)
	if err != nil {
		invalid(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	children, ok := a.fixtures.Children(id)
	if !ok {
		notFound(w, r, "block", id)
		return
	}
	writeList(w, r, children, blockID, params)
}

func (a *API) AppendChildren(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Children []core.Block `json:"children"`
	}
	if err := decodeBody(r, &req); err != nil {
		invalid(w, r, err)
		return
	}
	if len(req.Children) == 0 {
		invalid(w, r, errors.New("children must not be empty"))
		return
	}
	id := chi.URLParam(r, "id")
	created, ok := a.fixtures.AppendChildren(id, req.Children, a.now().UTC())
	if !ok {
		notFound(w, r, "block", id)
		return
	}
	writeJSON(w, http.StatusOK, listBody{Object: core.ObjectList, Results: created})
}

func (a *API) ListComments(w http.ResponseWriter, r *http.Request) {
	params, err := a.queryCursor(r)
	if err != nil {
		invalid(w, r, err)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("block_id"))
	if id == "" {
		invalid(w, r, errors.New("block_id is required"))
		return
	}
	comments, ok := a.fixtures.Comments(id)
	if !ok {
		notFound(w, r, "block", id)
		return
	}
	writeList(w, r, comments, commentID, params)
}

func (a *API) CreateComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Parent       *core.Parent    `json:"parent"`
		DiscussionID string          `json:"discussion_id"`
		RichText     []core.RichText `json:"rich_text"`
	}
	if err := decodeBody(r, &req); err != nil {
		invalid(w, r, err)
		return
	}
	if len(req.RichText) == 0 {
		invalid(w, r, errors.New("rich_text is required"))
		return
	}

	var parentID string
	if req.Parent != nil {
		parentID = firstNonEmpty(req.Parent.PageID, req.Parent.BlockID)
	}
	if parentID == "" && req.DiscussionID == "" {
		invalid(w, r, errors.New("parent or discussion_id is required"))
		return
	}

	comment, err := a.fixtures.CreateComment(parentID, req.DiscussionID, req.RichText, a.now().UTC())
	if err != nil {
		respondWithError(w, r, apperrors.NewNotFoundError(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

func (a *API) ListFileUploads(w http.ResponseWriter, r *http.Request) {
	params, err := a.queryCursor(r)
	if err != nil {
		invalid(w, r, err)
		return
	}
	writeList(w, r, a.fixtures.FileUploads(), uploadID, params)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

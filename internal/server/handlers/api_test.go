package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/pagewire/pagewire/internal/core"
	apperrors "github.com/pagewire/pagewire/internal/errors"
)

type listPage[T any] struct {
	Object     string  `json:"object"`
	Results    []T     `json:"results"`
	NextCursor *string `json:"next_cursor"`
	HasMore    bool    `json:"has_more"`
}

func newTestRouter(items, pageSize int) (*chi.Mux, *Fixtures) {
	f := NewFixtures(items)
	r := chi.NewRouter()
	r.Route("/v1", NewAPI(f, pageSize).Routes)
	return r, f
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, reader))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestFixtureIDsAreStable(t *testing.T) {
	require.Equal(t, FixtureID("page", 3), FixtureID("page", 3))
	require.NotEqual(t, FixtureID("page", 3), FixtureID("page", 4))
	require.NotEqual(t, FixtureID("page", 3), FixtureID("block", 3))
}

func TestPaginateCursorIsNextItemID(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	id := func(s string) string { return s }

	first, err := paginate(items, id, "", 2)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, first.Results)
	require.True(t, first.HasMore)
	require.Equal(t, "c", *first.NextCursor)

	last, err := paginate(items, id, "e", 2)
	require.NoError(t, err)
	require.Equal(t, []string{"e"}, last.Results)
	require.False(t, last.HasMore)
	require.Nil(t, last.NextCursor)

	_, err = paginate(items, id, "zzz", 2)
	require.ErrorIs(t, err, errInvalidCursor)
}

func TestPaginateEmpty(t *testing.T) {
	body, err := paginate([]string(nil), func(s string) string { return s }, "", 10)
	require.NoError(t, err)
	require.Equal(t, []string{}, body.Results)
	require.False(t, body.HasMore)
}

func TestListUsersWalksAllPages(t *testing.T) {
	r, _ := newTestRouter(25, 10)

	var names []string
	cursor := ""
	for pages := 0; ; pages++ {
		require.Less(t, pages, 5)
		target := "/v1/users"
		if cursor != "" {
			target += "?start_cursor=" + cursor
		}
		rec := do(t, r, http.MethodGet, target, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		page := decode[listPage[core.User]](t, rec)
		require.Equal(t, "list", page.Object)
		for _, u := range page.Results {
			names = append(names, u.Name)
		}
		if !page.HasMore {
			break
		}
		cursor = *page.NextCursor
	}
	require.Len(t, names, 25)
	require.Equal(t, "User 001", names[0])
	require.Equal(t, "User 025", names[24])
}

func TestListRejectsBadParams(t *testing.T) {
	r, _ := newTestRouter(5, 10)

	for _, target := range []string{
		"/v1/users?page_size=0x",
		"/v1/users?page_size=101",
		"/v1/users?start_cursor=unknown",
		"/v1/comments",
	} {
		t.Run(target, func(t *testing.T) {
			rec := do(t, r, http.MethodGet, target, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode[apperrors.HTTPErrorBody](t, rec)
			require.Equal(t, apperrors.CodeInvalidInput, body.Code)
		})
	}
}

func TestGetPageNotFound(t *testing.T) {
	r, _ := newTestRouter(5, 10)
	rec := do(t, r, http.MethodGet, "/v1/pages/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, apperrors.CodeNotFound, decode[apperrors.HTTPErrorBody](t, rec).Code)
}

func TestGetPageReturnsTitle(t *testing.T) {
	r, _ := newTestRouter(5, 10)
	rec := do(t, r, http.MethodGet, "/v1/pages/"+FixtureID("page", 2), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[core.Page](t, rec)
	require.Equal(t, "Task 002", page.Title())
	require.Equal(t, DataSourceID, page.Parent.DataSourceID)
}

func TestSearchFiltersAndPaginatesInBody(t *testing.T) {
	r, _ := newTestRouter(12, 100)

	rec := do(t, r, http.MethodPost, "/v1/search", map[string]any{"query": "task", "page_size": 5})
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[listPage[core.SearchResult]](t, rec)
	require.Len(t, first.Results, 5)
	require.Equal(t, core.ObjectDataSource, first.Results[0].Object())
	require.True(t, first.HasMore)

	rec = do(t, r, http.MethodPost, "/v1/search", map[string]any{
		"query":        "task",
		"page_size":    100,
		"start_cursor": *first.NextCursor,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rest := decode[listPage[core.SearchResult]](t, rec)
	require.Len(t, rest.Results, 8)
	require.False(t, rest.HasMore)

	rec = do(t, r, http.MethodPost, "/v1/search", map[string]any{
		"filter": map[string]string{"property": "object", "value": "data_source"},
	})
	only := decode[listPage[core.SearchResult]](t, rec)
	require.Len(t, only.Results, 1)
	require.Equal(t, "Tasks", only.Results[0].Title())

	rec = do(t, r, http.MethodPost, "/v1/search", map[string]any{
		"filter": map[string]string{"property": "object", "value": "block"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryDatabaseAndDataSource(t *testing.T) {
	r, _ := newTestRouter(7, 100)

	for _, target := range []string{
		"/v1/databases/" + DatabaseID + "/query",
		"/v1/data_sources/" + DataSourceID + "/query",
	} {
		rec := do(t, r, http.MethodPost, target, map[string]any{"page_size": 4})
		require.Equal(t, http.StatusOK, rec.Code)
		page := decode[listPage[core.Page]](t, rec)
		require.Len(t, page.Results, 4)
		require.Equal(t, FixtureID("page", 5), *page.NextCursor)
	}

	rec := do(t, r, http.MethodPost, "/v1/data_sources/missing/query", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBlockChildrenAndAppend(t *testing.T) {
	r, _ := newTestRouter(3, 100)

	rec := do(t, r, http.MethodGet, "/v1/blocks/"+HomePageID+"/children", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	children := decode[listPage[core.Block]](t, rec)
	require.Len(t, children.Results, 3)
	require.Equal(t, "paragraph", children.Results[0].Type)
	require.Contains(t, string(children.Results[0].Content), "Paragraph 001")

	parent := children.Results[0].ID
	rec = do(t, r, http.MethodPatch, "/v1/blocks/"+parent+"/children", map[string]any{
		"children": []json.RawMessage{json.RawMessage(`{"type":"to_do","to_do":{"checked":false}}`)},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	created := decode[listPage[core.Block]](t, rec)
	require.Len(t, created.Results, 1)
	require.Equal(t, parent, created.Results[0].Parent.BlockID)

	rec = do(t, r, http.MethodGet, "/v1/blocks/"+parent, nil)
	require.True(t, decode[core.Block](t, rec).HasChildren)

	rec = do(t, r, http.MethodGet, "/v1/blocks/missing/children", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAndUpdatePage(t *testing.T) {
	r, f := newTestRouter(2, 100)

	rec := do(t, r, http.MethodPost, "/v1/pages", map[string]any{
		"parent":     map[string]any{"type": "data_source_id", "data_source_id": DataSourceID},
		"properties": map[string]json.RawMessage{"Name": titleProperty("New task")},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[core.Page](t, rec)
	require.Equal(t, "New task", page.Title())

	rows, ok := f.Rows(DataSourceID)
	require.True(t, ok)
	require.Len(t, rows, 3)

	rec = do(t, r, http.MethodPatch, "/v1/pages/"+page.ID, map[string]any{"in_trash": true})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decode[core.Page](t, rec).InTrash)

	rows, _ = f.Rows(DataSourceID)
	require.Len(t, rows, 2)

	rec = do(t, r, http.MethodPost, "/v1/pages", map[string]any{"properties": map[string]any{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommentsListAndReply(t *testing.T) {
	r, _ := newTestRouter(4, 100)

	rec := do(t, r, http.MethodGet, "/v1/comments?block_id="+HomePageID+"&page_size=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[listPage[core.Comment]](t, rec)
	require.Len(t, page.Results, 3)
	require.True(t, page.HasMore)

	discussion := page.Results[0].DiscussionID
	rec = do(t, r, http.MethodPost, "/v1/comments", map[string]any{
		"discussion_id": discussion,
		"rich_text":     []core.RichText{{Type: "text", PlainText: "reply"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	reply := decode[core.Comment](t, rec)
	require.Equal(t, discussion, reply.DiscussionID)
	require.Equal(t, HomePageID, reply.Parent.PageID)

	rec = do(t, r, http.MethodPost, "/v1/comments", map[string]any{
		"discussion_id": "missing",
		"rich_text":     []core.RichText{{Type: "text", PlainText: "reply"}},
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUsersMeAndFileUploads(t *testing.T) {
	r, _ := newTestRouter(20, 100)

	rec := do(t, r, http.MethodGet, "/v1/users/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "bot", decode[core.User](t, rec).Type)

	rec = do(t, r, http.MethodGet, "/v1/file_uploads", nil)
	uploads := decode[listPage[core.FileUpload]](t, rec)
	require.Len(t, uploads.Results, 2)
	require.True(t, strings.HasSuffix(uploads.Results[0].Filename, ".pdf"))
}

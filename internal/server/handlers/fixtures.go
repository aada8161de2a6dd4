package handlers

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pagewire/pagewire/internal/core"
)

// fixtureEpoch anchors every fixture timestamp so responses are stable.
var fixtureEpoch = time.Date(2025, time.January, 1, 9, 0, 0, 0, time.UTC)

// FixtureID returns the stable id of the nth fixture object of kind.
func FixtureID(kind string, n int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("pagewire/%s/%d", kind, n))).String()
}

// Well-known fixture ids.
var (
	HomePageID   = FixtureID("page", 0)
	DatabaseID   = FixtureID("database", 0)
	DataSourceID = FixtureID("data_source", 0)
	BotUserID    = FixtureID("bot", 0)
)

// Fixtures is the in-memory workspace served by the mock API: a home page
// with n paragraph blocks and n comments, a database whose data source holds
// n task pages, n users and n/10 file uploads. Writes are kept in memory.
type Fixtures struct {
	mu sync.RWMutex

	bot        core.User
	users      []core.User
	pages      []core.Page
	database   core.Database
	dataSource core.DataSource
	rows       []string
	blocks     map[string][]core.Block
	comments   map[string][]core.Comment
	uploads    []core.FileUpload
}

func NewFixtures(n int) *Fixtures {
	n = max(n, 0)
	f := &Fixtures{
		blocks:   make(map[string][]core.Block),
		comments: make(map[string][]core.Comment),
	}

	f.bot = core.User{Object: core.ObjectUser, ID: BotUserID, Type: "bot", Name: "pagewire"}
	for i := 1; i <= n; i++ {
		f.users = append(f.users, core.User{
			Object: core.ObjectUser,
			ID:     FixtureID("user", i),
			Type:   "person",
			Name:   fmt.Sprintf("User %03d", i),
			Email:  fmt.Sprintf("user%03d@example.com", i),
		})
	}

	workspace := core.Parent{Type: "workspace", Workspace: true}
	f.pages = append(f.pages, newFixturePage(HomePageID, "Home", workspace, fixtureEpoch))

	f.dataSource = core.DataSource{
		Object: core.ObjectDataSource,
		ID:     DataSourceID,
		Title:  textRuns("Tasks"),
		Parent: core.Parent{Type: "database_id", DatabaseID: DatabaseID},
		Properties: map[string]json.RawMessage{
			"Name": json.RawMessage(`{"id":"title","type":"title","title":{}}`),
		},
	}
	f.database = core.Database{
		Object:         core.ObjectDatabase,
		ID:             DatabaseID,
		Title:          textRuns("Tasks"),
		CreatedTime:    fixtureEpoch,
		LastEditedTime: fixtureEpoch,
		Parent:         core.Parent{Type: "page_id", PageID: HomePageID},
		DataSources:    []core.DataSourceRef{{ID: DataSourceID, Name: "Tasks"}},
	}

	row := core.Parent{Type: "data_source_id", DataSourceID: DataSourceID, DatabaseID: DatabaseID}
	for i := 1; i <= n; i++ {
		page := newFixturePage(FixtureID("page", i), fmt.Sprintf("Task %03d", i), row, fixtureEpoch.Add(time.Duration(i)*time.Minute))
		f.pages = append(f.pages, page)
		f.rows = append(f.rows, page.ID)
	}

	home := core.Parent{Type: "page_id", PageID: HomePageID}
	for i := 1; i <= n; i++ {
		f.blocks[HomePageID] = append(f.blocks[HomePageID], newParagraph(FixtureID("block", i), fmt.Sprintf("Paragraph %03d", i), home, fixtureEpoch))
		f.comments[HomePageID] = append(f.comments[HomePageID], core.Comment{
			Object:       core.ObjectComment,
			ID:           FixtureID("comment", i),
			Parent:       home,
			DiscussionID: FixtureID("discussion", (i+1)/2),
			RichText:     textRuns(fmt.Sprintf("Comment %03d", i)),
			CreatedTime:  fixtureEpoch.Add(time.Duration(i) * time.Second),
			CreatedBy:    &core.PartialUser{Object: core.ObjectUser, ID: FixtureID("user", 1)},
		})
	}

	for i := 1; i <= n/10; i++ {
		f.uploads = append(f.uploads, core.FileUpload{
			Object:      core.ObjectFileUpload,
			ID:          FixtureID("file_upload", i),
			Status:      "uploaded",
			Filename:    fmt.Sprintf("attachment-%03d.pdf", i),
			ContentType: "application/pdf",
			CreatedTime: fixtureEpoch,
		})
	}
	return f
}

func newFixturePage(id, title string, parent core.Parent, created time.Time) core.Page {
	return core.Page{
		Object:         core.ObjectPage,
		ID:             id,
		CreatedTime:    created,
		LastEditedTime: created,
		Parent:         parent,
		URL:            "https://pagewire.dev/" + strings.ReplaceAll(id, "-", ""),
		Properties:     map[string]json.RawMessage{"Name": titleProperty(title)},
	}
}

func newParagraph(id, text string, parent core.Parent, created time.Time) core.Block {
	content, _ := json.Marshal(map[string]any{"rich_text": textRuns(text)})
	return core.Block{
		Object:         core.ObjectBlock,
		ID:             id,
		Type:           "paragraph",
		Parent:         parent,
		CreatedTime:    created,
		LastEditedTime: created,
		Content:        content,
	}
}

func textRuns(text string) []core.RichText {
	return []core.RichText{{Type: "text", PlainText: text}}
}

func titleProperty(title string) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{"id": "title", "type": "title", "title": textRuns(title)})
	return raw
}

func (f *Fixtures) Bot() core.User {
	return f.bot
}

func (f *Fixtures) Users() []core.User {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.users)
}

func (f *Fixtures) User(id string) (core.User, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if id == f.bot.ID {
		return f.bot, true
	}
	i := slices.IndexFunc(f.users, func(u core.User) bool { return u.ID == id })
	if i < 0 {
		return core.User{}, false
	}
	return f.users[i], true
}

func (f *Fixtures) Page(id string) (core.Page, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	i := f.pageIndex(id)
	if i < 0 {
		return core.Page{}, false
	}
	return f.pages[i], true
}

func (f *Fixtures) pageIndex(id string) int {
	return slices.IndexFunc(f.pages, func(p core.Page) bool { return p.ID == id })
}

// Database returns the database with id.
func (f *Fixtures) Database(id string) (core.Database, bool) {
	if id != f.database.ID {
		return core.Database{}, false
	}
	return f.database, true
}

// Rows returns the pages of a data source, or false when it is unknown.
func (f *Fixtures) Rows(dataSourceID string) ([]core.Page, bool) {
	if dataSourceID != f.dataSource.ID {
		return nil, false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	rows := make([]core.Page, 0, len(f.rows))
	for _, id := range f.rows {
		if i := f.pageIndex(id); i >= 0 && !f.pages[i].InTrash {
			rows = append(rows, f.pages[i])
		}
	}
	return rows, true
}

// Search returns pages and the data source whose title contains query,
// optionally restricted to one object type.
func (f *Fixtures) Search(query string, object core.ObjectType) []core.SearchResult {
	f.mu.RLock()
	defer f.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	matches := func(title string) bool {
		return query == "" || strings.Contains(strings.ToLower(title), query)
	}

	var results []core.SearchResult
	if object == "" || object == core.ObjectDataSource {
		if matches(core.PlainText(f.dataSource.Title)) {
			ds := f.dataSource
			results = append(results, core.SearchResult{DataSource: &ds})
		}
	}
	if object == "" || object == core.ObjectPage {
		for i := range f.pages {
			if f.pages[i].InTrash || !matches(f.pages[i].Title()) {
				continue
			}
			page := f.pages[i]
			results = append(results, core.SearchResult{Page: &page})
		}
	}
	return results
}

// Block finds a block by id among all children lists.
func (f *Fixtures) Block(id string) (core.Block, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, children := range f.blocks {
		if i := slices.IndexFunc(children, func(b core.Block) bool { return b.ID == id }); i >= 0 {
			return children[i], true
		}
	}
	return core.Block{}, false
}

// Children returns the child blocks of a page or block. Unknown parents
// report false.
func (f *Fixtures) Children(parentID string) ([]core.Block, bool) {
	if !f.exists(parentID) {
		return nil, false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.blocks[parentID]), true
}

func (f *Fixtures) exists(id string) bool {
	if _, ok := f.Page(id); ok {
		return true
	}
	_, ok := f.Block(id)
	return ok
}

func (f *Fixtures) Comments(parentID string) ([]core.Comment, bool) {
	if !f.exists(parentID) {
		return nil, false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.comments[parentID]), true
}

func (f *Fixtures) FileUploads() []core.FileUpload {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.uploads)
}

// CreatePage adds a page under parent. A data source parent makes it a row.
func (f *Fixtures) CreatePage(parent core.Parent, properties map[string]json.RawMessage, now time.Time) (core.Page, error) {
	switch {
	case parent.DataSourceID != "":
		if parent.DataSourceID != f.dataSource.ID {
			return core.Page{}, fmt.Errorf("data source %s not found", parent.DataSourceID)
		}
	case parent.PageID != "":
		if _, ok := f.Page(parent.PageID); !ok {
			return core.Page{}, fmt.Errorf("page %s not found", parent.PageID)
		}
	case !parent.Workspace:
		return core.Page{}, fmt.Errorf("unsupported parent type %q", parent.Type)
	}

	page := newFixturePage(uuid.NewString(), "", parent, now)
	if len(properties) > 0 {
		page.Properties = properties
	}
	page.CreatedBy = &core.PartialUser{Object: core.ObjectUser, ID: f.bot.ID}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = append(f.pages, page)
	if parent.DataSourceID != "" {
		f.rows = append(f.rows, page.ID)
	}
	return page, nil
}

// PageUpdate patches a page. Nil fields are left alone.
type PageUpdate struct {
	Properties map[string]json.RawMessage
	Archived   *bool
	InTrash    *bool
}

func (f *Fixtures) UpdatePage(id string, update PageUpdate, now time.Time) (core.Page, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.pageIndex(id)
	if i < 0 {
		return core.Page{}, false
	}
	page := &f.pages[i]
	if len(update.Properties) > 0 {
		props := make(map[string]json.RawMessage, len(page.Properties)+len(update.Properties))
		for k, v := range page.Properties {
			props[k] = v
		}
		for k, v := range update.Properties {
			props[k] = v
		}
		page.Properties = props
	}
	if update.Archived != nil {
		page.Archived = *update.Archived
	}
	if update.InTrash != nil {
		page.InTrash = *update.InTrash
	}
	page.LastEditedTime = now
	return *page, true
}

// AppendChildren adds blocks under a page or block and returns them with
// ids assigned.
func (f *Fixtures) AppendChildren(parentID string, children []core.Block, now time.Time) ([]core.Block, bool) {
	parent := core.Parent{Type: "block_id", BlockID: parentID}
	if _, ok := f.Page(parentID); ok {
		parent = core.Parent{Type: "page_id", PageID: parentID}
	} else if _, ok := f.Block(parentID); !ok {
		return nil, false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	created := make([]core.Block, 0, len(children))
	for _, child := range children {
		child.Object = core.ObjectBlock
		child.ID = uuid.NewString()
		child.Parent = parent
		child.CreatedTime = now
		child.LastEditedTime = now
		created = append(created, child)
	}
	f.blocks[parentID] = append(f.blocks[parentID], created...)
	if parent.BlockID != "" {
		f.markHasChildren(parentID)
	}
	return created, true
}

func (f *Fixtures) markHasChildren(blockID string) {
	for key, siblings := range f.blocks {
		for i := range siblings {
			if siblings[i].ID == blockID {
				f.blocks[key][i].HasChildren = true
				return
			}
		}
	}
}

// CreateComment starts a discussion on parentID or replies to discussionID.
func (f *Fixtures) CreateComment(parentID, discussionID string, text []core.RichText, now time.Time) (core.Comment, error) {
	if discussionID != "" {
		found := false
		f.mu.RLock()
		for id, comments := range f.comments {
			if slices.ContainsFunc(comments, func(c core.Comment) bool { return c.DiscussionID == discussionID }) {
				parentID, found = id, true
				break
			}
		}
		f.mu.RUnlock()
		if !found {
			return core.Comment{}, fmt.Errorf("discussion %s not found", discussionID)
		}
	} else {
		discussionID = uuid.NewString()
	}

	parent := core.Parent{Type: "page_id", PageID: parentID}
	if _, ok := f.Page(parentID); !ok {
		if _, ok := f.Block(parentID); !ok {
			return core.Comment{}, fmt.Errorf("parent %s not found", parentID)
		}
		parent = core.Parent{Type: "block_id", BlockID: parentID}
	}

	comment := core.Comment{
		Object:       core.ObjectComment,
		ID:           uuid.NewString(),
		Parent:       parent,
		DiscussionID: discussionID,
		RichText:     text,
		CreatedTime:  now,
		CreatedBy:    &core.PartialUser{Object: core.ObjectUser, ID: f.bot.ID},
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[parentID] = append(f.comments[parentID], comment)
	return comment, nil
}

package core

import (
	"encoding/json"
	"time"
)

// ObjectType is the "object" discriminator carried by every API object.
type ObjectType string

const (
	ObjectPage       ObjectType = "page"
	ObjectDatabase   ObjectType = "database"
	ObjectDataSource ObjectType = "data_source"
	ObjectBlock      ObjectType = "block"
	ObjectComment    ObjectType = "comment"
	ObjectUser       ObjectType = "user"
	ObjectFileUpload ObjectType = "file_upload"
	ObjectList       ObjectType = "list"
	ObjectError      ObjectType = "error"
)

// Parent locates an object in the workspace tree.
type Parent struct {
	Type         string `json:"type"`
	PageID       string `json:"page_id,omitempty"`
	DatabaseID   string `json:"database_id,omitempty"`
	DataSourceID string `json:"data_source_id,omitempty"`
	BlockID      string `json:"block_id,omitempty"`
	Workspace    bool   `json:"workspace,omitempty"`
}

// RichText is a single run of formatted text. Annotations are kept raw.
type RichText struct {
	Type        string          `json:"type"`
	PlainText   string          `json:"plain_text"`
	Href        string          `json:"href,omitempty"`
	Annotations json.RawMessage `json:"annotations,omitempty"`
}

// PlainText joins the plain text of every run.
func PlainText(runs []RichText) string {
	var out string
	for _, run := range runs {
		out += run.PlainText
	}
	return out
}

// PartialUser is the user reference embedded in other objects.
type PartialUser struct {
	Object ObjectType `json:"object"`
	ID     string     `json:"id"`
}

// Page is a workspace page. Properties are left undecoded.
type Page struct {
	Object         ObjectType                 `json:"object"`
	ID             string                     `json:"id"`
	CreatedTime    time.Time                  `json:"created_time"`
	LastEditedTime time.Time                  `json:"last_edited_time"`
	CreatedBy      *PartialUser               `json:"created_by,omitempty"`
	Parent         Parent                     `json:"parent"`
	Archived       bool                       `json:"archived"`
	InTrash        bool                       `json:"in_trash,omitempty"`
	URL            string                     `json:"url,omitempty"`
	Properties     map[string]json.RawMessage `json:"properties,omitempty"`
}

// Title returns the plain text of the page's title property, if any.
func (p Page) Title() string {
	for _, raw := range p.Properties {
		var prop struct {
			Type  string     `json:"type"`
			Title []RichText `json:"title"`
		}
		if err := json.Unmarshal(raw, &prop); err != nil || prop.Type != "title" {
			continue
		}
		return PlainText(prop.Title)
	}
	return ""
}

// Database is a database container with its data sources.
type Database struct {
	Object         ObjectType      `json:"object"`
	ID             string          `json:"id"`
	Title          []RichText      `json:"title,omitempty"`
	CreatedTime    time.Time       `json:"created_time"`
	LastEditedTime time.Time       `json:"last_edited_time"`
	Parent         Parent          `json:"parent"`
	DataSources    []DataSourceRef `json:"data_sources,omitempty"`
	Archived       bool            `json:"archived"`
	URL            string          `json:"url,omitempty"`
}

// DataSourceRef names a data source of a database.
type DataSourceRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DataSource is a queryable table, returned by search next to pages.
type DataSource struct {
	Object     ObjectType                 `json:"object"`
	ID         string                     `json:"id"`
	Title      []RichText                 `json:"title,omitempty"`
	Parent     Parent                     `json:"parent"`
	Properties map[string]json.RawMessage `json:"properties,omitempty"`
}

// Block is a content block. The type-specific payload is kept raw under Type.
type Block struct {
	Object         ObjectType      `json:"object"`
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	Parent         Parent          `json:"parent"`
	HasChildren    bool            `json:"has_children"`
	Archived       bool            `json:"archived"`
	CreatedTime    time.Time       `json:"created_time"`
	LastEditedTime time.Time       `json:"last_edited_time"`
	Content        json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the payload named by Type in Content.
func (b *Block) UnmarshalJSON(data []byte) error {
	type plain Block
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*b = Block(decoded)
	if b.Type == "" {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	b.Content = fields[b.Type]
	return nil
}

// MarshalJSON writes Content back under Type.
func (b Block) MarshalJSON() ([]byte, error) {
	type plain Block
	encoded, err := json.Marshal(plain(b))
	if err != nil || b.Type == "" || len(b.Content) == 0 {
		return encoded, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return nil, err
	}
	fields[b.Type] = b.Content
	return json.Marshal(fields)
}

// Comment is a discussion comment on a page or block.
type Comment struct {
	Object       ObjectType   `json:"object"`
	ID           string       `json:"id"`
	Parent       Parent       `json:"parent"`
	DiscussionID string       `json:"discussion_id"`
	RichText     []RichText   `json:"rich_text"`
	CreatedTime  time.Time    `json:"created_time"`
	CreatedBy    *PartialUser `json:"created_by,omitempty"`
}

// User is a workspace member or bot.
type User struct {
	Object    ObjectType `json:"object"`
	ID        string     `json:"id"`
	Type      string     `json:"type,omitempty"`
	Name      string     `json:"name,omitempty"`
	AvatarURL string     `json:"avatar_url,omitempty"`
	Email     string     `json:"email,omitempty"`
}

// FileUpload tracks an upload session.
type FileUpload struct {
	Object      ObjectType `json:"object"`
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Filename    string     `json:"filename,omitempty"`
	ContentType string     `json:"content_type,omitempty"`
	CreatedTime time.Time  `json:"created_time"`
	ExpiryTime  *time.Time `json:"expiry_time,omitempty"`
}

// SearchResult is a page or data source returned by search. Exactly one of
// Page and DataSource is set.
type SearchResult struct {
	Page       *Page
	DataSource *DataSource
}

// ID returns the id of whichever object is set.
func (r SearchResult) ID() string {
	switch {
	case r.Page != nil:
		return r.Page.ID
	case r.DataSource != nil:
		return r.DataSource.ID
	default:
		return ""
	}
}

// Object returns the discriminator of the result.
func (r SearchResult) Object() ObjectType {
	switch {
	case r.Page != nil:
		return ObjectPage
	case r.DataSource != nil:
		return ObjectDataSource
	default:
		return ""
	}
}

// Title returns a display title for the result.
func (r SearchResult) Title() string {
	switch {
	case r.Page != nil:
		return r.Page.Title()
	case r.DataSource != nil:
		return PlainText(r.DataSource.Title)
	default:
		return ""
	}
}

func (r *SearchResult) UnmarshalJSON(data []byte) error {
	var head struct {
		Object ObjectType `json:"object"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	switch head.Object {
	case ObjectDataSource, ObjectDatabase:
		r.DataSource = &DataSource{}
		return json.Unmarshal(data, r.DataSource)
	default:
		r.Page = &Page{}
		return json.Unmarshal(data, r.Page)
	}
}

func (r SearchResult) MarshalJSON() ([]byte, error) {
	if r.DataSource != nil {
		return json.Marshal(r.DataSource)
	}
	return json.Marshal(r.Page)
}

package output

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	dto "github.com/prometheus/client_model/go"

	"github.com/pagewire/pagewire/internal/core"
	"github.com/pagewire/pagewire/internal/core/client"
	"github.com/pagewire/pagewire/internal/core/store"
)

const maxCell = 60

// Pages lists pages with their titles.
func Pages(pages []core.Page) Document {
	doc := Document{
		Header: []string{"ID", "Title", "Parent", "Last Edited"},
		Data:   nonNil(pages),
	}
	for _, p := range pages {
		doc.Rows = append(doc.Rows, []string{p.ID, truncate(p.Title()), parentLabel(p.Parent), timestamp(p.LastEditedTime)})
	}
	doc.Footer = count(len(pages), "page")
	return doc
}

// PageResults lists the outcome of a concurrent page retrieval.
func PageResults(results []client.PageResult) Document {
	type item struct {
		ID    string     `json:"id"`
		Page  *core.Page `json:"page,omitempty"`
		Error string     `json:"error,omitempty"`
	}

	doc := Document{Header: []string{"ID", "Title", "Status"}}
	data := make([]item, 0, len(results))
	failed := 0
	for _, r := range results {
		entry := item{ID: r.ID, Page: r.Page}
		status, title := "ok", ""
		if r.Err != nil {
			failed++
			entry.Error = r.Err.Error()
			status = truncate(r.Err.Error())
		} else if r.Page != nil {
			title = truncate(r.Page.Title())
		}
		data = append(data, entry)
		doc.Rows = append(doc.Rows, []string{r.ID, title, status})
	}
	doc.Data = data
	doc.Footer = fmt.Sprintf("%d/%d retrieved", len(results)-failed, len(results))
	return doc
}

// Blocks lists child blocks.
func Blocks(blocks []core.Block) Document {
	doc := Document{
		Header: []string{"ID", "Type", "Children", "Text"},
		Data:   nonNil(blocks),
	}
	for _, b := range blocks {
		doc.Rows = append(doc.Rows, []string{b.ID, b.Type, strconv.FormatBool(b.HasChildren), truncate(blockText(b))})
	}
	doc.Footer = count(len(blocks), "block")
	return doc
}

// Users lists workspace users.
func Users(users []core.User) Document {
	doc := Document{
		Header: []string{"ID", "Type", "Name", "Email"},
		Data:   nonNil(users),
	}
	for _, u := range users {
		doc.Rows = append(doc.Rows, []string{u.ID, u.Type, u.Name, u.Email})
	}
	doc.Footer = count(len(users), "user")
	return doc
}

// Comments lists discussion comments.
func Comments(comments []core.Comment) Document {
	doc := Document{
		Header: []string{"ID", "Discussion", "Created", "Text"},
		Data:   nonNil(comments),
	}
	for _, c := range comments {
		doc.Rows = append(doc.Rows, []string{c.ID, c.DiscussionID, timestamp(c.CreatedTime), truncate(core.PlainText(c.RichText))})
	}
	doc.Footer = count(len(comments), "comment")
	return doc
}

// SearchResults lists pages and data sources found by search.
func SearchResults(results []core.SearchResult) Document {
	doc := Document{
		Header: []string{"Object", "ID", "Title"},
		Data:   nonNil(results),
	}
	for _, r := range results {
		doc.Rows = append(doc.Rows, []string{string(r.Object()), r.ID(), truncate(r.Title())})
	}
	doc.Footer = count(len(results), "result")
	return doc
}

// RateLimits lists persisted tracker state.
func RateLimits(entries []store.RateLimitEntry) Document {
	doc := Document{
		Title:  "Rate Limits",
		Header: []string{"Endpoint", "Requests", "Remaining", "Reset", "Backoff Until"},
		Data:   nonNil(entries),
	}
	for _, e := range entries {
		remaining := "-"
		if e.State.Limit > 0 {
			remaining = fmt.Sprintf("%d/%d", e.State.Remaining, e.State.Limit)
		}
		doc.Rows = append(doc.Rows, []string{
			e.Endpoint,
			strconv.Itoa(e.State.RequestCount),
			remaining,
			optionalTime(e.State.ResetAt),
			optionalTime(e.State.BackoffUntil),
		})
	}
	return doc
}

// RateLimitsBox renders entries as a boxed summary for terminals.
func RateLimitsBox(entries []store.RateLimitEntry) string {
	lines := []string{"Rate Limits", ""}
	if len(entries) == 0 {
		lines = append(lines, "(no stored rate limit state)")
		return ascii.DrawBox(strings.Join(lines, "\n"), 0)
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s: count=%d backoff_until=%s", e.Endpoint, e.State.RequestCount, optionalTime(e.State.BackoffUntil))
		if e.State.Limit > 0 {
			line += fmt.Sprintf(" remaining=%d/%d reset=%s", e.State.Remaining, e.State.Limit, optionalTime(e.State.ResetAt))
		}
		lines = append(lines, line)
	}
	return ascii.DrawBox(strings.Join(lines, "\n"), 0)
}

// metricSample is one gathered series.
type metricSample struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
	Count  uint64            `json:"count,omitempty"`
}

// Metrics summarises gathered families whose names start with prefix.
// Histograms report their sample count and sum.
func Metrics(families []*dto.MetricFamily, prefix string) Document {
	doc := Document{
		Title:  "Client Metrics",
		Header: []string{"Metric", "Labels", "Value"},
	}
	samples := []metricSample{}

	for _, family := range families {
		name := family.GetName()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		for _, m := range family.GetMetric() {
			sample := metricSample{Name: name, Labels: labelMap(m.GetLabel())}
			value := ""
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				sample.Value = m.GetCounter().GetValue()
				value = formatFloat(sample.Value)
			case dto.MetricType_GAUGE:
				sample.Value = m.GetGauge().GetValue()
				value = formatFloat(sample.Value)
			case dto.MetricType_HISTOGRAM:
				sample.Value = m.GetHistogram().GetSampleSum()
				sample.Count = m.GetHistogram().GetSampleCount()
				value = fmt.Sprintf("n=%d sum=%s", sample.Count, formatFloat(sample.Value))
			default:
				continue
			}
			samples = append(samples, sample)
			doc.Rows = append(doc.Rows, []string{name, labelString(sample.Labels), value})
		}
	}
	doc.Data = samples
	return doc
}

func labelMap(pairs []*dto.LabelPair) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	labels := make(map[string]string, len(pairs))
	for _, p := range pairs {
		labels[p.GetName()] = p.GetValue()
	}
	return labels
}

func labelString(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+labels[k])
	}
	return strings.Join(parts, ",")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// blockText extracts the rich text of text-like blocks.
func blockText(b core.Block) string {
	if len(b.Content) == 0 {
		return ""
	}
	var payload struct {
		RichText []core.RichText `json:"rich_text"`
	}
	if err := json.Unmarshal(b.Content, &payload); err != nil {
		return ""
	}
	return core.PlainText(payload.RichText)
}

func parentLabel(p core.Parent) string {
	switch {
	case p.PageID != "":
		return "page:" + p.PageID
	case p.DataSourceID != "":
		return "data_source:" + p.DataSourceID
	case p.DatabaseID != "":
		return "database:" + p.DatabaseID
	case p.BlockID != "":
		return "block:" + p.BlockID
	case p.Workspace:
		return "workspace"
	default:
		return p.Type
	}
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func optionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return timestamp(*t)
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= maxCell {
		return s
	}
	return string([]rune(s)[:maxCell-1]) + "…"
}

func count(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// nonNil keeps empty results encoding as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

package confluence

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driven"
)

// pageExpand is requested on every listing so records carry everything
// the sync engine needs without a second round trip.
const pageExpand = "version,metadata.labels,ancestors,space"

// cqlTime is the minute-resolution format CQL date comparisons accept.
const cqlTime = "2006-01-02 15:04"

// cqlTimeMargin widens lastmodified cutoffs. Confluence reads CQL dates in
// the requesting user's timezone, which can be up to 14 hours from UTC.
// Pages in the overlap are listed again and skipped by the version check.
const cqlTimeMargin = 24 * time.Hour

// ==================== Wire types ====================

type contentList struct {
	Results []content `json:"results"`
	Links   struct {
		Next string `json:"next"`
	} `json:"_links"`
}

type content struct {
	ID        string       `json:"id"`
	Type      string       `json:"type"`
	Title     string       `json:"title"`
	Space     *spaceRef    `json:"space"`
	Version   *versionInfo `json:"version"`
	Metadata  *metadata    `json:"metadata"`
	Ancestors []ancestor   `json:"ancestors"`
	Body      *contentBody `json:"body"`
	Links     webLinks     `json:"_links"`
}

type spaceRef struct {
	Key string `json:"key"`
}

type versionInfo struct {
	Number int       `json:"number"`
	When   time.Time `json:"when"`
	By     *user     `json:"by"`
}

type user struct {
	DisplayName string `json:"displayName"`
}

type metadata struct {
	Labels *labelList `json:"labels"`
}

type labelList struct {
	Results []label `json:"results"`
}

type label struct {
	Name string `json:"name"`
}

type ancestor struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type webLinks struct {
	WebUI string `json:"webui"`
}

type contentBody struct {
	ExportView *bodyValue `json:"export_view"`
	View       *bodyValue `json:"view"`
	Storage    *bodyValue `json:"storage"`
}

type bodyValue struct {
	Value string `json:"value"`
}

// record converts wire content into the typed listing record.
func (c content) record() domain.PageRecord {
	rec := domain.PageRecord{
		ID:    c.ID,
		Title: c.Title,
		WebUI: c.Links.WebUI,
	}
	if c.Space != nil {
		rec.SpaceKey = c.Space.Key
	}
	if v := c.Version; v != nil {
		rec.Version = domain.PageVersion{Number: v.Number, When: v.When}
		if v.By != nil {
			rec.Version.By = v.By.DisplayName
		}
	}
	if c.Metadata != nil && c.Metadata.Labels != nil {
		for _, l := range c.Metadata.Labels.Results {
			rec.Labels = append(rec.Labels, l.Name)
		}
	}
	for _, a := range c.Ancestors {
		rec.Ancestors = append(rec.Ancestors, domain.PageRef{ID: a.ID, Title: a.Title})
	}
	return rec
}

// ==================== Listing ====================

// ListPages returns one batch of current pages in a space.
// An empty cursor starts a new listing; later cursors are the server's
// next links and are only accepted when they point back into the REST API.
func (c *Client) ListPages(ctx context.Context, q driven.PageQuery, cursor string) (*driven.PageBatch, error) {
	if strings.TrimSpace(q.SpaceKey) == "" {
		return nil, fmt.Errorf("%w: space key is required", domain.ErrInvalidInput)
	}

	path := cursor
	if path == "" {
		path = c.listPath(q)
	} else if !validCursor(cursor) {
		return nil, fmt.Errorf("%w: %w", domain.ErrCorpus, ErrInvalidCursor)
	}

	var list contentList
	if err := c.get(ctx, path, &list); err != nil {
		return nil, err
	}

	batch := &driven.PageBatch{
		Records:    make([]domain.PageRecord, 0, len(list.Results)),
		NextCursor: list.Links.Next,
	}
	for _, item := range list.Results {
		if item.Type != "" && item.Type != "page" {
			continue
		}
		rec := item.record()
		if rec.SpaceKey == "" {
			rec.SpaceKey = q.SpaceKey
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch, nil
}

// listPath builds the first request of a listing. Plain space listings use
// the content endpoint; any filter switches to a CQL search.
func (c *Client) listPath(q driven.PageQuery) string {
	params := url.Values{}
	params.Set("expand", pageExpand)
	params.Set("limit", strconv.Itoa(c.pageSize))

	if len(q.Labels) == 0 && q.UpdatedAfter == nil && q.AncestorID == "" {
		params.Set("spaceKey", q.SpaceKey)
		params.Set("type", "page")
		params.Set("status", "current")
		return "/rest/api/content?" + params.Encode()
	}

	params.Set("cql", BuildCQL(q))
	return "/rest/api/content/search?" + params.Encode()
}

// BuildCQL renders a page query as a CQL expression.
func BuildCQL(q driven.PageQuery) string {
	clauses := []string{
		"space = " + quote(q.SpaceKey),
		"type = page",
	}
	if len(q.Labels) > 0 {
		labels := make([]string, len(q.Labels))
		for i, l := range q.Labels {
			labels[i] = quote(l)
		}
		clauses = append(clauses, "label in ("+strings.Join(labels, ", ")+")")
	}
	if q.UpdatedAfter != nil {
		clauses = append(clauses, "lastmodified > "+quote(q.UpdatedAfter.UTC().Add(-cqlTimeMargin).Format(cqlTime)))
	}
	if q.AncestorID != "" {
		clauses = append(clauses, "ancestor = "+quote(q.AncestorID))
	}
	return strings.Join(clauses, " AND ") + " ORDER BY lastmodified ASC"
}

// quote wraps a CQL value in double quotes.
func quote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}

func validCursor(cursor string) bool {
	return strings.HasPrefix(cursor, "/rest/api/") && !strings.Contains(cursor, "://")
}

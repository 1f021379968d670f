package domain

import (
	"fmt"
	"strings"
	"time"
)

// Page is one remote Confluence document.
// Version is the change-detection key used by incremental sync.
type Page struct {
	// ID is the Confluence content id.
	ID string

	// SpaceKey is the space the page belongs to.
	SpaceKey string

	// Title is the page title.
	Title string

	// URL is the absolute web link to the page.
	URL string

	// Labels are the page's global labels.
	Labels []string

	// Version is the monotonic version number.
	Version int

	// UpdatedAt is when the current version was published.
	UpdatedAt time.Time

	// UpdatedBy is the display name of the last editor.
	UpdatedBy string

	// ParentID is the direct parent page id, empty for space roots.
	ParentID string

	// Ancestors are the breadcrumb titles from the space root down to the parent.
	Ancestors []string
}

// HasLabel reports whether the page carries the given label (case-insensitive).
func (p Page) HasLabel(label string) bool {
	for _, l := range p.Labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

// PageRecord is a page as listed by the corpus source, before parsing.
// Connectors decode vendor JSON into this typed shape at the boundary.
type PageRecord struct {
	ID        string
	Title     string
	SpaceKey  string
	Version   PageVersion
	Labels    []string
	Ancestors []PageRef
	WebUI     string
}

// PageVersion is the version block of a page record.
type PageVersion struct {
	Number int
	When   time.Time
	By     string
}

// PageRef identifies an ancestor page.
type PageRef struct {
	ID    string
	Title string
}

// ParsePage converts a listed record into a Page.
// baseURL is prefixed to relative web links.
func ParsePage(rec PageRecord, spaceKey, baseURL string) (Page, error) {
	if rec.ID == "" {
		return Page{}, fmt.Errorf("%w: page record without id", ErrInvalidInput)
	}
	if rec.Version.Number <= 0 {
		return Page{}, fmt.Errorf("%w: page %s has no version", ErrInvalidInput, rec.ID)
	}

	page := Page{
		ID:        rec.ID,
		SpaceKey:  spaceKey,
		Title:     strings.TrimSpace(rec.Title),
		Labels:    append([]string(nil), rec.Labels...),
		Version:   rec.Version.Number,
		UpdatedAt: rec.Version.When,
		UpdatedBy: rec.Version.By,
		URL:       rec.WebUI,
	}
	if rec.SpaceKey != "" {
		page.SpaceKey = rec.SpaceKey
	}
	if rec.WebUI != "" && !strings.HasPrefix(rec.WebUI, "http://") && !strings.HasPrefix(rec.WebUI, "https://") {
		page.URL = strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(rec.WebUI, "/")
	}
	for _, a := range rec.Ancestors {
		page.Ancestors = append(page.Ancestors, a.Title)
	}
	if n := len(rec.Ancestors); n > 0 {
		page.ParentID = rec.Ancestors[n-1].ID
	}
	return page, nil
}

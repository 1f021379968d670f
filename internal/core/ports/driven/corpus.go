package driven

import (
	"context"
	"time"

	"github.com/DanielTromp/atlas/internal/core/domain"
)

// PageQuery selects which pages of a space to list.
type PageQuery struct {
	SpaceKey string

	// Labels keeps pages carrying any of these labels. Empty means all.
	Labels []string

	// UpdatedAfter keeps pages modified after this instant. Nil means unbounded.
	UpdatedAfter *time.Time

	// AncestorID keeps descendants of this page. Empty means the whole space.
	AncestorID string
}

// PageBatch is one page of listing results.
type PageBatch struct {
	Records []domain.PageRecord

	// NextCursor resumes the listing. Empty when the listing is exhausted.
	NextCursor string
}

// CorpusSource lists and exports pages from the remote wiki.
//
// Listing is a finite, restartable sequence driven by an opaque cursor:
// pass "" for the first batch and the returned NextCursor afterwards.
// The cursor is offset-based, so a page edited during a listing may move
// and appear in two batches. Callers deduplicate by page id.
type CorpusSource interface {
	// ListPages returns one batch of page records.
	ListPages(ctx context.Context, q PageQuery, cursor string) (*PageBatch, error)

	// ExportContent returns the page's renderable markup.
	// It prefers the export view, then the view, then storage format,
	// returning the first non-empty representation.
	ExportContent(ctx context.Context, pageID string) (string, error)

	// BaseURL is the wiki root used to absolutise page links.
	BaseURL() string
}

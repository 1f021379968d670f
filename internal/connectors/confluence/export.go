package confluence

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/DanielTromp/atlas/internal/core/domain"
)

const exportExpand = "body.export_view,body.view,body.storage"

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

// sanitizer returns the shared HTML policy for rendered page bodies.
// It keeps user-generated markup, including code block classes, and strips
// scripts, styles and event handlers.
func sanitizer() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.UGCPolicy()
		policy.AllowAttrs("class").OnElements("div", "pre", "code", "span")
	})
	return policy
}

// ExportContent fetches a page body, preferring the export view, then the
// rendered view, then raw storage format. Rendered HTML is sanitized.
// A page with no body at all yields "".
func (c *Client) ExportContent(ctx context.Context, pageID string) (string, error) {
	if strings.TrimSpace(pageID) == "" {
		return "", fmt.Errorf("%w: page id is required", domain.ErrInvalidInput)
	}

	path := "/rest/api/content/" + url.PathEscape(pageID) + "?expand=" + exportExpand
	var item content
	if err := c.get(ctx, path, &item); err != nil {
		return "", err
	}
	return selectBody(item.Body), nil
}

// selectBody returns the first non-empty representation.
func selectBody(body *contentBody) string {
	if body == nil {
		return ""
	}
	for _, rendered := range []*bodyValue{body.ExportView, body.View} {
		if rendered != nil && strings.TrimSpace(rendered.Value) != "" {
			return sanitizer().Sanitize(rendered.Value)
		}
	}
	if body.Storage != nil && strings.TrimSpace(body.Storage.Value) != "" {
		return body.Storage.Value
	}
	return ""
}

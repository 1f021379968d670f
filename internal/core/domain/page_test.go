package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParsePage_FullRecord tests that every record field lands on the page
func TestParsePage_FullRecord(t *testing.T) {
	when := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := PageRecord{
		ID:    "123",
		Title: "  VPN Troubleshooting ",
		Version: PageVersion{
			Number: 4,
			When:   when,
			By:     "Ops Team",
		},
		Labels: []string{"runbook"},
		Ancestors: []PageRef{
			{ID: "1", Title: "IT"},
			{ID: "7", Title: "Network"},
		},
		WebUI: "/spaces/OPS/pages/123",
	}

	page, err := ParsePage(rec, "OPS", "https://wiki.example.com/wiki/")
	require.NoError(t, err)

	assert.Equal(t, "123", page.ID)
	assert.Equal(t, "OPS", page.SpaceKey)
	assert.Equal(t, "VPN Troubleshooting", page.Title)
	assert.Equal(t, 4, page.Version)
	assert.Equal(t, when, page.UpdatedAt)
	assert.Equal(t, "Ops Team", page.UpdatedBy)
	assert.Equal(t, "7", page.ParentID)
	assert.Equal(t, []string{"IT", "Network"}, page.Ancestors)
	assert.Equal(t, "https://wiki.example.com/wiki/spaces/OPS/pages/123", page.URL)
	assert.True(t, page.HasLabel("RUNBOOK"))
}

// TestParsePage_AbsoluteURL tests that absolute links are kept as-is
func TestParsePage_AbsoluteURL(t *testing.T) {
	rec := PageRecord{ID: "1", Version: PageVersion{Number: 1}, WebUI: "https://other/x"}

	page, err := ParsePage(rec, "OPS", "https://wiki")
	require.NoError(t, err)
	assert.Equal(t, "https://other/x", page.URL)
	assert.Empty(t, page.ParentID)
}

// TestParsePage_Invalid tests malformed records
func TestParsePage_Invalid(t *testing.T) {
	tests := []struct {
		name string
		rec  PageRecord
	}{
		{"missing id", PageRecord{Version: PageVersion{Number: 1}}},
		{"missing version", PageRecord{ID: "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePage(tt.rec, "OPS", "")
			assert.True(t, errors.Is(err, ErrInvalidInput))
		})
	}
}

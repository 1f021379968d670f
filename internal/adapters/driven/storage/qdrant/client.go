package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/DanielTromp/atlas/internal/core/domain"
)

// statusError is returned for non-2xx responses.
type statusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// envelope is Qdrant's response wrapper.
type envelope struct {
	Result json.RawMessage `json:"result"`
	Status any             `json:"status"`
}

// do sends body as JSON and decodes the "result" field into out.
func (s *Store) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return fmt.Errorf("%w: creating request: %v", domain.ErrStore, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: qdrant %s %s: %v", domain.ErrStore, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %w", domain.ErrStore, &statusError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(msg)),
		})
	}

	if out == nil {
		return nil
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: decoding response: %v", domain.ErrStore, err)
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("%w: decoding result: %v", domain.ErrStore, err)
	}
	return nil
}

// ==================== Wire Types ====================

type point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector,omitempty"`
	Payload any       `json:"payload,omitempty"`
}

type storedPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload json.RawMessage `json:"payload"`
}

type match struct {
	Value any   `json:"value,omitempty"`
	Any   []any `json:"any,omitempty"`
}

type condition struct {
	Key   string   `json:"key,omitempty"`
	Match *match   `json:"match,omitempty"`
	HasID []string `json:"has_id,omitempty"`
}

type filter struct {
	Must    []condition `json:"must,omitempty"`
	MustNot []condition `json:"must_not,omitempty"`
}

func matchValue(key string, value any) condition {
	return condition{Key: key, Match: &match{Value: value}}
}

func matchAny(key string, values []string) condition {
	anyValues := make([]any, len(values))
	for i, v := range values {
		anyValues[i] = v
	}
	return condition{Key: key, Match: &match{Any: anyValues}}
}

type scrollRequest struct {
	Filter      *filter `json:"filter,omitempty"`
	Limit       int     `json:"limit"`
	Offset      any     `json:"offset,omitempty"`
	WithPayload bool    `json:"with_payload"`
	WithVector  bool    `json:"with_vector"`
}

type scrollResult struct {
	Points         []storedPoint `json:"points"`
	NextPageOffset any           `json:"next_page_offset"`
}

type searchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	Offset      int       `json:"offset,omitempty"`
	Filter      *filter   `json:"filter,omitempty"`
	WithPayload bool      `json:"with_payload"`
}

type countRequest struct {
	Filter *filter `json:"filter,omitempty"`
	Exact  bool    `json:"exact"`
}

type countResult struct {
	Count int `json:"count"`
}

// ==================== Collection Helpers ====================

// ensureCollection creates a cosine collection of the given size if it is missing.
func (s *Store) ensureCollection(ctx context.Context, name string, size int) error {
	err := s.do(ctx, http.MethodGet, "/collections/"+name, nil, nil)
	if err == nil {
		return nil
	}
	if !isStatus(err, http.StatusNotFound) {
		return err
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     size,
			"distance": "Cosine",
		},
	}
	if err := s.do(ctx, http.MethodPut, "/collections/"+name, body, nil); err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	return nil
}

func (s *Store) upsertPoints(ctx context.Context, collection string, points []point) error {
	if len(points) == 0 {
		return nil
	}
	for start := 0; start < len(points); start += upsertBatch {
		end := min(start+upsertBatch, len(points))
		body := map[string]any{"points": points[start:end]}
		if err := s.do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", body, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) deleteByFilter(ctx context.Context, collection string, f filter) error {
	body := map[string]any{"filter": f}
	return s.do(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", body, nil)
}

func (s *Store) deleteByID(ctx context.Context, collection string, ids []string) error {
	body := map[string]any{"points": ids}
	return s.do(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", body, nil)
}

// retrieve fetches points by id; unknown ids are absent from the result.
func (s *Store) retrieve(ctx context.Context, collection string, ids []string) ([]storedPoint, error) {
	body := map[string]any{"ids": ids, "with_payload": true, "with_vector": false}
	var out []storedPoint
	if err := s.do(ctx, http.MethodPost, "/collections/"+collection+"/points", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// scroll walks every point matching f.
func (s *Store) scroll(ctx context.Context, collection string, f *filter, fn func(storedPoint) error) error {
	var offset any
	for {
		req := scrollRequest{Filter: f, Limit: scrollPage, Offset: offset, WithPayload: true}
		var res scrollResult
		if err := s.do(ctx, http.MethodPost, "/collections/"+collection+"/points/scroll", req, &res); err != nil {
			return err
		}
		for _, p := range res.Points {
			if err := fn(p); err != nil {
				return err
			}
		}
		if res.NextPageOffset == nil {
			return nil
		}
		offset = res.NextPageOffset
	}
}

func (s *Store) count(ctx context.Context, collection string, f *filter) (int, error) {
	var res countResult
	if err := s.do(ctx, http.MethodPost, "/collections/"+collection+"/points/count", countRequest{Filter: f, Exact: true}, &res); err != nil {
		return 0, err
	}
	return res.Count, nil
}

func isStatus(err error, code int) bool {
	var se *statusError
	return errors.As(err, &se) && se.Status == code
}

package qdrant

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"sync"
	"testing"
)

// fakeQdrant implements the slice of the Qdrant REST API the store uses.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]map[string]fakePoint
	requests    map[string]int

	// failAfter makes a "METHOD path" answer 500 once it has been
	// requested more than the given number of times.
	failAfter map[string]int
}

// failFromNow makes every further request to method path fail.
func (f *fakeQdrant) failFromNow(method, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := method + " " + path
	f.failAfter[key] = f.requests[key]
}

func (f *fakeQdrant) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAfter = make(map[string]int)
}

func (f *fakeQdrant) size(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.collections[name])
}

type fakePoint struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, *httptest.Server) {
	t.Helper()
	f := &fakeQdrant{
		collections: make(map[string]map[string]fakePoint),
		requests:    make(map[string]int),
		failAfter:   make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections/{name}", f.getCollection)
	mux.HandleFunc("PUT /collections/{name}", f.createCollection)
	mux.HandleFunc("PUT /collections/{name}/points", f.upsert)
	mux.HandleFunc("POST /collections/{name}/points", f.retrieve)
	mux.HandleFunc("POST /collections/{name}/points/delete", f.delete)
	mux.HandleFunc("POST /collections/{name}/points/scroll", f.scroll)
	mux.HandleFunc("POST /collections/{name}/points/search", f.search)
	mux.HandleFunc("POST /collections/{name}/points/count", f.count)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeQdrant) reply(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok"})
}

func (f *fakeQdrant) collection(w http.ResponseWriter, r *http.Request) (map[string]fakePoint, bool) {
	key := r.Method + " " + r.URL.Path
	f.requests[key]++
	if n, ok := f.failAfter[key]; ok && f.requests[key] > n {
		http.Error(w, `{"status":{"error":"injected failure"}}`, http.StatusInternalServerError)
		return nil, false
	}
	c, ok := f.collections[r.PathValue("name")]
	if !ok {
		http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
	}
	return c, ok
}

func (f *fakeQdrant) getCollection(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collection(w, r); ok {
		f.reply(w, map[string]any{"status": "green"})
	}
}

func (f *fakeQdrant) createCollection(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections[r.PathValue("name")] = make(map[string]fakePoint)
	f.reply(w, true)
}

func (f *fakeQdrant) upsert(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collection(w, r)
	if !ok {
		return
	}
	var body struct {
		Points []struct {
			ID      string         `json:"id"`
			Vector  []float32      `json:"vector"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, p := range body.Points {
		c[p.ID] = fakePoint{ID: p.ID, Vector: p.Vector, Payload: p.Payload}
	}
	f.reply(w, map[string]any{"status": "completed"})
}

func (f *fakeQdrant) retrieve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collection(w, r)
	if !ok {
		return
	}
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out := []map[string]any{}
	for _, id := range body.IDs {
		if p, ok := c[id]; ok {
			out = append(out, map[string]any{"id": p.ID, "payload": p.Payload})
		}
	}
	f.reply(w, out)
}

func (f *fakeQdrant) delete(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collection(w, r)
	if !ok {
		return
	}
	var body struct {
		Points []string `json:"points"`
		Filter *filter  `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, id := range body.Points {
		delete(c, id)
	}
	if body.Filter != nil {
		for id, p := range c {
			if matches(body.Filter, p) {
				delete(c, id)
			}
		}
	}
	f.reply(w, map[string]any{"status": "completed"})
}

func (f *fakeQdrant) scroll(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collection(w, r)
	if !ok {
		return
	}
	var req scrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ids := sortedIDs(c, req.Filter)
	start := 0
	if off, ok := req.Offset.(string); ok {
		start = sort.SearchStrings(ids, off)
	}
	end := min(start+req.Limit, len(ids))

	points := []map[string]any{}
	for _, id := range ids[start:end] {
		points = append(points, map[string]any{"id": id, "payload": c[id].Payload})
	}
	var next any
	if end < len(ids) {
		next = ids[end]
	}
	f.reply(w, map[string]any{"points": points, "next_page_offset": next})
}

func (f *fakeQdrant) search(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collection(w, r)
	if !ok {
		return
	}
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	type hit struct {
		id    string
		score float64
	}
	var hits []hit
	for _, id := range sortedIDs(c, req.Filter) {
		hits = append(hits, hit{id: id, score: cosine(req.Vector, c[id].Vector)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	hits = hits[min(req.Offset, len(hits)):]
	if len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}

	out := []map[string]any{}
	for _, h := range hits {
		out = append(out, map[string]any{"id": h.id, "score": h.score, "payload": c[h.id].Payload})
	}
	f.reply(w, out)
}

func (f *fakeQdrant) count(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collection(w, r)
	if !ok {
		return
	}
	var req countRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.reply(w, map[string]any{"count": len(sortedIDs(c, req.Filter))})
}

func sortedIDs(c map[string]fakePoint, f *filter) []string {
	ids := make([]string, 0, len(c))
	for id, p := range c {
		if f == nil || matches(f, p) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func matches(f *filter, p fakePoint) bool {
	for _, cond := range f.Must {
		if !holds(cond, p) {
			return false
		}
	}
	for _, cond := range f.MustNot {
		if holds(cond, p) {
			return false
		}
	}
	return true
}

func holds(cond condition, p fakePoint) bool {
	if len(cond.HasID) > 0 {
		for _, id := range cond.HasID {
			if id == p.ID {
				return true
			}
		}
		return false
	}
	value := p.Payload[cond.Key]
	if cond.Match.Any != nil {
		for _, v := range cond.Match.Any {
			if reflect.DeepEqual(v, value) {
				return true
			}
		}
		return false
	}
	return reflect.DeepEqual(cond.Match.Value, value)
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

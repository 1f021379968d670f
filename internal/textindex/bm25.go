package textindex

import (
	"math"
	"sort"
)

// BM25 parameters.
const (
	BM25K1 = 1.2
	BM25B  = 0.75
)

// Document is a scorable unit for BM25.
type Document struct {
	ID   string
	Text string
}

// Scored is a ranked document id.
type Scored struct {
	ID    string
	Score float64
}

// BM25 ranks docs against the significant terms of query.
// Only documents containing at least one term are returned, best first,
// ties broken by id. The corpus statistics are computed over docs.
func BM25(query string, docs []Document, limit int) []Scored {
	terms := Terms(query)
	if len(terms) == 0 || len(docs) == 0 || limit <= 0 {
		return nil
	}

	type docStats struct {
		id     string
		length int
		tf     map[string]int
	}

	stats := make([]docStats, 0, len(docs))
	df := make(map[string]int, len(terms))
	wanted := make(map[string]bool, len(terms))
	for _, t := range terms {
		wanted[t] = true
	}

	var totalLen int
	for _, d := range docs {
		toks := Tokenize(d.Text)
		ds := docStats{id: d.ID, length: len(toks), tf: make(map[string]int)}
		for _, tok := range toks {
			if wanted[tok] {
				ds.tf[tok]++
			}
		}
		for t := range ds.tf {
			df[t]++
		}
		totalLen += ds.length
		stats = append(stats, ds)
	}

	n := float64(len(stats))
	avgLen := float64(totalLen) / n
	if avgLen == 0 {
		avgLen = 1
	}

	var results []Scored
	for _, ds := range stats {
		if len(ds.tf) == 0 {
			continue
		}
		var score float64
		for _, t := range terms {
			f := float64(ds.tf[t])
			if f == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df[t])+0.5)/(float64(df[t])+0.5))
			norm := f + BM25K1*(1-BM25B+BM25B*float64(ds.length)/avgLen)
			score += idf * f * (BM25K1 + 1) / norm
		}
		results = append(results, Scored{ID: ds.id, Score: score})
	}

	SortScored(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// SortScored orders by score descending, then id ascending.
func SortScored(s []Scored) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		return s[i].ID < s[j].ID
	})
}

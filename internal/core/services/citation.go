package services

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/textindex"
)

// DefaultCitationContext is the context window on each side of a quote.
const DefaultCitationContext = 50

var sentenceEnd = regexp.MustCompile(`[.!?…]+["'”’)\]]*\s+`)

// CitationExtractor picks quotable sentences from a chunk.
type CitationExtractor struct {
	contextChars int
}

// NewCitationExtractor creates an extractor. contextChars <= 0 uses the default.
func NewCitationExtractor(contextChars int) *CitationExtractor {
	if contextChars <= 0 {
		contextChars = DefaultCitationContext
	}
	return &CitationExtractor{contextChars: contextChars}
}

type sentenceSpan struct {
	start, end int
	overlap    float64
}

// Extract returns up to limit citations from the chunk's normalised text,
// scored by the fraction of the query's significant terms each sentence
// contains, scaled by relevance (expected in [0,1]). Sentences sharing no
// term are never cited. Ordering is by confidence, then by offset.
func (x *CitationExtractor) Extract(
	chunk domain.Chunk, page domain.Page, query string, relevance float64, limit int,
) []domain.Citation {
	terms := textindex.Terms(query)
	if len(terms) == 0 || limit <= 0 {
		return nil
	}

	text := chunk.Content
	var picks []sentenceSpan
	for _, sp := range splitSentences(text) {
		present := textindex.TermSet(text[sp[0]:sp[1]])
		matched := 0
		for _, t := range terms {
			if present[t] {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		picks = append(picks, sentenceSpan{
			start:   sp[0],
			end:     sp[1],
			overlap: float64(matched) / float64(len(terms)),
		})
	}

	sort.SliceStable(picks, func(i, j int) bool {
		if picks[i].overlap != picks[j].overlap {
			return picks[i].overlap > picks[j].overlap
		}
		return picks[i].start < picks[j].start
	})
	if len(picks) > limit {
		picks = picks[:limit]
	}

	relevance = clamp01(relevance)
	out := make([]domain.Citation, len(picks))
	for i, p := range picks {
		out[i] = domain.Citation{
			Quote:           text[p.start:p.end],
			PageTitle:       page.Title,
			PageURL:         page.URL,
			SpaceKey:        page.SpaceKey,
			Section:         chunk.HeadingContext,
			ContextBefore:   strings.TrimLeft(x.before(text, p.start), " "),
			ContextAfter:    strings.TrimRight(x.after(text, p.end), " "),
			ChunkID:         chunk.ID,
			ConfidenceScore: clamp01(p.overlap * relevance),
		}
	}
	return out
}

// splitSentences returns [start,end) offsets of the trimmed sentences of text.
func splitSentences(text string) [][2]int {
	var out [][2]int
	add := func(start, end int) {
		for start < end && text[start] == ' ' {
			start++
		}
		for end > start && (text[end-1] == ' ' || text[end-1] == '\n' || text[end-1] == '\t') {
			end--
		}
		if start < end {
			out = append(out, [2]int{start, end})
		}
	}

	start := 0
	for _, m := range sentenceEnd.FindAllStringIndex(text, -1) {
		add(start, m[1])
		start = m[1]
	}
	add(start, len(text))
	return out
}

func (x *CitationExtractor) before(text string, start int) string {
	from := max(0, start-x.contextChars)
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	return text[from:start]
}

func (x *CitationExtractor) after(text string, end int) string {
	to := min(len(text), end+x.contextChars)
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}
	return text[end:to]
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

package chunker

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driven"
)

// DefaultMaxTokens is the default token budget for prose chunks.
const DefaultMaxTokens = 512

// DefaultOverlapTokens is the default number of tokens carried across a split.
const DefaultOverlapTokens = 50

// DefaultSentenceBoundary matches the gap after a sentence in normalised text.
const DefaultSentenceBoundary = `[.!?…]+["'”’)\]]*\s+`

// chunkNamespace seeds deterministic chunk ids.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("atlas:chunk"))

// Ensure Chunker implements the interface.
var _ driven.Chunker = (*Chunker)(nil)

// Chunker splits page markup into chunks.
type Chunker struct {
	maxTokens int
	overlap   int
	boundary  *regexp.Regexp
}

// Option configures the chunker.
type Option func(*Chunker)

// WithMaxTokens sets the token budget for prose chunks.
func WithMaxTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithOverlap sets the number of tokens carried into the next part of a split paragraph.
func WithOverlap(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

// WithSentenceBoundary replaces the sentence gap pattern.
// The pattern is matched against whitespace-collapsed text; a sentence
// ends where a match ends.
func WithSentenceBoundary(re *regexp.Regexp) Option {
	return func(c *Chunker) {
		if re != nil {
			c.boundary = re
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxTokens: DefaultMaxTokens,
		overlap:   DefaultOverlapTokens,
		boundary:  regexp.MustCompile(DefaultSentenceBoundary),
	}

	for _, opt := range opts {
		opt(c)
	}

	// Ensure overlap doesn't swallow the whole budget
	if c.overlap >= c.maxTokens {
		c.overlap = c.maxTokens / 4
	}

	return c
}

// ChunkID returns the deterministic id of the chunk at position in a page.
func ChunkID(pageID string, position int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(pageID+":"+strconv.Itoa(position))).String()
}

// piece is one chunk's worth of a block.
type piece struct {
	start, end int
	content    string
	tokens     int
}

type heading struct {
	level int
	text  string
}

// Chunk splits raw into ordered chunks for page.
// Whitespace-only or text-free markup yields no chunks.
func (c *Chunker) Chunk(page domain.Page, raw string) ([]domain.Chunk, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	base := basePath(page)
	var stack []heading
	var chunks []domain.Chunk

	for _, b := range parseBlocks(raw) {
		if b.kind == domain.ChunkTypeHeading {
			for len(stack) > 0 && stack[len(stack)-1].level >= b.level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, heading{level: b.level, text: b.content()})
		}

		path := make([]string, 0, len(base)+len(stack))
		path = append(path, base...)
		var section string
		for _, h := range stack {
			path = append(path, h.text)
			section = h.text
		}

		for _, pc := range c.pieces(b) {
			pos := len(chunks)
			chunks = append(chunks, domain.Chunk{
				ID:              ChunkID(page.ID, pos),
				PageID:          page.ID,
				Content:         pc.content,
				OriginalContent: raw[pc.start:pc.end],
				ContextPath:     path,
				Type:            b.kind,
				TokenCount:      pc.tokens,
				Position:        pos,
				Spans: []domain.TextSpan{{
					Start:        pc.start,
					End:          pc.end,
					OriginalText: raw[pc.start:pc.end],
				}},
				HeadingContext: section,
			})
		}
	}

	return chunks, nil
}

// pieces splits a block into chunk-sized parts. Only prose is split.
func (c *Chunker) pieces(b *block) []piece {
	total := b.words()
	if b.kind != domain.ChunkTypeProse || total <= c.maxTokens {
		return []piece{{start: b.start, end: b.end, content: b.content(), tokens: total}}
	}

	var out []piece
	from, own, tokens := 0, 0, 0
	for _, s := range c.sentences(b) {
		n := countWords(b.atoms[s[0]:s[1]])
		if s[0] > own && tokens+n > c.maxTokens {
			out = append(out, c.piece(b, from, own, s[0]))
			from = c.overlapStart(b.atoms, from, s[0])
			own = s[0]
			tokens = countWords(b.atoms[from:own])
		}
		tokens += n
	}
	return append(out, c.piece(b, from, own, len(b.atoms)))
}

// piece covers atoms [from, to). Content includes the carried overlap
// [from, own); the span starts at own so spans of one block never overlap.
func (c *Chunker) piece(b *block, from, own, to int) piece {
	start, end := b.start, b.end
	if own > 0 {
		start = b.atoms[own].start
	}
	if to < len(b.atoms) {
		end = b.atoms[to].start
	}
	atoms := b.atoms[from:to]
	return piece{start: start, end: end, content: joinAtoms(atoms), tokens: countWords(atoms)}
}

// overlapStart walks back from cut until at least c.overlap tokens are
// covered, never past floor (the start of the piece being closed).
func (c *Chunker) overlapStart(atoms []atom, floor, cut int) int {
	if c.overlap == 0 {
		return cut
	}
	i, n := cut, 0
	for i > floor && n < c.overlap {
		i--
		n += atoms[i].words
	}
	return i
}

// sentences returns [from, to) atom ranges, one per sentence.
func (c *Chunker) sentences(b *block) [][2]int {
	starts := make([]int, len(b.atoms))
	pos := 0
	for i, a := range b.atoms {
		starts[i] = pos
		pos += len(a.text) + 1
	}
	text := b.content()

	var cuts []int
	for _, m := range c.boundary.FindAllStringIndex(text, -1) {
		k := sort.SearchInts(starts, m[1])
		if k > 0 && k < len(b.atoms) && (len(cuts) == 0 || cuts[len(cuts)-1] < k) {
			cuts = append(cuts, k)
		}
	}

	out := make([][2]int, 0, len(cuts)+1)
	prev := 0
	for _, k := range cuts {
		out = append(out, [2]int{prev, k})
		prev = k
	}
	return append(out, [2]int{prev, len(b.atoms)})
}

// basePath is the breadcrumb above the page's own headings.
func basePath(page domain.Page) []string {
	var path []string
	for _, p := range append(append([]string{page.SpaceKey}, page.Ancestors...), page.Title) {
		if p = strings.TrimSpace(p); p != "" {
			path = append(path, p)
		}
	}
	return path
}

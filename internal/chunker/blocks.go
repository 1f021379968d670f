package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/DanielTromp/atlas/internal/core/domain"
)

const cdataPrefix, cdataSuffix = "<![CDATA[", "]]>"

// atom is a run of non-space text with its location in the raw markup.
// Text split only by inline tags ("<b>VPN</b>s") stays one atom.
type atom struct {
	start, end int
	text       string
	words      int
}

// block is one block-level element of the page.
type block struct {
	kind  domain.ChunkType
	tag   string
	level int

	start, end int
	lastEnd    int
	atoms      []atom

	// sep is set when the next text must not be glued to the previous atom.
	sep bool
}

func (b *block) content() string {
	return joinAtoms(b.atoms)
}

func (b *block) words() int {
	return countWords(b.atoms)
}

// addText appends the words of a raw text token that starts at offset.
func (b *block) addText(raw string, offset int) {
	cdata := strings.HasPrefix(raw, cdataPrefix)
	if cdata {
		offset += len(cdataPrefix)
		raw = strings.TrimSuffix(raw[len(cdataPrefix):], cdataSuffix)
	}

	i := 0
	for i < len(raw) {
		if isSpace(raw[i]) {
			b.sep = true
			i++
			continue
		}
		j := i
		for j < len(raw) && !isSpace(raw[j]) {
			j++
		}

		text := raw[i:j]
		if !cdata {
			text = html.UnescapeString(text)
		}
		b.addField(text, offset+i, offset+j)
		i = j
	}
}

func (b *block) addField(text string, start, end int) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		// a lone &nbsp; and friends
		b.sep = true
		return
	}
	if r, _ := utf8.DecodeRuneInString(text); unicode.IsSpace(r) {
		b.sep = true
	}

	norm := strings.Join(fields, " ")
	if !b.sep && len(b.atoms) > 0 {
		last := &b.atoms[len(b.atoms)-1]
		last.end = end
		last.text += norm
		last.words = len(strings.Fields(last.text))
	} else {
		b.atoms = append(b.atoms, atom{start: start, end: end, text: norm, words: len(fields)})
	}

	b.sep = false
	if r, _ := utf8.DecodeLastRuneInString(text); unicode.IsSpace(r) {
		b.sep = true
	}
	b.lastEnd = end
}

// parser turns markup into a flat list of blocks.
type parser struct {
	blocks []*block
	cur    *block

	// container is the tag name of an open container block whose nested
	// elements are absorbed rather than split out.
	container string
	depth     int

	skip      string
	skipDepth int
}

func parseBlocks(raw string) []*block {
	p := &parser{}

	z := html.NewTokenizer(strings.NewReader(raw))
	z.AllowCDATA(true)

	offset := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		tok := string(z.Raw())
		start, end := offset, offset+len(tok)
		offset = end

		switch tt {
		case html.TextToken:
			p.text(tok, start)
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			attrs := make(map[string]string)
			for hasAttr {
				var k, v []byte
				k, v, hasAttr = z.TagAttr()
				attrs[string(k)] = string(v)
			}
			p.startTag(string(name), attrs, tt == html.SelfClosingTagToken, start, end)
		case html.EndTagToken:
			name, _ := z.TagName()
			p.endTag(string(name), end)
		}
	}
	p.close(-1)
	return p.blocks
}

func (p *parser) text(tok string, start int) {
	if p.skipDepth > 0 {
		return
	}
	if p.cur == nil {
		i := strings.IndexFunc(tok, func(r rune) bool { return r > unicode.MaxASCII || !isSpace(byte(r)) })
		if i < 0 {
			return
		}
		p.cur = &block{kind: domain.ChunkTypeProse, start: start + i, lastEnd: start + i, sep: true}
	}
	p.cur.addText(tok, start)
}

func (p *parser) startTag(name string, attrs map[string]string, selfClosing bool, start, end int) {
	if p.skipDepth > 0 {
		if name == p.skip && !selfClosing {
			p.skipDepth++
		}
		return
	}
	if skipTags[name] {
		if !selfClosing {
			p.skip, p.skipDepth = name, 1
		}
		return
	}

	if p.container != "" {
		if name == p.container && !selfClosing {
			p.depth++
		}
		p.absorb(name, end)
		return
	}

	if kind, level, container, ok := classify(name, attrs); ok {
		p.close(-1)
		p.cur = &block{kind: kind, tag: name, level: level, start: start, lastEnd: end, sep: true}
		if selfClosing {
			p.close(end)
			return
		}
		if container {
			p.container, p.depth = name, 1
		}
		return
	}

	if p.cur == nil {
		return
	}
	if isStructural(name) {
		p.close(-1)
		return
	}
	p.absorb(name, end)
}

func (p *parser) endTag(name string, end int) {
	if p.skipDepth > 0 {
		if name == p.skip {
			p.skipDepth--
		}
		return
	}
	if p.cur == nil {
		return
	}

	if p.container != "" {
		if name == p.container {
			p.depth--
			if p.depth == 0 {
				p.close(end)
				return
			}
		}
		p.absorb(name, end)
		return
	}

	if p.cur.tag != "" && name == p.cur.tag {
		p.close(end)
		return
	}
	if isStructural(name) {
		p.close(-1)
		return
	}
	p.absorb(name, end)
}

// absorb records a tag nested inside the open block.
func (p *parser) absorb(name string, end int) {
	p.cur.lastEnd = end
	if !inlineTags[name] && !strings.HasPrefix(name, "ri:") {
		p.cur.sep = true
	}
}

// close finishes the open block. end < 0 closes it after its last content.
func (p *parser) close(end int) {
	if p.cur == nil {
		return
	}
	b := p.cur
	if end < 0 {
		end = b.lastEnd
	}
	b.end = end
	if len(b.atoms) > 0 {
		p.blocks = append(p.blocks, b)
	}
	p.cur, p.container, p.depth = nil, "", 0
}

// classify reports whether the tag opens a block, its chunk type, heading
// level and whether it is a container that absorbs nested blocks.
func classify(name string, attrs map[string]string) (kind domain.ChunkType, level int, container bool, ok bool) {
	switch name {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return domain.ChunkTypeHeading, int(name[1] - '0'), false, true
	case "p":
		return domain.ChunkTypeProse, 0, false, true
	case "blockquote":
		return domain.ChunkTypeProse, 0, true, true
	case "pre":
		return domain.ChunkTypeCode, 0, true, true
	case "table":
		return domain.ChunkTypeTable, 0, true, true
	case "ul", "ol", "dl", "ac:task-list":
		return domain.ChunkTypeList, 0, true, true
	case "div":
		for _, class := range strings.Fields(attrs["class"]) {
			if class == "code" || class == "preformatted" {
				return domain.ChunkTypeCode, 0, true, true
			}
		}
	case "ac:structured-macro":
		switch attrs["ac:name"] {
		case "code", "noformat":
			return domain.ChunkTypeCode, 0, true, true
		}
	}
	return "", 0, false, false
}

// skipTags have bodies that are never page text.
var skipTags = map[string]bool{
	"script":       true,
	"style":        true,
	"head":         true,
	"title":        true,
	"noscript":     true,
	"template":     true,
	"ac:parameter": true,
}

// inlineTags do not break words or end implicit paragraphs.
var inlineTags = map[string]bool{
	"a": true, "abbr": true, "b": true, "bdi": true, "bdo": true, "cite": true,
	"code": true, "data": true, "del": true, "dfn": true, "em": true, "font": true,
	"i": true, "img": true, "ins": true, "kbd": true, "label": true, "mark": true,
	"q": true, "s": true, "samp": true, "small": true, "span": true, "strong": true,
	"sub": true, "sup": true, "time": true, "u": true, "var": true, "wbr": true,
	"ac:link": true, "ac:link-body": true, "ac:plain-text-link-body": true,
	"ac:emoticon": true, "ac:image": true, "ac:inline-comment-marker": true,
	"ac:placeholder": true,
}

// isStructural reports whether a non-block tag ends an implicit paragraph.
func isStructural(name string) bool {
	if name == "br" || inlineTags[name] || strings.HasPrefix(name, "ri:") {
		return false
	}
	return true
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f':
		return true
	}
	return false
}

func joinAtoms(atoms []atom) string {
	parts := make([]string, len(atoms))
	for i, a := range atoms {
		parts[i] = a.text
	}
	return strings.Join(parts, " ")
}

func countWords(atoms []atom) int {
	n := 0
	for _, a := range atoms {
		n += a.words
	}
	return n
}

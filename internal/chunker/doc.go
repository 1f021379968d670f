// Package chunker splits exported Confluence markup into typed, positioned
// chunks.
//
// The markup is tokenised once. Block-level elements become chunks:
// headings, paragraphs, code blocks, tables and lists. Loose text between
// blocks becomes an implicit paragraph. Long paragraphs are split at
// sentence boundaries with a token overlap between the parts.
//
// Every chunk records the byte range of the exported markup it came from,
// so quotes can always be traced back to the source.
package chunker

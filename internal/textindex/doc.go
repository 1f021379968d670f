// Package textindex holds the lexical primitives shared by the index
// backends and the citation extractor: tokenisation, stopword removal,
// BM25 scoring and cosine similarity.
package textindex

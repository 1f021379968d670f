package domain

// ChunkType classifies a chunk by the markup shape it came from.
type ChunkType string

// Available chunk types.
const (
	ChunkTypeProse   ChunkType = "prose"
	ChunkTypeCode    ChunkType = "code"
	ChunkTypeTable   ChunkType = "table"
	ChunkTypeList    ChunkType = "list"
	ChunkTypeHeading ChunkType = "heading"
)

// IsValid returns true if the chunk type is recognised.
func (t ChunkType) IsValid() bool {
	switch t {
	case ChunkTypeProse, ChunkTypeCode, ChunkTypeTable, ChunkTypeList, ChunkTypeHeading:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t ChunkType) String() string {
	return string(t)
}

// TextSpan is a [Start, End) byte range into a page's exported content.
type TextSpan struct {
	Start        int
	End          int
	OriginalText string
}

// Chunk is the atomic unit of indexing and retrieval.
// Chunks belong to exactly one page and are replaced wholesale on resync.
type Chunk struct {
	// ID is deterministic for a given page and position.
	ID string

	// PageID links to the owning Page.
	PageID string

	// Content is the normalised text used for indexing.
	Content string

	// OriginalContent is the verbatim substring of the exported content.
	OriginalContent string

	// ContextPath is the space, ancestor and heading breadcrumb.
	ContextPath []string

	// Type is the block classification.
	Type ChunkType

	// TokenCount is the number of tokens in Content.
	TokenCount int

	// Position orders chunks within the page, starting at 0.
	Position int

	// Spans locate the chunk in the exported content.
	Spans []TextSpan

	// HeadingContext is the innermost heading above the chunk, or empty.
	HeadingContext string
}

// ChunkEmbedding is the dense vector for one chunk.
type ChunkEmbedding struct {
	ChunkID      string
	Vector       []float32
	ModelVersion string
}

// IndexedChunk pairs a chunk with its embedding for storage.
// Embedding may be nil when no embedding provider is configured.
type IndexedChunk struct {
	Chunk     Chunk
	Embedding *ChunkEmbedding
}

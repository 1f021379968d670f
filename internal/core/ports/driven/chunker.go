package driven

import "github.com/DanielTromp/atlas/internal/core/domain"

// Chunker splits one page's exported content into ordered chunks.
// Implementations are pure: identical input yields identical chunks and ids.
type Chunker interface {
	Chunk(page domain.Page, raw string) ([]domain.Chunk, error)
}

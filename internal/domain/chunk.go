package domain

import (
	"strconv"

	"github.com/google/uuid"
)

// chunkNamespace seeds deterministic chunk ids.
var chunkNamespace = uuid.MustParse("6f1f4b9e-3c1a-4d8e-9a57-0c2f5e7d3b21")

// Chunk is a bounded passage of one document. Chunks are immutable once built.
type Chunk struct {
	ID           string
	DocumentID   string
	DocumentType DocumentType
	Position     int
	Text         string
	WordCount    int
	// OverlapWords is how many leading words repeat the tail of the previous chunk.
	OverlapWords int
	// StartOffset and EndOffset are byte offsets into the normalized document text.
	StartOffset int
	EndOffset   int
}

// ChunkID derives a stable id from the document id and the chunk position, so
// re-ingesting a document overwrites its previous records.
func ChunkID(documentID string, position int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(documentID+"#"+strconv.Itoa(position))).String()
}

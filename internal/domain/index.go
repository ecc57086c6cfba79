package domain

import (
	"fmt"
	"strings"
)

// Distance is the metric a collection ranks vectors by.
type Distance string

const (
	DistanceCosine Distance = "cosine"
	DistanceDot    Distance = "dot"
	DistanceEuclid Distance = "euclid"
)

// ParseDistance parses a metric name, accepting a few common aliases.
func ParseDistance(s string) (Distance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cosine", "cos":
		return DistanceCosine, nil
	case "dot", "ip", "inner_product":
		return DistanceDot, nil
	case "euclid", "euclidean", "l2":
		return DistanceEuclid, nil
	}
	return "", Wrapf(ErrInvalidConfig, "unknown distance metric %q", s)
}

// CollectionSpec describes the vector schema of a collection.
type CollectionSpec struct {
	Name      string
	Dimension int
	Distance  Distance
}

// Validate checks the spec is usable for creating a collection.
func (s CollectionSpec) Validate() error {
	if s.Name == "" {
		return Wrapf(ErrInvalidConfig, "collection name is required")
	}
	if s.Dimension <= 0 {
		return Wrapf(ErrInvalidConfig, "collection dimension must be positive, got %d", s.Dimension)
	}
	if _, err := ParseDistance(string(s.Distance)); err != nil {
		return err
	}
	return nil
}

// CollectionInfo is a collection's schema plus its current record count.
type CollectionInfo struct {
	CollectionSpec
	Count int64
}

// IndexedRecord is the unit persisted in the vector index.
type IndexedRecord struct {
	Chunk  Chunk
	Vector []float32
}

// NewIndexedRecord pairs a chunk with its embedding.
func NewIndexedRecord(c Chunk, vector []float32) IndexedRecord {
	return IndexedRecord{Chunk: c, Vector: vector}
}

// Validate checks the record matches a collection dimension.
func (r IndexedRecord) Validate(dimension int) error {
	if r.Chunk.ID == "" {
		return fmt.Errorf("record has no chunk id")
	}
	if len(r.Vector) != dimension {
		return Wrapf(ErrSchemaMismatch, "record %s has %d dimensions, collection expects %d", r.Chunk.ID, len(r.Vector), dimension)
	}
	return nil
}

// RetrievalResult is a ranked search hit.
type RetrievalResult struct {
	Chunk Chunk
	Score float64
	Rank  int
}

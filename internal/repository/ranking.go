package repository

import (
	"math"
	"sort"

	"github.com/cloo-solutions/docrag/internal/domain"
)

// similarityFromDistance converts a pgvector operator result into a score
// where larger is more similar.
func similarityFromDistance(metric domain.Distance, d float64) float64 {
	switch metric {
	case domain.DistanceDot:
		// <#> returns the negative inner product
		return -d
	case domain.DistanceEuclid:
		return 1 / (1 + d)
	default:
		return 1 - d
	}
}

// distanceBound is the largest operator result that can still reach threshold.
func distanceBound(metric domain.Distance, threshold float64) float64 {
	const slack = 1e-9
	switch metric {
	case domain.DistanceDot:
		return -threshold + slack
	case domain.DistanceEuclid:
		if threshold <= 0 {
			return math.MaxFloat64
		}
		return 1/threshold - 1 + slack
	default:
		return 1 - threshold + slack
	}
}

// rankResults drops results below threshold, orders by score descending with
// chunk id ascending on exact ties, caps at topK and assigns 1-based ranks.
func rankResults(results []domain.RetrievalResult, topK int, threshold float64) []domain.RetrievalResult {
	kept := results[:0]
	for _, r := range results {
		if r.Score >= threshold {
			kept = append(kept, r)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].Chunk.ID < kept[j].Chunk.ID
	})

	if topK > 0 && len(kept) > topK {
		kept = kept[:topK]
	}
	for i := range kept {
		kept[i].Rank = i + 1
	}
	return kept
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func dotProduct(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func euclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func similarity(metric domain.Distance, query, vector []float32) float64 {
	switch metric {
	case domain.DistanceDot:
		return dotProduct(query, vector)
	case domain.DistanceEuclid:
		return 1 / (1 + euclideanDistance(query, vector))
	default:
		return cosineSimilarity(query, vector)
	}
}

package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// DefaultSimilarityThreshold is the score at or above which two comments are
// considered the same issue.
const DefaultSimilarityThreshold = 0.85

// hashLength is the number of hex characters kept from the SHA-256 digest.
// The truncation is an accepted collision trade-off: 16 hex chars (64 bits)
// are ample within a single repository's issue population.
const hashLength = 16

// Fingerprint is the derived identity of a review comment: a truncated
// content hash plus the classification and keywords it was computed from.
type Fingerprint struct {
	Hash              string
	NormalizedContent string
	Keywords          []string
	Category          string
	PatternType       string
}

// GenerateInput carries a raw comment body and optional caller overrides.
// A supplied Category or PatternType bypasses detection entirely.
type GenerateInput struct {
	Body        string
	Category    string
	PatternType string
	Severity    string
}

// Generate fingerprints a comment body: normalize, extract keywords,
// classify, hash. Pure function, deterministic for a given input.
func Generate(input GenerateInput) Fingerprint {
	normalized := NormalizeContent(input.Body)
	keywords := ExtractKeywords(normalized)
	category := DetectCategory(normalized, keywords, input.Category)
	patternType := DetectPatternType(normalized, keywords, category, input.PatternType)

	return Fingerprint{
		Hash:              GenerateHash(normalized, category, patternType),
		NormalizedContent: normalized,
		Keywords:          keywords,
		Category:          category,
		PatternType:       patternType,
	}
}

// GenerateHash digests category|patternType|normalized and returns the
// first 16 hex characters.
func GenerateHash(normalized, category, patternType string) string {
	sum := sha256.Sum256([]byte(category + "|" + patternType + "|" + normalized))
	return hex.EncodeToString(sum[:])[:hashLength]
}

// CalculateSimilarity scores two fingerprints in [0, 1]. Equal hashes score
// 1.0; differing categories score 0.0; matching categories with differing
// pattern types score 0.3; otherwise the score is 0.5 + 0.5 * jaccard over
// the keyword sets. Symmetric under argument swap.
func CalculateSimilarity(a, b Fingerprint) float64 {
	if a.Hash == b.Hash {
		return 1.0
	}
	if a.Category != b.Category {
		return 0.0
	}
	if a.PatternType != b.PatternType {
		return 0.3
	}
	return 0.5 + 0.5*jaccard(a.Keywords, b.Keywords)
}

// AreSimilar fingerprints both bodies independently and compares them
// against the threshold.
func AreSimilar(bodyA, bodyB string, threshold float64) bool {
	a := Generate(GenerateInput{Body: bodyA})
	b := Generate(GenerateInput{Body: bodyB})
	return CalculateSimilarity(a, b) >= threshold
}

// jaccard computes |intersection| / |union| of two keyword sets.
// An empty union is defined as 0.5 rather than zero: two keyword-free
// comments in the same category and pattern are weak evidence either way.
func jaccard(a, b []string) float64 {
	setA := make(map[string]bool, len(a))
	for _, k := range a {
		setA[k] = true
	}
	setB := make(map[string]bool, len(b))
	for _, k := range b {
		setB[k] = true
	}

	intersection := 0
	for k := range setA {
		if setB[k] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.5
	}
	return float64(intersection) / float64(union)
}

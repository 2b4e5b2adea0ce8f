// Package similarity scores how closely a catalog candidate string matches
// a storage object key. Two signals are blended: token-set Jaccard over
// normalized words and multiset Dice over character bigrams of the raw
// strings. The weighting favors whole-word agreement while the bigram term
// still rewards near-misses caused by punctuation and casing drift.
package similarity

import (
	"github.com/neuralpositive/trackgate/internal/normalize"
)

// Blend weights. Token agreement dominates; character overlap breaks
// tokenization failures without letting incidental overlap win.
const (
	jaccardWeight = 0.65
	diceWeight    = 0.35
)

// Scorer computes blended similarity scores. It is stateless beyond the
// shared normalization ruleset and safe for concurrent use.
type Scorer struct {
	rules *normalize.Ruleset
}

// NewScorer creates a scorer using the given normalization ruleset.
func NewScorer(rules *normalize.Ruleset) *Scorer {
	return &Scorer{rules: rules}
}

// Score returns a similarity in [0,1]. Symmetric: Score(a,b) == Score(b,a).
func (s *Scorer) Score(a, b string) float64 {
	jaccard := tokenJaccard(s.rules.Tokens(a), s.rules.Tokens(b))
	dice := diceCoef(bigrams(normalize.CharStream(a)), bigrams(normalize.CharStream(b)))
	return jaccardWeight*jaccard + diceWeight*dice
}

// tokenJaccard computes set overlap over tokens, duplicates collapsed.
// Zero when either set is empty.
func tokenJaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}

	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// bigrams returns the overlapping 2-rune windows of s.
func bigrams(s string) []string {
	runes := []rune(s)
	if len(runes) < 2 {
		return nil
	}
	out := make([]string, 0, len(runes)-1)
	for i := 0; i < len(runes)-1; i++ {
		out = append(out, string(runes[i:i+2]))
	}
	return out
}

// diceCoef computes the Dice coefficient with multiset intersection: a
// bigram occurring in both lists counts up to its minimum multiplicity on
// each side. Zero when either list is empty.
func diceCoef(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	counts := make(map[string]int, len(a))
	for _, g := range a {
		counts[g]++
	}

	inter := 0
	for _, g := range b {
		if counts[g] > 0 {
			inter++
			counts[g]--
		}
	}

	return 2 * float64(inter) / float64(len(a)+len(b))
}

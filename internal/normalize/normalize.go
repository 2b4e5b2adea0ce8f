// Package normalize turns noisy catalog text (titles, legacy paths,
// generated slugs) into canonical token sequences and character streams
// used by the similarity scorer and the storage index.
package normalize

import (
	"path"
	"sort"
	"strings"
)

// mediaExtensions are file suffixes dropped during tokenization so a title
// and its storage filename normalize to the same token set.
var mediaExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true, ".m4a": true,
	".ogg": true, ".aac": true,
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true,
}

// Rule folds a variant phrase into a canonical token. Variants are matched
// against the cleaned token stream, so "re energize", "re-energize" and
// "re_energize" all reduce to the same variant phrase before matching.
type Rule struct {
	Variant   string `yaml:"variant"`
	Canonical string `yaml:"canonical"`
}

// DefaultRules returns the synonym folds observed drifting between catalog
// metadata and storage filenames. Deployments extend this list via config.
func DefaultRules() []Rule {
	return []Rule{
		{Variant: "inst", Canonical: "instrumental"},
		{Variant: "instr", Canonical: "instrumental"},
		{Variant: "re energize", Canonical: "reenergize"},
		{Variant: "reenergize", Canonical: "reenergize"},
		{Variant: "2010 s", Canonical: "2010s"},
	}
}

type compiledRule struct {
	variant   []string
	canonical string
}

// Ruleset is a compiled, immutable set of fold rules shared by every
// caller, so read-time resolution and batch repair cannot diverge.
type Ruleset struct {
	rules []compiledRule
}

// NewRuleset compiles fold rules. Longer variants win over shorter ones.
func NewRuleset(rules []Rule) *Ruleset {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		variant := splitClean(r.Variant)
		if len(variant) == 0 || r.Canonical == "" {
			continue
		}
		compiled = append(compiled, compiledRule{
			variant:   variant,
			canonical: strings.ToLower(r.Canonical),
		})
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		return len(compiled[i].variant) > len(compiled[j].variant)
	})
	return &Ruleset{rules: compiled}
}

// Tokens normalizes s into an ordered sequence of lowercase word tokens:
// lowercase, separators to spaces, strip everything outside [a-z0-9 ],
// apply synonym folds, split. Deterministic for any input.
func (rs *Ruleset) Tokens(s string) []string {
	return rs.fold(splitClean(stripExtension(s)))
}

// stripExtension removes a trailing media extension. Unknown suffixes stay
// put so version markers like ".v2" still contribute tokens.
func stripExtension(s string) string {
	trimmed := strings.TrimSpace(s)
	ext := strings.ToLower(path.Ext(trimmed))
	if mediaExtensions[ext] {
		return trimmed[:len(trimmed)-len(ext)]
	}
	return s
}

// CharStream lowercases s and removes all whitespace. Punctuation is kept:
// the bigram signal deliberately operates on the raw character level.
func CharStream(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch r {
		case ' ', '\t', '\n', '\r', '\v', '\f':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// splitClean performs the pre-fold cleanup shared by token normalization
// and variant compilation.
func splitClean(s string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return ' '
		}
	}, s)
	return strings.Fields(cleaned)
}

// fold replaces variant phrases with their canonical token, scanning left
// to right and preferring the longest matching variant at each position.
func (rs *Ruleset) fold(tokens []string) []string {
	if len(rs.rules) == 0 {
		return tokens
	}
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		matched := false
		for _, r := range rs.rules {
			n := len(r.variant)
			if i+n > len(tokens) {
				continue
			}
			if equalTokens(tokens[i:i+n], r.variant) {
				out = append(out, r.canonical)
				i += n
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, tokens[i])
			i++
		}
	}
	return out
}

func equalTokens(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

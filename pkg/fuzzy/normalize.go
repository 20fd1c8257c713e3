// Package fuzzy scores how well a free-text query matches song titles and artists.
package fuzzy

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	featRegex       = regexp.MustCompile(`(?i)\s*[\(\[（]?\s*(?:feat\.?|ft\.?|featuring)\s+[^\)\]）]*[\)\]）]?\s*`)
	versionRegex    = regexp.MustCompile(`(?i)\s*[\(\[（]\s*(?:live|remaster(?:ed)?|伴奏|现场版?|纯音乐|dj版?)[^\)\]）]*[\)\]）]\s*`)
	punctRegex      = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeArtist folds artist lists so "A / B", "A、B" and "A & B" compare equal.
func (n *Normalizer) NormalizeArtist(artist string) string {
	artist = strings.NewReplacer("、", " ", "/", " ", "&", " ", ",", " ", "，", " ").Replace(artist)
	return n.Normalize(artist)
}

// NormalizeTitle drops featuring credits and version tags before normalizing.
func (n *Normalizer) NormalizeTitle(title string) string {
	title = featRegex.ReplaceAllString(title, " ")
	title = versionRegex.ReplaceAllString(title, " ")
	return n.Normalize(title)
}

// Normalize lowercases, strips diacritics and punctuation and collapses whitespace.
func (n *Normalizer) Normalize(text string) string {
	text = norm.NFKD.String(text)

	var result strings.Builder
	for _, r := range text {
		if !unicode.IsMark(r) {
			result.WriteRune(r)
		}
	}
	text = result.String()

	text = punctRegex.ReplaceAllString(text, " ")
	text = whitespaceRegex.ReplaceAllString(text, " ")

	return strings.TrimSpace(strings.ToLower(text))
}

// Similarity is the longest common rune subsequence relative to the longer input.
func (n *Normalizer) Similarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}

	r1, r2 := []rune(s1), []rune(s2)
	if len(r1) == 0 || len(r2) == 0 {
		return 0.0
	}

	return float64(longestCommonSubsequence(r1, r2)) / float64(max(len(r1), len(r2)))
}

// Score rates query against a song. A query contained in the title or the
// artist scores 1; otherwise the best similarity against title, artist or both.
func (n *Normalizer) Score(query, title, artist string) float64 {
	q := n.Normalize(query)
	if q == "" {
		return 0.0
	}
	t := n.NormalizeTitle(title)
	a := n.NormalizeArtist(artist)

	if (t != "" && strings.Contains(t, q)) || (a != "" && strings.Contains(a, q)) {
		return 1.0
	}

	best := n.Similarity(q, t)
	if s := n.Similarity(q, a); s > best {
		best = s
	}
	if s := n.Similarity(q, strings.TrimSpace(a+" "+t)); s > best {
		best = s
	}
	return best
}

func longestCommonSubsequence(s1, s2 []rune) int {
	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)

	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			if s1[i-1] == s2[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}

	return prev[len(s2)]
}

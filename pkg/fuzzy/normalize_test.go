package fuzzy

import (
	"testing"
)

// runStringTransformationTest is a helper to run tests for string transformation functions.
func runStringTransformationTest(t *testing.T, testName string,
	transformFunc func(string) string, testCases []struct {
		name     string
		input    string
		expected string
	}) {
	t.Helper()
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			result := transformFunc(tt.input)
			if result != tt.expected {
				t.Errorf("%s() = %q, want %q", testName, result, tt.expected)
			}
		})
	}
}

func TestNormalizer_NormalizeArtist(t *testing.T) {
	normalizer := NewNormalizer()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Chinese name", input: "周杰伦", expected: "周杰伦"},
		{name: "Ideographic comma list", input: "周杰伦、费玉清", expected: "周杰伦 费玉清"},
		{name: "Slash list", input: "A / B", expected: "a b"},
		{name: "Ampersand list", input: "Artist & Someone", expected: "artist someone"},
		{name: "Punctuation", input: "P!nk", expected: "p nk"},
		{name: "Accents", input: "Björk", expected: "bjork"},
	}

	runStringTransformationTest(t, "NormalizeArtist", normalizer.NormalizeArtist, tests)
}

func TestNormalizer_NormalizeTitle(t *testing.T) {
	normalizer := NewNormalizer()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Plain", input: "晴天", expected: "晴天"},
		{name: "Live tag", input: "晴天 (Live)", expected: "晴天"},
		{name: "Featuring credit", input: "千里之外 (feat. 费玉清)", expected: "千里之外"},
		{name: "Full-width accompaniment tag", input: "稻香（伴奏）", expected: "稻香"},
		{name: "Remaster tag", input: "Hey Jude (Remastered 2009)", expected: "hey jude"},
	}

	runStringTransformationTest(t, "NormalizeTitle", normalizer.NormalizeTitle, tests)
}

func TestNormalizer_Normalize(t *testing.T) {
	normalizer := NewNormalizer()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Trim and collapse", input: "  Hello   World  ", expected: "hello world"},
		{name: "Full-width latin", input: "ＡＢＣ", expected: "abc"},
		{name: "Punctuation only", input: "!!!", expected: ""},
		{name: "Mixed scripts", input: "晴天-Jay", expected: "晴天 jay"},
	}

	runStringTransformationTest(t, "Normalize", normalizer.Normalize, tests)
}

// similarityTestCase represents a test case for similarity calculation.
type similarityTestCase struct {
	name     string
	s1       string
	s2       string
	expected float64
	delta    float64
}

func TestNormalizer_Similarity(t *testing.T) {
	normalizer := NewNormalizer()
	tests := []similarityTestCase{
		{"Identical strings", "hello", "hello", 1.0, 0.0},
		{"Similar strings", "hello", "hallo", 0.8, 0.01},
		{"Empty strings", "", "", 1.0, 0.0},
		{"One empty string", "hello", "", 0.0, 0.0},
		{"Substring", "hello world", "hello", 0.45, 0.01},
		{"Runes not bytes", "晴天", "晴天啊", 0.667, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := normalizer.Similarity(tt.s1, tt.s2)
			if abs64(result-tt.expected) > tt.delta {
				t.Errorf("Similarity() = %f, want %f (±%f)", result, tt.expected, tt.delta)
			}
		})
	}
}

func TestNormalizer_Score(t *testing.T) {
	normalizer := NewNormalizer()

	tests := []struct {
		name    string
		query   string
		title   string
		artist  string
		atLeast float64
		below   float64
	}{
		{name: "title contains query", query: "晴天", title: "晴天 (Live)", artist: "周杰伦", atLeast: 1.0, below: 1.1},
		{name: "artist contains query", query: "杰伦", title: "晴天", artist: "周杰伦", atLeast: 1.0, below: 1.1},
		{name: "typo", query: "qingtain", title: "Qingtian", atLeast: 0.8, below: 1.0},
		{name: "unrelated", query: "jay chou qing tian", title: "晴天", artist: "周杰伦", atLeast: 0.0, below: 0.3},
		{name: "empty query", query: "  ", title: "晴天", artist: "周杰伦", atLeast: 0.0, below: 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizer.Score(tt.query, tt.title, tt.artist)
			if got < tt.atLeast || got >= tt.below {
				t.Errorf("Score() = %f, want in [%f, %f)", got, tt.atLeast, tt.below)
			}
		})
	}
}

func BenchmarkNormalizer_NormalizeTitle(b *testing.B) {
	normalizer := NewNormalizer()
	title := "千里之外 (feat. 费玉清) (Live)"

	b.ResetTimer()
	for range b.N {
		normalizer.NormalizeTitle(title)
	}
}

func BenchmarkNormalizer_Score(b *testing.B) {
	normalizer := NewNormalizer()

	b.ResetTimer()
	for range b.N {
		normalizer.Score("qingtain", "晴天 Qingtian", "周杰伦")
	}
}

// Helper function for floating point comparison.
func abs64(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

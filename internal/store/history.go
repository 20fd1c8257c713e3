// Package store keeps the history of resolved songs, in memory with optional SQLite persistence.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"

	"songgrab/internal/core"
	"songgrab/pkg/fuzzy"
)

const (
	// MaxHistory is the number of entries kept.
	MaxHistory = 100
	// DefaultFalsePositiveRate is the bloom filter error rate used by NewHistory callers.
	DefaultFalsePositiveRate = 0.001
	// DefaultMinScore is the query score an entry needs to be returned by Find.
	DefaultMinScore = 0.6
)

// Entry is one resolved song in the history.
type Entry struct {
	Key      string        `json:"key"`
	SongID   string        `json:"songId"`
	Platform core.Platform `json:"platform"`
	Name     string        `json:"name"`
	Artist   string        `json:"artist"`
	Quality  string        `json:"quality"`
	Time     time.Time     `json:"time"`
	Song     core.Song     `json:"fullData"`
}

// NewEntry builds the history entry of a resolved song.
func NewEntry(song core.Song, at time.Time) Entry {
	return Entry{
		Key:      song.Key(),
		SongID:   song.ID,
		Platform: song.Platform,
		Name:     song.Info.Name,
		Artist:   song.Info.Artist,
		Quality:  song.ActualQuality,
		Time:     at,
		Song:     song,
	}
}

// History is a bounded, deduplicated list of resolved songs, newest first.
// Recording a song that is already present moves it to the front.
type History struct {
	entries                *lru.Cache[string, Entry]
	bloom                  *bloom.BloomFilter
	mutex                  sync.RWMutex
	maxEntries             int
	bloomFalsePositiveRate float64
}

// NewHistory creates a history holding at most maxEntries songs.
func NewHistory(maxEntries int, bloomFalsePositiveRate float64) *History {
	if maxEntries <= 0 {
		maxEntries = MaxHistory
	}
	cache, _ := lru.New[string, Entry](maxEntries)

	return &History{
		entries:                cache,
		bloom:                  bloom.NewWithEstimates(uint(maxEntries), bloomFalsePositiveRate),
		maxEntries:             maxEntries,
		bloomFalsePositiveRate: bloomFalsePositiveRate,
	}
}

// Has reports whether a song key is in the history.
func (h *History) Has(key string) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if !h.bloom.TestString(key) {
		return false
	}
	return h.entries.Contains(key)
}

// Get returns the entry for key without changing its position.
func (h *History) Get(key string) (Entry, bool) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if !h.bloom.TestString(key) {
		return Entry{}, false
	}
	return h.entries.Peek(key)
}

// Record adds the successful songs of one parse call. The first song ends up newest.
// It returns the entries that were added.
func (h *History) Record(songs []core.Song, at time.Time) []Entry {
	added := make([]Entry, 0, len(songs))
	for _, s := range songs {
		if s.Success {
			added = append(added, NewEntry(s, at))
		}
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for i := len(added) - 1; i >= 0; i-- {
		h.add(added[i])
	}
	return added
}

// Load replaces the history with entries, given newest first.
func (h *History) Load(entries []Entry) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clear()
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Key != "" {
			h.add(entries[i])
		}
	}
}

// List returns all entries, newest first.
func (h *History) List() []Entry {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	values := h.entries.Values() // oldest first
	out := make([]Entry, len(values))
	for i, v := range values {
		out[len(values)-1-i] = v
	}
	return out
}

// Find returns the entries whose name or artist match query, best match first.
// Entries with the same score keep their recency order. An empty query lists everything.
func (h *History) Find(query string, minScore float64) []Entry {
	all := h.List()
	normalizer := fuzzy.NewNormalizer()
	if normalizer.Normalize(query) == "" {
		return all
	}

	type scored struct {
		entry Entry
		score float64
	}
	matches := make([]scored, 0, len(all))
	for _, e := range all {
		if score := normalizer.Score(query, e.Name, e.Artist); score >= minScore {
			matches = append(matches, scored{entry: e, score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	out := make([]Entry, len(matches))
	for i, m := range matches {
		out[i] = m.entry
	}
	return out
}

// Remove deletes one entry.
func (h *History) Remove(key string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	// The bloom filter keeps the key; Has falls through to the cache.
	h.entries.Remove(key)
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.entries.Len()
}

// Clear removes every entry.
func (h *History) Clear() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.clear()
}

// add inserts or refreshes an entry; the cache evicts the oldest past capacity.
func (h *History) add(e Entry) {
	h.entries.Remove(e.Key)
	h.entries.Add(e.Key, e)
	h.bloom.AddString(e.Key)
}

func (h *History) clear() {
	h.entries.Purge()
	h.bloom = bloom.NewWithEstimates(uint(h.maxEntries), h.bloomFalsePositiveRate)
}

package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Platform identifies one of the supported music catalogs.
type Platform string

const (
	// PlatformNetease is NetEase Cloud Music.
	PlatformNetease Platform = "netease"
	// PlatformQQ is QQ Music.
	PlatformQQ Platform = "qq"
	// PlatformKuwo is Kuwo Music.
	PlatformKuwo Platform = "kuwo"
)

// Platforms returns the supported platforms in display order.
func Platforms() []Platform {
	return []Platform{PlatformNetease, PlatformQQ, PlatformKuwo}
}

// ParsePlatform validates a platform name.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PlatformNetease, PlatformQQ, PlatformKuwo:
		return p, nil
	case "":
		return "", fmt.Errorf("platform must not be empty")
	default:
		return "", fmt.Errorf("unsupported platform %q", s)
	}
}

// AssetKind is one of the locally downloadable artifacts of a song.
type AssetKind int

const (
	// AssetMusic is the audio file.
	AssetMusic AssetKind = iota
	// AssetLyrics is the .lrc lyric text.
	AssetLyrics
	// AssetCover is the cover image.
	AssetCover
)

// AssetKinds returns every kind in reconciliation order.
func AssetKinds() []AssetKind {
	return []AssetKind{AssetMusic, AssetLyrics, AssetCover}
}

func (k AssetKind) String() string {
	switch k {
	case AssetMusic:
		return "music"
	case AssetLyrics:
		return "lyrics"
	case AssetCover:
		return "cover"
	default:
		return fmt.Sprintf("AssetKind(%d)", int(k))
	}
}

// ParseAssetKind maps a kind name back to its value.
func ParseAssetKind(s string) (AssetKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "music":
		return AssetMusic, nil
	case "lyrics":
		return AssetLyrics, nil
	case "cover":
		return AssetCover, nil
	default:
		return 0, fmt.Errorf("unknown asset kind %q", s)
	}
}

// MarshalText lets kinds be used as JSON map keys and values.
func (k AssetKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (k *AssetKind) UnmarshalText(b []byte) error {
	v, err := ParseAssetKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// SongInfo holds descriptive metadata of a resolved song.
type SongInfo struct {
	Name            string `json:"name"`
	Artist          string `json:"artist"`
	Album           string `json:"album"`
	DurationSeconds int    `json:"duration"`
}

// Song is a song as returned by the resolver. It is never mutated after decoding.
type Song struct {
	ID             string   `json:"id"`
	Platform       Platform `json:"platform"`
	Info           SongInfo `json:"info"`
	CoverURL       string   `json:"cover"`
	LyricsText     string   `json:"lyrics"`
	SourceURL      string   `json:"url"`
	ActualQuality  string   `json:"actualQuality"`
	WasDowngraded  bool     `json:"wasDowngraded"`
	FileSizeBytes  int64    `json:"fileSize"`
	Success        bool     `json:"success"`
	FailureMessage string   `json:"error,omitempty"`
}

// Key identifies the song across platforms.
func (s Song) Key() string {
	return string(s.Platform) + ":" + s.ID
}

// Applicable reports whether the song can have the given asset at all.
func (s Song) Applicable(kind AssetKind) bool {
	switch kind {
	case AssetMusic:
		return true
	case AssetLyrics:
		return strings.TrimSpace(s.LyricsText) != ""
	case AssetCover:
		return strings.TrimSpace(s.CoverURL) != ""
	default:
		return false
	}
}

// Display renders "artist - name" for logs and prompts.
func (s Song) Display() string {
	return s.Info.Artist + " - " + s.Info.Name
}

// SearchMethodDescriptor declares how to query a platform for a capability.
// Params and Body are template trees decoded from JSON.
type SearchMethodDescriptor struct {
	URL        string            `json:"url"`
	HTTPMethod string            `json:"method"`
	Headers    map[string]string `json:"headers"`
	Params     map[string]any    `json:"params"`
	Body       any               `json:"body,omitempty"`
	Transform  string            `json:"transform,omitempty"`
}

// Validate rejects descriptors that cannot be turned into a request.
func (d *SearchMethodDescriptor) Validate() error {
	if d == nil {
		return fmt.Errorf("descriptor is nil")
	}
	if strings.TrimSpace(d.URL) == "" {
		return fmt.Errorf("descriptor url is empty")
	}
	return nil
}

// Method returns the upper-cased HTTP method, GET when unset.
func (d *SearchMethodDescriptor) Method() string {
	m := strings.ToUpper(strings.TrimSpace(d.HTTPMethod))
	if m == "" {
		return "GET"
	}
	return m
}

// SearchResultItem is the normalized preview of one search hit.
type SearchResultItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	CoverURL string `json:"coverUrl,omitempty"`
}

// RawJSON is kept for logging provider payloads without re-encoding.
type RawJSON = json.RawMessage

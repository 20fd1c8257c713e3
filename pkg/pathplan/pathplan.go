// Package pathplan derives deterministic local file paths for the assets of a song.
package pathplan

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"songgrab/internal/core"
)

const (
	// LyricsExtension is the extension of saved lyric files.
	LyricsExtension = "lrc"
	// DefaultCoverExtension is used when the cover url carries no known image extension.
	DefaultCoverExtension = "jpg"
)

var (
	illegalChars = strings.NewReplacer(
		`\`, "_", "/", "_", ":", "_", "*", "_", "?", "_",
		`"`, "_", "<", "_", ">", "_", "|", "_",
	)

	coverExtensions = map[string]bool{
		"jpg": true, "jpeg": true, "png": true, "webp": true, "gif": true, "bmp": true,
	}
)

// Sanitize replaces characters that are illegal in file names on common filesystems.
func Sanitize(name string) string {
	return illegalChars.Replace(norm.NFC.String(name))
}

// BaseName is the shared file stem of every asset of the song.
func BaseName(song core.Song) string {
	return Sanitize(song.Info.Artist + "-" + song.Info.Name)
}

// MusicExtension maps a quality tag to the audio container extension.
func MusicExtension(quality string) string {
	if strings.HasPrefix(quality, "flac") {
		return "flac"
	}
	return "mp3"
}

// CoverExtension picks the image extension from the cover url path.
func CoverExtension(coverURL string) string {
	u, err := url.Parse(strings.TrimSpace(coverURL))
	if err != nil {
		return DefaultCoverExtension
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	if coverExtensions[ext] {
		return ext
	}
	return DefaultCoverExtension
}

// Extension returns the file extension for kind.
func Extension(kind core.AssetKind, song core.Song) string {
	switch kind {
	case core.AssetLyrics:
		return LyricsExtension
	case core.AssetCover:
		return CoverExtension(song.CoverURL)
	default:
		return MusicExtension(song.ActualQuality)
	}
}

// PathFor joins root with the base name and the kind's extension.
func PathFor(kind core.AssetKind, song core.Song, root string) string {
	return filepath.Join(root, BaseName(song)+"."+Extension(kind, song))
}

// Paths maps each applicable kind to its planned location.
type Paths map[core.AssetKind]string

// Plan computes the path of every kind applicable to song.
// Identical inputs always yield identical paths.
func Plan(song core.Song, root string) Paths {
	p := make(Paths, len(core.AssetKinds()))
	for _, kind := range core.AssetKinds() {
		if song.Applicable(kind) {
			p[kind] = PathFor(kind, song, root)
		}
	}
	return p
}

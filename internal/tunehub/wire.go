package tunehub

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"songgrab/internal/core"
)

// envelope is the common response wrapper of the TuneHub API.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

func (e *envelope) message() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Msg
}

func (e *envelope) hasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

type parseData struct {
	Data []wireSong `json:"data"`
}

// looseString accepts JSON strings and numbers.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = looseString(n.String())
	return nil
}

// looseInt accepts integers, floats and numeric strings.
type looseInt int64

func (n *looseInt) UnmarshalJSON(b []byte) error {
	var s looseString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	str := strings.TrimSpace(string(s))
	if str == "" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return err
	}
	*n = looseInt(math.Round(f))
	return nil
}

type wireSong struct {
	ID       looseString `json:"id"`
	Platform string      `json:"platform"`
	Info     struct {
		Name     string   `json:"name"`
		Artist   string   `json:"artist"`
		Album    string   `json:"album"`
		Duration looseInt `json:"duration"`
	} `json:"info"`
	Cover         string   `json:"cover"`
	Lyrics        string   `json:"lyrics"`
	URL           string   `json:"url"`
	ActualQuality string   `json:"actualQuality"`
	WasDowngraded bool     `json:"wasDowngraded"`
	FileSize      looseInt `json:"fileSize"`
	Success       bool     `json:"success"`
	Error         string   `json:"error"`
	Message       string   `json:"message"`
}

func (w *wireSong) toSong(requested core.Platform) core.Song {
	platform := requested
	if p, err := core.ParsePlatform(w.Platform); err == nil {
		platform = p
	}
	failure := w.Error
	if failure == "" && !w.Success {
		failure = w.Message
	}
	return core.Song{
		ID:       string(w.ID),
		Platform: platform,
		Info: core.SongInfo{
			Name:            w.Info.Name,
			Artist:          w.Info.Artist,
			Album:           w.Info.Album,
			DurationSeconds: int(w.Info.Duration),
		},
		CoverURL:       w.Cover,
		LyricsText:     w.Lyrics,
		SourceURL:      w.URL,
		ActualQuality:  w.ActualQuality,
		WasDowngraded:  w.WasDowngraded,
		FileSizeBytes:  int64(w.FileSize),
		Success:        w.Success,
		FailureMessage: failure,
	}
}

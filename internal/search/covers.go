package search

import (
	"fmt"
	"strings"

	"songgrab/internal/core"
)

const (
	kuwoImageHost  = "https://img4.kuwo.cn"
	kuwoRIDPrefix  = "MUSIC_"
	qqCoverPattern = "https://y.gtimg.cn/music/photo_new/T002R300x300M000%s.jpg"
)

// coverIndex maps song ids to cover URLs found in a raw provider response.
type coverIndex map[string]string

// extractCovers reads cover URLs from the platform's native response layout.
func extractCovers(platform core.Platform, raw any) coverIndex {
	switch platform {
	case core.PlatformNetease:
		return neteaseCovers(raw)
	case core.PlatformQQ:
		return qqCovers(raw)
	case core.PlatformKuwo:
		return kuwoCovers(raw)
	default:
		return coverIndex{}
	}
}

// result.songs[].{id, al.picUrl}
func neteaseCovers(raw any) coverIndex {
	index := coverIndex{}
	for _, entry := range toList(dig(raw, "result", "songs")) {
		id := scalarString(dig(entry, "id"))
		cover := scalarString(dig(entry, "al", "picUrl"))
		if id != "" && isAbsoluteURL(cover) {
			index[id] = cover
		}
	}
	return index
}

// data.song.list[].{songmid|mid, albummid|album.mid}
func qqCovers(raw any) coverIndex {
	index := coverIndex{}
	for _, entry := range toList(dig(raw, "data", "song", "list")) {
		id := scalarString(dig(entry, "songmid"))
		if id == "" {
			id = scalarString(dig(entry, "mid"))
		}
		albumMid := scalarString(dig(entry, "albummid"))
		if albumMid == "" {
			albumMid = scalarString(dig(entry, "album", "mid"))
		}
		if id != "" && albumMid != "" {
			index[id] = fmt.Sprintf(qqCoverPattern, albumMid)
		}
	}
	return index
}

// abslist[].{MUSICRID, web_albumpic_short|hts_MVPIC}
func kuwoCovers(raw any) coverIndex {
	index := coverIndex{}
	for _, entry := range toList(dig(raw, "abslist")) {
		rid := scalarString(dig(entry, "MUSICRID"))
		if rid == "" {
			continue
		}
		var cover string
		for _, key := range []string{"web_albumpic_short", "hts_MVPIC"} {
			if cover = normalizeKuwoCover(scalarString(dig(entry, key))); cover != "" {
				break
			}
		}
		if cover == "" {
			continue
		}
		index[rid] = cover
		index[strings.TrimPrefix(rid, kuwoRIDPrefix)] = cover
	}
	return index
}

// normalizeKuwoCover makes kuwo's protocol- and host-relative picture paths absolute.
func normalizeKuwoCover(s string) string {
	switch {
	case s == "":
		return ""
	case strings.HasPrefix(s, "//"):
		return "https:" + s
	case strings.HasPrefix(s, "/"):
		return kuwoImageHost + s
	case isAbsoluteURL(s):
		return s
	default:
		return ""
	}
}

func isAbsoluteURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// backfill sets the cover of items that have none.
func (c coverIndex) backfill(items []core.SearchResultItem) {
	for i := range items {
		if items[i].CoverURL != "" {
			continue
		}
		if cover, ok := c[items[i].ID]; ok {
			items[i].CoverURL = cover
		}
	}
}

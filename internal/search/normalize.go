package search

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"

	"songgrab/internal/core"
)

// toList turns a transform result or a parsed response into a list of entries.
// Anything that is not a list yields nil.
func toList(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	case []map[string]any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// toItems converts entries into result items. Entries that are not objects are skipped.
func toItems(list []any) []core.SearchResultItem {
	items := make([]core.SearchResultItem, 0, len(list))
	for _, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		items = append(items, core.SearchResultItem{
			ID:       scalarString(obj["id"]),
			Name:     firstString(obj, "name", "title", "songname"),
			Artist:   artistString(firstPresent(obj, "artist", "artists", "singer")),
			Album:    nameOf(firstPresent(obj, "album", "albumName")),
			CoverURL: firstString(obj, "coverUrl", "cover", "pic", "picUrl"),
		})
	}
	return items
}

func firstPresent(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := scalarString(obj[k]); s != "" {
			return s
		}
	}
	return ""
}

// scalarString renders strings and numbers; anything else is "".
func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return ""
	}
}

// nameOf reads a string or an object carrying a name.
func nameOf(v any) string {
	if obj, ok := v.(map[string]any); ok {
		return scalarString(obj["name"])
	}
	return scalarString(v)
}

// artistString joins artist lists with " / ".
func artistString(v any) string {
	list := toList(v)
	if list == nil {
		return nameOf(v)
	}
	names := make([]string, 0, len(list))
	for _, a := range list {
		if n := nameOf(a); n != "" {
			names = append(names, n)
		}
	}
	return strings.Join(names, " / ")
}

// dig follows object keys through a parsed JSON tree.
func dig(v any, path ...string) any {
	for _, key := range path {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = obj[key]
	}
	return v
}

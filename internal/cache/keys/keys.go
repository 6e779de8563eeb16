// Package keys builds every Redis key the service writes. Keys are ASCII-only
// and deterministic; free-form parts get an xxhash suffix so two inputs that
// sanitize to the same text still map to different keys.
package keys

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const maxFilterTextLen = 160

var punctSpace = regexp.MustCompile(`\s*([=<>!\.,\(\)|&])\s*`)

// PlaceSearch keys one nearby-search result page: category, H3 resolution and
// cell, and the query filters (radius, keyword, page).
func PlaceSearch(category string, res int, cell, filters string) string {
	filterText := normalizeFilters(filters)
	filterSafe := sanitize(filterText, true)
	if len(filterSafe) > maxFilterTextLen {
		filterSafe = filterSafe[:maxFilterTextLen]
	}
	return fmt.Sprintf("place:%s:%d:%s:q=%s:f=%016x",
		sanitize(strings.TrimSpace(category), false), res, cell, filterSafe, xxhash.Sum64String(filterText))
}

// StationManifest points at the live partition version of a station dataset.
func StationManifest(kind string) string {
	return "station:" + sanitize(kind, false) + ":manifest"
}

// StationPartition holds the records of one grid cell for one dataset version.
func StationPartition(kind string, version int64, cell string) string {
	return "station:" + sanitize(kind, false) + ":v" + strconv.FormatInt(version, 10) + ":cell:" + sanitize(cell, false)
}

// RefreshCursor stores the next region index for incremental refresh.
func RefreshCursor(kind string) string {
	return "station:" + sanitize(kind, false) + ":cursor"
}

// ErrorCounter is hour-bucketed so counters age out on their own.
func ErrorCounter(category string, at time.Time) string {
	return "errors:" + sanitize(category, false) + ":" + at.UTC().Format("2006010215")
}

// Route keys a routing request by its ordered coordinates.
func Route(coords ...string) string {
	return fmt.Sprintf("route:%016x", xxhash.Sum64String(strings.Join(coords, "|")))
}

func normalizeFilters(s string) string {
	if s == "" {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	return punctSpace.ReplaceAllString(s, "$1")
}

// sanitize maps whitespace to '_' and any other disallowed rune (non-ASCII
// included) to '-', collapsing repeats. '=' is kept only in filter text.
func sanitize(s string, allowEq bool) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case unicode.IsSpace(r):
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-' || r == '.':
			out = r
		case allowEq && r == '=':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

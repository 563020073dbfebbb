package goes

import (
	"strings"
	"time"
)

// Archive and product filenames carry the observation start stamp after a
// marker: "-s" in the packaged .tgz names, "_s" in the .nc names the
// satellite ground segment publishes. Eleven characters of YYYYJJJHHMM
// follow the marker.

const stampLen = 11

// StartStampString extracts the raw start stamp from a filename, trying
// the local marker first and the remote one second.
func StartStampString(name string) (string, bool) {
	for _, marker := range []string{"-s", "_s"} {
		idx := strings.Index(name, marker)
		if idx < 0 {
			continue
		}
		rest := name[idx+len(marker):]
		if len(rest) < stampLen {
			continue
		}
		stamp := rest[:stampLen]
		if isDigits(stamp) {
			return stamp, true
		}
	}
	return "", false
}

// StartStamp extracts and parses the start stamp from a filename.
func StartStamp(name string) (time.Time, bool) {
	stamp, ok := StartStampString(name)
	if !ok {
		return time.Time{}, false
	}
	t, err := ParseStamp(stamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// HasBand reports whether a filename mentions the given two-digit band.
func HasBand(name, band string) bool {
	return strings.Contains(name, "C"+band)
}

// MatchesAnyBand reports whether a filename mentions any of the bands.
// An empty band list matches everything.
func MatchesAnyBand(name string, bands []string) bool {
	if len(bands) == 0 {
		return true
	}
	for _, b := range bands {
		if HasBand(name, b) {
			return true
		}
	}
	return false
}

// ProductBase extracts the requestable product code from a level-2
// filename: the segment between "-L2-" and the following mode marker,
// with the domain suffix stripped and day/night variants folded. Names
// without the level-2 segment report false.
func ProductBase(name string) (string, bool) {
	i := strings.Index(name, "-L2-")
	if i < 0 {
		return "", false
	}
	rest := name[i+len("-L2-"):]
	j := strings.Index(rest, "-M")
	if j <= 0 {
		return "", false
	}
	seg := rest[:j]
	switch {
	case strings.HasSuffix(seg, "C"), strings.HasSuffix(seg, "F"):
		seg = seg[:len(seg)-1]
	case strings.HasSuffix(seg, "M1"), strings.HasSuffix(seg, "M2"):
		seg = seg[:len(seg)-2]
	}
	if seg == "" {
		return "", false
	}
	return ProductAlias(seg), true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

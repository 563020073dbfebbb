package processor

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lanot/goesrecover/pkg/goes"
	"github.com/lanot/goesrecover/pkg/query"
)

// buildRecoveryQuery narrows the submitted request to the day keys and
// time ranges covering the failed targets, so it can be resubmitted
// verbatim. Returns nil when nothing failed or no failure maps back to
// the original request.
func buildRecoveryQuery(id string, failed []string, q *query.Query) *query.Request {
	if len(failed) == 0 || q == nil || q.OriginalRequest == nil {
		return nil
	}

	original := q.OriginalRequest
	matched := make(map[string][]string)

	for _, target := range failed {
		stamp, ok := goes.StartStampString(filepath.Base(target))
		if !ok {
			continue
		}
		t, err := goes.ParseStamp(stamp)
		if err != nil {
			continue
		}

		key, rng, ok := containingRange(original.Fechas, t.Format("20060102"), t.Format("15:04"))
		if !ok {
			continue
		}
		if !hasString(matched[key], rng) {
			matched[key] = append(matched[key], rng)
		}
	}

	if len(matched) == 0 {
		return nil
	}

	out := original.Clone()
	out.CreatedBy = ""
	out.Fechas = matched
	out.Description = fmt.Sprintf("Consulta de recuperación para la solicitud original %s", id)
	return out
}

// containingRange finds a day key whose bounds contain ymd and, inside
// it, a range containing hm. Day keys are plain YYYYMMDD or
// YYYYMMDD-YYYYMMDD, so the bounds compare as strings. Keys whose ranges
// do not cover the minute are passed over in favor of later ones.
func containingRange(fechas map[string][]string, ymd, hm string) (string, string, bool) {
	minute, err := goes.ParseTimeOfDay(hm)
	if err != nil {
		return "", "", false
	}

	keys := make([]string, 0, len(fechas))
	for k := range fechas {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		bounds := strings.Split(key, "-")
		if ymd < bounds[0] || ymd > bounds[len(bounds)-1] {
			continue
		}
		for _, rng := range fechas[key] {
			start, end, err := goes.ParseTimeRange(rng)
			if err != nil {
				continue
			}
			if start.Minutes() <= minute.Minutes() && minute.Minutes() <= end.Minutes() {
				return key, rng, true
			}
		}
	}
	return "", "", false
}

func hasString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

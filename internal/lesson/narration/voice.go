package narration

import (
	"strings"

	"golang.org/x/text/language"
)

// SelectVoice picks the narrator voice for a set of preferred locales, best first:
// a feminine voice in a preferred locale, then any voice in a preferred locale
// (in preference order), then any voice sharing a preferred base language,
// then the first voice available.
func SelectVoice(voices []Voice, preferred []string) (Voice, bool) {
	if len(voices) == 0 {
		return Voice{}, false
	}
	prefs := make([]language.Tag, 0, len(preferred))
	for _, p := range preferred {
		if tag, err := language.Parse(strings.TrimSpace(p)); err == nil {
			prefs = append(prefs, tag)
		}
	}
	tags := make([]language.Tag, len(voices))
	for i, v := range voices {
		tags[i], _ = language.Parse(strings.TrimSpace(v.Lang))
	}

	for _, p := range prefs {
		for i, v := range voices {
			if isFeminine(v) && sameLocale(tags[i], p) {
				return v, true
			}
		}
	}
	for _, p := range prefs {
		for i, v := range voices {
			if sameLocale(tags[i], p) {
				return v, true
			}
		}
	}
	for _, p := range prefs {
		pb, _ := p.Base()
		for i, v := range voices {
			if vb, _ := tags[i].Base(); vb == pb && vb.String() != "und" {
				return v, true
			}
		}
	}
	return voices[0], true
}

func isFeminine(v Voice) bool {
	return strings.EqualFold(v.Gender, "female") || strings.Contains(strings.ToLower(v.Name), "female")
}

func sameLocale(a, b language.Tag) bool {
	ab, _ := a.Base()
	bb, _ := b.Base()
	if ab != bb || ab.String() == "und" {
		return false
	}
	return explicitRegion(a) == explicitRegion(b)
}

// Region() guesses a region for bare tags; only a region written in the tag counts.
func explicitRegion(t language.Tag) string {
	r, conf := t.Region()
	if conf != language.Exact {
		return ""
	}
	return r.String()
}

package places

import (
	"strings"
)

// Exclusion reasons. A mention filtered with reason known_pattern
// always has its exact pattern contained in the normalized tight-context
// window.
const (
	ReasonKnownPattern = "known_pattern"
	ReasonOrgSuffix    = "org_suffix"
	ReasonPersonalName = "personal_name"
)

// strongOrgSuffixes triggers an outright reject when they immediately
// follow a mention, e.g. "Texas Instruments",
// "Georgia Bulldogs". shortOrgSuffixes is the over-rejection-prone
// subset (short, common words); those only reject when the suffix word
// itself is capitalized in the original (untransformed) text, rather
// than on a bare word match.
var strongOrgSuffixes = map[string]bool{
	"instruments": true, "corporation": true, "airlines": true, "airways": true,
	"technologies": true, "industries": true, "motors": true, "energy": true,
	"bulldogs": true, "longhorns": true, "rangers": true, "roadhouse": true,
	"instrument": true,
}

var shortOrgSuffixes = map[string]bool{
	"co": true, "tech": true, "inc": true,
}

// weakOrgSuffixes require the exact combined phrase to appear in the
// exclusion list rather than rejecting outright.
var weakOrgSuffixes = map[string]bool{
	"times": true, "post": true, "herald": true, "tribune": true, "news": true,
}

// personalTitles and commonGivenNames are checked against the word
// immediately BEFORE a mention: "Mr. Washington",
// "Dr. Jordan", "Paris Hilton".
var personalTitles = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true, "sen": true,
	"rep": true, "gov": true, "pres": true, "president": true, "senator": true,
}

var commonGivenNames = map[string]bool{
	"paris": true, // Paris Hilton - a name that also happens to be a place
	"sydney": true,
	"austin": true,
	"dallas": true,
	"jordan": true,
	"victoria": true,
}

// Verdict is shouldExclude's decision on one candidate mention.
type Verdict struct {
	Excluded bool
	Reason   string
	Pattern  string // the exclusion phrase matched, when Reason==known_pattern
}

// ExclusionIndex is the trigger_word -> phrases[] lookup from
// place_exclusions, keyed by the normalized
// trigger word.
type ExclusionIndex map[string][]Exclusion

func buildExclusionIndex(rows []Exclusion) ExclusionIndex {
	idx := make(ExclusionIndex)
	for _, r := range rows {
		key := NormalizeName(r.TriggerWord)
		idx[key] = append(idx[key], r)
	}
	return idx
}

// shouldExclude runs the five-step context filter against
// one candidate mention found at byte offset `offset` in `text`.
// contextWindow/tightWindow are the ±50/±25 char windows from cmn.PlacesConfig.
func shouldExclude(idx ExclusionIndex, text, mention string, offset, contextWindow, tightWindow int) Verdict {
	tight := window(text, offset, len(mention), tightWindow)
	tightNorm := NormalizeName(tight)

	triggerKey := NormalizeName(mention)
	for _, excl := range idx[triggerKey] {
		phrase := NormalizeName(excl.ExclusionPhrase)
		if phrase != "" && strings.Contains(tightNorm, phrase) {
			return Verdict{Excluded: true, Reason: ReasonKnownPattern, Pattern: phrase}
		}
	}

	after := firstWordAfter(text, offset+len(mention))
	afterNorm := NormalizeName(after)
	if afterNorm != "" {
		if shortOrgSuffixes[afterNorm] {
			if after != "" && after[0] >= 'A' && after[0] <= 'Z' {
				return Verdict{Excluded: true, Reason: ReasonOrgSuffix, Pattern: mention + " " + after}
			}
		} else if strongOrgSuffixes[afterNorm] {
			return Verdict{Excluded: true, Reason: ReasonOrgSuffix, Pattern: mention + " " + after}
		} else if weakOrgSuffixes[afterNorm] {
			combined := NormalizeName(mention + " " + after)
			for _, excl := range idx[triggerKey] {
				if NormalizeName(excl.ExclusionPhrase) == combined {
					return Verdict{Excluded: true, Reason: ReasonOrgSuffix, Pattern: combined}
				}
			}
		}
	}

	before := lastWordBefore(text, offset)
	beforeNorm := NormalizeName(before)
	if beforeNorm != "" && (personalTitles[beforeNorm] || commonGivenNames[beforeNorm]) {
		return Verdict{Excluded: true, Reason: ReasonPersonalName, Pattern: before + " " + mention}
	}

	return Verdict{Excluded: false}
}

// window returns the ±n character slice of text centered on
// [offset, offset+length), clamped to text's bounds.
func window(text string, offset, length, n int) string {
	start := offset - n
	if start < 0 {
		start = 0
	}
	end := offset + length + n
	if end > len(text) {
		end = len(text)
	}
	if start >= end || start > len(text) {
		return ""
	}
	return text[start:end]
}

func firstWordAfter(text string, from int) string {
	if from > len(text) {
		return ""
	}
	rest := strings.TrimLeft(text[from:], " \t\n\r")
	rest = strings.TrimLeft(rest, ",.;:")
	rest = strings.TrimLeft(rest, " \t\n\r")
	end := strings.IndexFunc(rest, isWordBreak)
	if end == -1 {
		return rest
	}
	return rest[:end]
}

func lastWordBefore(text string, to int) string {
	if to < 0 || to > len(text) {
		return ""
	}
	prefix := strings.TrimRight(text[:to], " \t\n\r,.;:")
	start := strings.LastIndexFunc(prefix, isWordBreak)
	return prefix[start+1:]
}

func isWordBreak(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '\'':
		return false
	default:
		return true
	}
}

package places

import (
	"unicode"

	"github.com/newsgrid/crawler/planner"
)

// Resolver adapts a Gazetteer to planner.PlaceResolver, the small
// interface the extract stage consults over analyzer-recognized text.
type Resolver struct {
	gaz *Gazetteer
}

func NewResolver(gaz *Gazetteer) *Resolver { return &Resolver{gaz: gaz} }

// ResolveMentions scans text for capitalized-word spans, matches them
// against the gazetteer's normalized-name index, and runs the context
// filter on every match. It returns both accepted and
// excluded mentions; callers filter on Excluded as needed.
func (r *Resolver) ResolveMentions(text string) ([]planner.PlaceMention, error) {
	idx := r.gaz.Exclusions()
	cfg := r.gaz.Config()
	contextWindow := cfg.ContextWindow
	tightWindow := cfg.TightContextWindow
	if contextWindow == 0 {
		contextWindow = 50
	}
	if tightWindow == 0 {
		tightWindow = 25
	}

	var out []planner.PlaceMention
	for _, cand := range candidateSpans(text) {
		norm := NormalizeName(cand.text)
		if !r.gaz.MaybeKnownName(norm) {
			continue
		}
		places := r.gaz.ByNormalizedName(norm)
		if len(places) == 0 {
			continue
		}
		verdict := shouldExclude(idx, text, cand.text, cand.offset, contextWindow, tightWindow)
		best := places[0] // population-desc tie-break already applied at load time
		out = append(out, planner.PlaceMention{
			PlaceID:  best.ID,
			Name:     cand.text,
			Offset:   cand.offset,
			Excluded: verdict.Excluded,
			Reason:   verdict.Reason,
		})
	}
	return out, nil
}

type span struct {
	text   string
	offset int
}

const maxRunWords = 4

// candidateSpans finds runs of consecutive capitalized words ("Texas",
// "New York City") and emits every contiguous sub-phrase within each run
// (length 1..maxRunWords) as a candidate - a multi-word organization name
// like "Texas Instruments" must not shadow the single-word place name
// "Texas" it starts with. This is a deliberately cheap heuristic - the
// full EntityRecognizer (analyzer package) is the GPE source of truth
// upstream; this pass only needs to find
// gazetteer-name-shaped spans to hand to the context filter.
func candidateSpans(text string) []span {
	var out []span
	runes := []rune(text)
	n := len(runes)

	isCapWord := func(start int) (end int, ok bool) {
		if start >= n || !unicode.IsUpper(runes[start]) {
			return start, false
		}
		end = start + 1
		for end < n && (unicode.IsLower(runes[end]) || unicode.IsUpper(runes[end])) {
			end++
		}
		return end, true
	}

	i := 0
	for i < n {
		end, ok := isCapWord(i)
		if !ok {
			i++
			continue
		}
		var bounds [][2]int // [start,end) rune bounds of each word in the run
		bounds = append(bounds, [2]int{i, end})
		j := end
		for len(bounds) < maxRunWords {
			k := j
			for k < n && runes[k] == ' ' {
				k++
			}
			if k == j {
				break
			}
			nextEnd, nextOK := isCapWord(k)
			if !nextOK {
				break
			}
			bounds = append(bounds, [2]int{k, nextEnd})
			j = nextEnd
		}

		for start := 0; start < len(bounds); start++ {
			for end := start; end < len(bounds); end++ {
				spanStart := bounds[start][0]
				spanEnd := bounds[end][1]
				out = append(out, span{text: string(runes[spanStart:spanEnd]), offset: byteOffset(text, spanStart)})
			}
		}
		i = j // past the whole run - its sub-phrases are already emitted
	}
	return out
}

// byteOffset converts a rune index back to a byte offset into text; ascii
// article text (the overwhelming common case) makes this an identity
// conversion, but the explicit walk keeps multi-byte titles correct.
func byteOffset(text string, runeIdx int) int {
	count := 0
	for i := range text {
		if count == runeIdx {
			return i
		}
		count++
	}
	return len(text)
}

package analyzer

// scoreConfidence is a weighted average of title quality, word count,
// metadata completeness and readability signals. Visual signals are out of scope (no rendering), so that
// weight is redistributed across the others rather than silently
// dropped, keeping the total at 1.0.
func scoreConfidence(a article) float64 {
	const (
		wTitle    = 0.15
		wWordCount = 0.25
		wMetadata = 0.20
		wReadability = 0.25 + 0.15 // readability absorbs the visual-signal weight
	)

	titleScore := titleQuality(a.Title)
	wordScore := wordCountScore(a.WordCount)
	metaScore := metadataCompleteness(a)
	readScore := readabilityScore(a)

	return wTitle*titleScore + wWordCount*wordScore + wMetadata*metaScore + wReadability*readScore
}

func titleQuality(title string) float64 {
	n := len(title)
	switch {
	case n == 0:
		return 0
	case n < 10:
		return 0.3
	case n > 200:
		return 0.5
	default:
		return 1.0
	}
}

// wordCountScore rewards articles near the ideal length (~500 words),
// tapering off up to a 10k-word cap.
func wordCountScore(words int) float64 {
	switch {
	case words <= 0:
		return 0
	case words < 50:
		return 0.2
	case words <= 500:
		return float64(words) / 500.0
	case words <= 10000:
		return 1.0 - 0.5*float64(words-500)/9500.0
	default:
		return 0.5
	}
}

func metadataCompleteness(a article) float64 {
	score := 0.0
	if a.Date != "" {
		score += 0.6 // date is "most important"
	}
	if a.Byline != "" {
		score += 0.25
	}
	if a.Language != "" {
		score += 0.15
	}
	return score
}

func readabilityScore(a article) float64 {
	if a.Text == "" {
		return 0
	}
	score := 0.5
	if len(a.Excerpt) > 40 {
		score += 0.25
	}
	if a.WordCount > 150 {
		score += 0.25
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

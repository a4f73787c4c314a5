package analyzer

import (
	"sort"
	"strings"
)

// Classifier thresholds. A secondary category is emitted
// when the runner-up's score is close enough to the winner's; below
// minCategoryConfidence the article is Uncategorized.
const (
	primaryKeywordWeight   = 2.0
	secondaryKeywordWeight = 1.0
	titleMultiplier        = 3.0
	secondaryGap           = 0.5
	minCategoryConfidence  = 0.1
)

// CategoryResult is the classifier's decision for one article.
type CategoryResult struct {
	Primary    string  `json:"primary"`
	Secondary  string  `json:"secondary,omitempty"`
	Confidence float64 `json:"confidence"`
}

// CategoryClassifier is the rule-based classifier:
// weighted keyword matching over a fixed category set, primary keywords
// at weight 2.0, secondary at 1.0, with title hits multiplied by 3.0.
type CategoryClassifier struct {
	rules []categoryRule
}

type categoryRule struct {
	name      string
	primary   map[string]bool
	secondary map[string]bool
}

func newRule(name string, primary, secondary []string) categoryRule {
	r := categoryRule{name: name, primary: make(map[string]bool), secondary: make(map[string]bool)}
	for _, k := range primary {
		r.primary[k] = true
	}
	for _, k := range secondary {
		r.secondary[k] = true
	}
	return r
}

func defaultClassifier() *CategoryClassifier {
	return &CategoryClassifier{rules: []categoryRule{
		newRule("Politics",
			[]string{"election", "senate", "congress", "parliament", "president", "minister", "policy", "legislation", "vote", "campaign"},
			[]string{"government", "political", "democrat", "republican", "law", "bill", "governor", "mayor", "diplomat"}),
		newRule("Technology",
			[]string{"software", "startup", "chip", "semiconductor", "smartphone", "internet", "cybersecurity", "artificial", "robotics"},
			[]string{"tech", "computer", "device", "digital", "data", "cloud", "platform", "silicon", "encryption"}),
		newRule("Sports",
			[]string{"championship", "tournament", "playoff", "league", "touchdown", "goal", "olympics", "quarterback", "coach"},
			[]string{"team", "game", "season", "player", "match", "score", "stadium", "fans", "win"}),
		newRule("Business",
			[]string{"earnings", "merger", "acquisition", "revenue", "shares", "ipo", "shareholders", "profit", "bankruptcy"},
			[]string{"market", "company", "stock", "investor", "economy", "trade", "quarter", "ceo", "billion"}),
		newRule("Entertainment",
			[]string{"movie", "film", "album", "concert", "celebrity", "premiere", "oscars", "grammy", "boxoffice"},
			[]string{"actor", "singer", "director", "music", "hollywood", "streaming", "show", "star", "festival"}),
		newRule("Science",
			[]string{"research", "study", "discovery", "telescope", "genome", "physics", "astronomy", "climate", "fossil"},
			[]string{"scientist", "laboratory", "experiment", "species", "spacecraft", "theory", "journal", "nasa"}),
		newRule("Health",
			[]string{"vaccine", "disease", "hospital", "cancer", "outbreak", "epidemic", "diagnosis", "treatment", "surgery"},
			[]string{"patient", "doctor", "medical", "drug", "virus", "symptoms", "clinical", "therapy", "health"}),
	}}
}

// Classify scores title+text against every category's keyword sets and
// returns the winner, an optional close runner-up, and the winner's
// share of the total score as confidence.
func (c *CategoryClassifier) Classify(title, text string) CategoryResult {
	titleTokens := tokenize(title)
	bodyTokens := tokenize(text)

	type scored struct {
		name  string
		score float64
	}
	scores := make([]scored, 0, len(c.rules))
	var total float64
	for _, rule := range c.rules {
		s := rule.score(bodyTokens, 1.0) + rule.score(titleTokens, titleMultiplier)
		scores = append(scores, scored{rule.name, s})
		total += s
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	top := scores[0]
	if total == 0 {
		return CategoryResult{Primary: "Uncategorized"}
	}
	confidence := top.score / total
	if confidence < minCategoryConfidence {
		return CategoryResult{Primary: "Uncategorized", Confidence: confidence}
	}

	out := CategoryResult{Primary: top.name, Confidence: confidence}
	if second := scores[1]; second.score > 0 && 1-(second.score/top.score) < secondaryGap {
		out.Secondary = second.name
	}
	return out
}

func (r categoryRule) score(tokens []string, multiplier float64) float64 {
	var s float64
	for _, tok := range tokens {
		switch {
		case r.primary[tok]:
			s += primaryKeywordWeight * multiplier
		case r.secondary[tok]:
			s += secondaryKeywordWeight * multiplier
		}
	}
	return s
}

// Entity labels.
const (
	EntityPerson = "PERSON"
	EntityOrg    = "ORG"
	EntityGPE    = "GPE"
)

// RecognizedName is one entity match, with its character offset into the
// analyzed text and a per-match confidence.
type RecognizedName struct {
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Offset     int     `json:"offset"`
}

// EntityRecognizer combines known-list lookups with capitalization and
// adjacency patterns for PERSON, ORG and GPE recognition.
// It is intentionally not a statistical model, so every rule here is an
// explicit pattern a test can pin down.
type EntityRecognizer struct {
	knownGPE    map[string]bool
	knownOrg    map[string]bool
	personTitle map[string]bool
	orgSuffix   map[string]bool
}

func defaultEntityRecognizer() *EntityRecognizer {
	return &EntityRecognizer{
		knownGPE: toLowerSet(
			"america", "washington", "texas", "california", "london", "paris",
			"berlin", "tokyo", "beijing", "moscow", "india", "china", "russia",
			"france", "germany", "japan", "canada", "mexico", "brazil", "europe"),
		knownOrg: toLowerSet(
			"google", "microsoft", "apple", "amazon", "nasa", "fbi", "cia",
			"congress", "senate", "pentagon", "reuters", "nato", "opec"),
		personTitle: toLowerSet(
			"mr", "mrs", "ms", "dr", "prof", "sen", "rep", "gov",
			"president", "senator", "governor", "judge", "mayor"),
		orgSuffix: toLowerSet(
			"inc", "corp", "corporation", "company", "ltd", "llc", "group",
			"instruments", "technologies", "industries", "airlines", "university"),
	}
}

func toLowerSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = true
	}
	return set
}

// Recognize scans text for capitalized-word runs and labels each one.
// Precedence: org suffix > known org > title-prefixed person > known GPE
// > two-word person heuristic. Runs that match nothing are dropped
// rather than guessed at.
func (e *EntityRecognizer) Recognize(text string) []RecognizedName {
	var out []RecognizedName
	for _, run := range capitalizedRuns(text) {
		words := strings.Fields(run.text)
		lowered := make([]string, len(words))
		for i, w := range words {
			lowered[i] = strings.ToLower(strings.Trim(w, ".,;:'\""))
		}
		last := lowered[len(lowered)-1]

		// A person title anywhere before the run's last word ("Dr.
		// Ramirez", "Yesterday Sen. Cruz") marks what follows it as the
		// person's name; the title itself is capitalized, so it lands
		// inside the run rather than before it.
		titleAt := -1
		for i := 0; i < len(lowered)-1; i++ {
			if e.personTitle[lowered[i]] {
				titleAt = i
			}
		}

		switch {
		case len(words) > 1 && e.orgSuffix[last]:
			out = append(out, RecognizedName{Text: run.text, Label: EntityOrg, Confidence: 0.9, Offset: run.offset})
		case e.knownOrg[strings.ToLower(run.text)]:
			out = append(out, RecognizedName{Text: run.text, Label: EntityOrg, Confidence: 0.85, Offset: run.offset})
		case titleAt >= 0:
			name := strings.Join(words[titleAt+1:], " ")
			nameOffset := run.offset
			if idx := strings.Index(text[run.offset:], words[titleAt+1]); idx >= 0 {
				nameOffset = run.offset + idx
			}
			out = append(out, RecognizedName{Text: name, Label: EntityPerson, Confidence: 0.9, Offset: nameOffset})
		case e.personTitle[wordBefore(text, run.offset)]:
			out = append(out, RecognizedName{Text: run.text, Label: EntityPerson, Confidence: 0.9, Offset: run.offset})
		case len(words) == 1 && e.knownGPE[lowered[0]]:
			out = append(out, RecognizedName{Text: run.text, Label: EntityGPE, Confidence: 0.8, Offset: run.offset})
		case len(words) == 2 && !e.knownGPE[lowered[0]] && !e.knownGPE[lowered[1]]:
			out = append(out, RecognizedName{Text: run.text, Label: EntityPerson, Confidence: 0.5, Offset: run.offset})
		}
	}
	return out
}

// wordBefore returns the lowercase word immediately preceding byte offset,
// with trailing punctuation stripped, for the title-prefix person rule.
func wordBefore(text string, offset int) string {
	if offset <= 0 || offset > len(text) {
		return ""
	}
	prefix := strings.TrimRight(text[:offset], " \t\n\r")
	prefix = strings.TrimRight(prefix, ".,;:")
	idx := strings.LastIndexAny(prefix, " \t\n\r")
	return strings.ToLower(prefix[idx+1:])
}

type capRun struct {
	text   string
	offset int
}

// capitalizedRuns finds maximal runs of consecutive capitalized words.
// Sentence openers are included - Recognize drops runs that match no
// rule, so an ordinary opening word never becomes an entity on its own.
func capitalizedRuns(text string) []capRun {
	var out []capRun
	fields := strings.Fields(text)
	offset := 0
	i := 0
	locate := func(word string) int {
		idx := strings.Index(text[offset:], word)
		if idx < 0 {
			return offset
		}
		return offset + idx
	}
	for i < len(fields) {
		w := strings.Trim(fields[i], ".,;:'\"")
		if w == "" || !isCapitalized(w) {
			offset = locate(fields[i]) + len(fields[i])
			i++
			continue
		}
		start := locate(fields[i])
		runWords := []string{w}
		offset = start + len(fields[i])
		j := i + 1
		for j < len(fields) {
			next := strings.Trim(fields[j], ".,;:'\"")
			if next == "" || !isCapitalized(next) {
				break
			}
			runWords = append(runWords, next)
			offset = locate(fields[j]) + len(fields[j])
			j++
		}
		out = append(out, capRun{text: strings.Join(runWords, " "), offset: start})
		i = j
	}
	return out
}

func isCapitalized(w string) bool {
	return w[0] >= 'A' && w[0] <= 'Z'
}

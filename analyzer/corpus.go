package analyzer

import (
	"encoding/json"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
)

const defaultTopN = 10

// corpus is the persistent document-frequency table the KeywordExtractor
// uses for TF-IDF. Each Analyzer owns its own corpus, loaded in New()
// and released in Close(); there is no package-level instance and no
// implicit global init with side effects.
type corpus struct {
	mu       sync.Mutex
	path     string
	docCount int
	df       map[string]int
}

func loadCorpus(path string) (*corpus, error) {
	c := &corpus{path: path, df: make(map[string]int)}
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	var snap struct {
		DocCount int            `json:"doc_count"`
		DF       map[string]int `json:"df"`
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	c.docCount = snap.DocCount
	if snap.DF != nil {
		c.df = snap.DF
	}
	return c, nil
}

func (c *corpus) save() error {
	if c.path == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := json.Marshal(struct {
		DocCount int            `json:"doc_count"`
		DF       map[string]int `json:"df"`
	}{c.docCount, c.df})
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o644)
}

// observe folds one more document into the incremental document-frequency
// table, updated incrementally per tagged article.
func (c *corpus) observe(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docCount++
	for term := range termSet(text) {
		c.df[term]++
	}
}

// topKeywords scores terms in title+text by TF-IDF against the corpus
// accumulated so far and returns the top N.
func (c *corpus) topKeywords(title, text string, topN int) []string {
	tf := termFrequency(title + " " + text)
	if len(tf) == 0 {
		return nil
	}

	c.mu.Lock()
	docCount := c.docCount
	df := make(map[string]int, len(tf))
	for term := range tf {
		df[term] = c.df[term]
	}
	c.mu.Unlock()

	type scored struct {
		term  string
		score float64
	}
	scores := make([]scored, 0, len(tf))
	for term, freq := range tf {
		idf := 1.0
		if docCount > 0 {
			idf = idfOf(docCount, df[term])
		}
		scores = append(scores, scored{term, float64(freq) * idf})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].term < scores[j].term
	})
	if len(scores) > topN {
		scores = scores[:topN]
	}
	out := make([]string, len(scores))
	for i, s := range scores {
		out[i] = s.term
	}
	return out
}

func idfOf(docCount, docsWithTerm int) float64 {
	// Smoothed IDF: log((N+1)/(df+1)) + 1, always positive, never divides
	// by zero even for a brand new term.
	return math.Log((float64(docCount)+1)/(float64(docsWithTerm)+1)) + 1
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "on": true, "for": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "by": true, "with": true, "at": true,
	"it": true, "as": true, "that": true, "this": true, "from": true, "its": true,
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 3 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

func termFrequency(text string) map[string]int {
	tf := make(map[string]int)
	for _, tok := range tokenize(text) {
		tf[tok]++
	}
	return tf
}

func termSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}

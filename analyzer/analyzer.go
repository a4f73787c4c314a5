// Package analyzer implements the content analyzer: from a
// stored HTML payload it produces a content_analysis row's worth of
// signals plus tags, in a single linear pass per payload: one walk
// producing one result object rather than a pipeline of independently
// scheduled stages.
package analyzer

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/newsgrid/crawler/cmn"
	"github.com/newsgrid/crawler/planner"
)

// Analyzer is the concrete planner.Analyzer implementation.
type Analyzer struct {
	corpus     *corpus
	classifier *CategoryClassifier
	entities   *EntityRecognizer
}

// New builds an Analyzer with a fresh in-process keyword corpus and the
// built-in category/entity rule sets. corpusPath, if non-empty, is where
// the document-frequency corpus is persisted between runs.
func New(corpusPath string) (*Analyzer, error) {
	c, err := loadCorpus(corpusPath)
	if err != nil {
		return nil, err
	}
	return &Analyzer{
		corpus:     c,
		classifier: defaultClassifier(),
		entities:   defaultEntityRecognizer(),
	}, nil
}

// Close persists the keyword corpus, if it is backed by a file.
func (a *Analyzer) Close() error {
	return a.corpus.save()
}

var noisyTags = map[string]bool{
	"script": true, "style": true, "meta": true, "link": true,
	"noscript": true, "iframe": true, "svg": true, "path": true,
	"br": true, "hr": true,
}

// Analyze runs the full single-pass pipeline: decode, parse+prune,
// extract, skeleton-hash, score, tag.
func (a *Analyzer) Analyze(body []byte, meta planner.AnalysisMeta) (*planner.AnalysisResult, error) {
	decoded, err := decode(body, meta.ContentType)
	if err != nil {
		return nil, err
	}

	root, err := html.Parse(strings.NewReader(decoded))
	if err != nil {
		return nil, err
	}
	prune(root)

	art := extractArticle(root, meta.URL)
	skeletonL2, skeletonL1 := skeletonHashes(root)

	confidence := scoreConfidence(art)
	recommendation := recommend(confidence)

	kw := a.corpus.topKeywords(art.Title, art.Text, defaultTopN)
	a.corpus.observe(art.Text)

	cat := a.classifier.Classify(art.Title, art.Text)
	ents := a.entities.Recognize(art.Text)

	view := analysisView{
		SkeletonHashL2: skeletonL2,
		SkeletonHashL1: skeletonL1,
		Confidence:     confidence,
		Recommendation: recommendation,
		Keywords:       kw,
		Category:       cat,
		Entities:       ents,
		Byline:         art.Byline,
		Excerpt:        art.Excerpt,
	}

	links := extractLinks(root, meta.URL)

	return &planner.AnalysisResult{
		Classification: string(recommendation),
		Title:          art.Title,
		Date:           art.Date,
		Section:        cat.Primary,
		WordCount:      art.WordCount,
		Language:       art.Language,
		SkeletonHash:   skeletonL2,
		Confidence:     confidence,
		AnalysisJSON:   cmn.MustMarshalString(view),
		Text:           art.Text,
		Links:          links,
	}, nil
}

// analysisView is what gets serialized into content_analysis.analysis_json;
// it is read back by planner.skeletonFamilies and is tolerant of unknown
// fields on decode (jsoniter's default).
type analysisView struct {
	SkeletonHashL2 string           `json:"skeleton_hash"`
	SkeletonHashL1 string           `json:"skeleton_hash_template"`
	Confidence     float64          `json:"confidence"`
	Recommendation recommendation   `json:"recommendation"`
	Keywords       []string         `json:"keywords"`
	Category       CategoryResult   `json:"category"`
	Entities       []RecognizedName `json:"entities"`
	Byline         string           `json:"byline,omitempty"`
	Excerpt        string           `json:"excerpt,omitempty"`
}

type recommendation string

const (
	RecommendAccept         recommendation = "accept"
	RecommendAcceptCaution  recommendation = "accept-with-caution"
	RecommendReviewNeeded   recommendation = "review-needed"
	RecommendTeacherRequired recommendation = "teacher-required"
)

func recommend(confidence float64) recommendation {
	switch {
	case confidence >= 0.8:
		return RecommendAccept
	case confidence >= 0.6:
		return RecommendAcceptCaution
	case confidence >= 0.3:
		return RecommendReviewNeeded
	default:
		return RecommendTeacherRequired
	}
}

// decode detects and applies the document's charset, falling back to the
// declared Content-Type and then to UTF-8 auto-detection.
func decode(body []byte, contentType string) (string, error) {
	reader, err := charset.NewReader(strings.NewReader(string(body)), contentType)
	if err != nil {
		return string(body), nil
	}
	buf := make([]byte, 0, len(body))
	chunk := make([]byte, 4096)
	for {
		n, rErr := reader.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if rErr != nil {
			break
		}
	}
	return string(buf), nil
}

func prune(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode && noisyTags[c.Data] {
			n.RemoveChild(c)
			continue
		}
		prune(c)
	}
}

package planner

// Analyzer is the content-analysis collaborator the fetch-loop/extract
// stages call into. Defined here, implemented concretely
// by the analyzer package, so planner depends on a small interface
// rather than the analyzer package's full surface.
type Analyzer interface {
	Analyze(body []byte, meta AnalysisMeta) (*AnalysisResult, error)
}

// AnalysisMeta carries the context an Analyzer needs beyond the raw body.
type AnalysisMeta struct {
	URL         string
	ContentType string
}

// AnalysisResult is what the fetch-loop persists into content_analysis
// and acts on for link discovery and place resolution.
type AnalysisResult struct {
	Classification string
	Title          string
	Date           string
	Section        string
	WordCount      int
	Language       string
	SkeletonHash   string
	Confidence     float64
	AnalysisJSON   string
	Text           string
	Links          []ExtractedLink
}

// ExtractedLink is a link discovered during extraction, persisted into
// the links table and candidate-enqueued by the discovery stage.
type ExtractedLink struct {
	URL      string
	Anchor   string
	Rel      string
	Type     string
	OnDomain bool
}

// PlaceResolver is the place-resolution collaborator, consulted during
// the fetch loop's per-page extraction with the analyzer's article text.
type PlaceResolver interface {
	ResolveMentions(text string) ([]PlaceMention, error)
}

// PlaceMention is a resolved (or rejected) candidate place reference.
type PlaceMention struct {
	PlaceID  int64
	Name     string
	Offset   int
	Excluded bool
	Reason   string
}

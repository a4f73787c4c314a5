package analyzer

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/newsgrid/crawler/planner"
)

// article is the readability-style extraction result: the signals the
// rest of the pipeline (skeleton hash aside) scores and tags.
type article struct {
	Title     string
	Byline    string
	Excerpt   string
	Date      string
	Language  string
	Text      string
	WordCount int
}

var datePattern = regexp.MustCompile(`\b(20\d{2}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/20\d{2})\b`)

// extractArticle walks the pruned DOM for title, byline, excerpt,
// primary text and a publication date from explicit markup (<title>,
// <h1>, meta[name=author], time[datetime]). The primary text is every <p>
// longer than 40 characters, joined in document order; other blocks of
// text are not considered.
func extractArticle(root *html.Node, pageURL string) article {
	var title, byline, lang, metaDate string
	var paragraphs []string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "html":
				lang = attr(n, "lang")
			case "title":
				if title == "" {
					title = collapse(textOf(n))
				}
			case "h1":
				if title == "" {
					title = collapse(textOf(n))
				}
			case "time":
				if metaDate == "" {
					if dt := attr(n, "datetime"); dt != "" {
						metaDate = dt
					}
				}
			case "meta":
				name := strings.ToLower(attr(n, "name"))
				prop := strings.ToLower(attr(n, "property"))
				content := attr(n, "content")
				switch {
				case name == "author" && byline == "":
					byline = content
				case (prop == "article:published_time" || name == "date") && metaDate == "":
					metaDate = content
				}
			case "p":
				text := collapse(textOf(n))
				if len(text) > 40 {
					paragraphs = append(paragraphs, text)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	text := strings.Join(paragraphs, "\n\n")
	if metaDate == "" {
		if m := datePattern.FindString(text); m != "" {
			metaDate = m
		}
	}
	excerpt := text
	if len(paragraphs) > 0 {
		excerpt = paragraphs[0]
	}
	if len(excerpt) > 280 {
		excerpt = excerpt[:280]
	}

	return article{
		Title:     title,
		Byline:    byline,
		Excerpt:   excerpt,
		Date:      metaDate,
		Language:  lang,
		Text:      text,
		WordCount: wordCount(text),
	}
}

// extractLinks collects <a href> targets, resolving them against pageURL
// and marking which ones are on the same host for discovery purposes.
func extractLinks(root *html.Node, pageURL string) []planner.ExtractedLink {
	base, bErr := url.Parse(pageURL)

	var out []planner.ExtractedLink
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attr(n, "href")
			if href != "" && bErr == nil {
				if resolved, rErr := base.Parse(href); rErr == nil {
					out = append(out, planner.ExtractedLink{
						URL:      resolved.String(),
						Anchor:   collapse(textOf(n)),
						Rel:      attr(n, "rel"),
						Type:     "a",
						OnDomain: resolved.Host == base.Host,
					})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textOf(c))
		sb.WriteByte(' ')
	}
	return sb.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

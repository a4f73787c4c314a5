package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyPicksDominantCategory(t *testing.T) {
	c := defaultClassifier()
	res := c.Classify(
		"Senate passes new election legislation",
		"The senate voted on the legislation after a long campaign. The president is expected to sign the bill into law.")
	require.Equal(t, "Politics", res.Primary)
	require.Greater(t, res.Confidence, minCategoryConfidence)
}

func TestClassifyTitleCarriesExtraWeight(t *testing.T) {
	c := defaultClassifier()
	// One title keyword at weight 2.0*3.0 must beat two body-only
	// secondary keywords at 1.0 each.
	withTitle := c.Classify("Earnings beat expectations", "the team played a game")
	require.Equal(t, "Business", withTitle.Primary)
}

func TestClassifyEmitsSecondaryWhenScoresAreClose(t *testing.T) {
	c := defaultClassifier()
	res := c.Classify("", "The startup reported earnings. New software drove revenue, and the chip division grew shares of profit.")
	require.NotEmpty(t, res.Secondary, "two close categories must produce a secondary")
	require.NotEqual(t, res.Primary, res.Secondary)
}

func TestClassifyUncategorizedBelowConfidence(t *testing.T) {
	c := defaultClassifier()
	res := c.Classify("", "lorem ipsum dolor sit amet consectetur adipiscing elit")
	require.Equal(t, "Uncategorized", res.Primary)
}

func TestRecognizeOrgSuffix(t *testing.T) {
	e := defaultEntityRecognizer()
	ents := e.Recognize("Texas Instruments announced layoffs this quarter.")
	require.NotEmpty(t, ents)
	require.Equal(t, "Texas Instruments", ents[0].Text)
	require.Equal(t, EntityOrg, ents[0].Label)
	require.Equal(t, 0, ents[0].Offset)
}

func TestRecognizeKnownGPE(t *testing.T) {
	e := defaultEntityRecognizer()
	text := "The weather in Texas is hot."
	ents := e.Recognize(text)
	require.Len(t, ents, 1)
	require.Equal(t, "Texas", ents[0].Text)
	require.Equal(t, EntityGPE, ents[0].Label)
	require.Equal(t, strings.Index(text, "Texas"), ents[0].Offset)
}

func TestRecognizeTitlePrefixedPerson(t *testing.T) {
	e := defaultEntityRecognizer()
	ents := e.Recognize("Yesterday Dr. Ramirez examined the patient.")
	var found bool
	for _, ent := range ents {
		if ent.Text == "Ramirez" {
			found = true
			require.Equal(t, EntityPerson, ent.Label)
		}
	}
	require.True(t, found, "expected Ramirez to be recognized as a person")
}

func TestRecognizeTwoWordPersonHeuristic(t *testing.T) {
	e := defaultEntityRecognizer()
	ents := e.Recognize("Witnesses said Jane Smithfield filed the story.")
	var found bool
	for _, ent := range ents {
		if ent.Text == "Jane Smithfield" {
			found = true
			require.Equal(t, EntityPerson, ent.Label)
			require.Less(t, ent.Confidence, 0.6, "pattern-only matches carry lower confidence than list matches")
		}
	}
	require.True(t, found)
}

package places

import (
	"testing"

	"github.com/newsgrid/crawler/cmn"
	"github.com/stretchr/testify/require"
)

func TestResolveMentionsAcceptsTruePositive(t *testing.T) {
	d := newTestDB(t)
	insertPlace(t, d, cmn.PlaceKindAdmin1, "US", "Q1439", 29000000, "Texas")

	gaz := New(cmn.DefaultConfig().Places)
	require.NoError(t, gaz.Load(d))
	r := NewResolver(gaz)

	mentions, err := r.ResolveMentions("The weather in Texas is hot.")
	require.NoError(t, err)

	found := false
	for _, m := range mentions {
		if m.Name == "Texas" {
			found = true
			require.False(t, m.Excluded)
		}
	}
	require.True(t, found, "expected a Texas mention in the results")
}

func TestResolveMentionsRejectsKnownPattern(t *testing.T) {
	d := newTestDB(t)
	insertPlace(t, d, cmn.PlaceKindAdmin1, "US", "Q1439", 29000000, "Texas")
	_, err := d.SQL().Exec(`
		INSERT INTO place_exclusions(trigger_word, exclusion_phrase, exclusion_type) VALUES (?,?,?)`,
		"texas", "texas instruments", "org")
	require.NoError(t, err)

	gaz := New(cmn.DefaultConfig().Places)
	require.NoError(t, gaz.Load(d))
	r := NewResolver(gaz)

	mentions, err := r.ResolveMentions("Texas Instruments announced a new chip today.")
	require.NoError(t, err)

	found := false
	for _, m := range mentions {
		if m.Name == "Texas" {
			found = true
			require.True(t, m.Excluded)
			require.Equal(t, ReasonKnownPattern, m.Reason)
		}
	}
	require.True(t, found, "expected a Texas mention in the results")
}

func TestCandidateSpansIncludesSingleWordPrefix(t *testing.T) {
	spans := candidateSpans("Texas Instruments announced layoffs.")
	var texts []string
	for _, s := range spans {
		texts = append(texts, s.text)
	}
	require.Contains(t, texts, "Texas")
	require.Contains(t, texts, "Texas Instruments")
}

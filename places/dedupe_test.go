package places

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestDedupeByWikidataQID: ingesting a place with a QID that already
// exists merges into the existing row rather than creating a new one.
func TestDedupeByWikidataQID(t *testing.T) {
	d := newTestDB(t)

	id1, created1, err := GetOrCreateByQID(d, Place{
		Kind: "city", CountryCode: "FR", WikidataQID: "Q90", Population: 2100000,
	})
	require.NoError(t, err)
	require.True(t, created1)

	id2, created2, err := GetOrCreateByQID(d, Place{
		Kind: "city", CountryCode: "FR", WikidataQID: "Q90", Timezone: "Europe/Paris",
	})
	require.NoError(t, err)
	require.False(t, created2)
	require.Equal(t, id1, id2, "same QID must resolve to the same row")

	var count int
	require.NoError(t, d.SQL().QueryRow(`SELECT COUNT(*) FROM places WHERE wikidata_qid='Q90'`).Scan(&count))
	require.Equal(t, 1, count)

	var timezone string
	require.NoError(t, d.SQL().QueryRow(`SELECT timezone FROM places WHERE id=?`, id1).Scan(&timezone))
	require.Equal(t, "Europe/Paris", timezone, "missing field must be filled from the merge candidate")
}

func TestFindDuplicatesByWikidataQID(t *testing.T) {
	places := []Place{
		{ID: 1, Kind: "city", CountryCode: "FR", WikidataQID: "Q90"},
		{ID: 2, Kind: "city", CountryCode: "FR", WikidataQID: "Q90"},
		{ID: 3, Kind: "city", CountryCode: "DE", WikidataQID: "Q64"},
	}
	groups := FindDuplicates(places, nil, nil, 0.05)
	require.Len(t, groups, 1)
	require.Equal(t, DupWikidataQID, groups[0].Reason)
}

func TestFindDuplicatesByCoordProximity(t *testing.T) {
	places := []Place{
		{ID: 1, Kind: "city", CountryCode: "US", Lat: 40.7128, Lng: -74.0060},
		{ID: 2, Kind: "city", CountryCode: "US", Lat: 40.7130, Lng: -74.0062},
	}
	groups := FindDuplicates(places, nil, nil, 0.05)
	require.Len(t, groups, 1)
	require.Equal(t, DupCoordProximity, groups[0].Reason)
}

func TestFindDuplicatesPriorityOrder(t *testing.T) {
	// Matches both the QID rule (a) and the coordinate-proximity rule (e);
	// the stronger reason (a) must win.
	places := []Place{
		{ID: 1, Kind: "city", CountryCode: "US", WikidataQID: "Q60", Lat: 40.7128, Lng: -74.0060},
		{ID: 2, Kind: "city", CountryCode: "US", WikidataQID: "Q60", Lat: 40.7130, Lng: -74.0062},
	}
	groups := FindDuplicates(places, nil, nil, 0.05)
	require.Len(t, groups, 1)
	require.Equal(t, DupWikidataQID, groups[0].Reason)
}

func TestFindDuplicatesByExternalID(t *testing.T) {
	places := []Place{
		{ID: 1, Kind: "city", CountryCode: "US"},
		{ID: 2, Kind: "city", CountryCode: "US"},
		{ID: 3, Kind: "city", CountryCode: "US"},
	}
	externalIDs := map[int64][]ExternalID{
		1: {{PlaceID: 1, Source: "geonames", ExtID: "4699066"}},
		2: {{PlaceID: 2, Source: "geonames", ExtID: "4699066"}},
		3: {{PlaceID: 3, Source: "geonames", ExtID: "9999999"}},
	}
	groups := FindDuplicates(places, nil, externalIDs, 0.05)
	require.Len(t, groups, 1)
	require.Equal(t, DupExternalID, groups[0].Reason)
	require.ElementsMatch(t, []int64{1, 2}, []int64{groups[0].A, groups[0].B})
}

func TestFindDuplicatesByExternalIDPriorityOverNameCountryKind(t *testing.T) {
	// Shares both an external id (rule c) and a normalized name/country/kind
	// match (rule d); the stronger reason (c) must win.
	places := []Place{
		{ID: 1, Kind: "city", CountryCode: "US", CanonicalNameID: 10},
		{ID: 2, Kind: "city", CountryCode: "US", CanonicalNameID: 20},
	}
	names := map[int64][]Name{
		1: {{ID: 10, PlaceID: 1, Normalized: "austin"}},
		2: {{ID: 20, PlaceID: 2, Normalized: "austin"}},
	}
	externalIDs := map[int64][]ExternalID{
		1: {{PlaceID: 1, Source: "wikidata", ExtID: "Q16559"}},
		2: {{PlaceID: 2, Source: "wikidata", ExtID: "Q16559"}},
	}
	groups := FindDuplicates(places, names, externalIDs, 0.05)
	require.Len(t, groups, 1)
	require.Equal(t, DupExternalID, groups[0].Reason)
}

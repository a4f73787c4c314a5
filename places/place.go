// Package places implements the place resolver: an
// in-memory gazetteer loaded from the shared db at startup, a context
// filter that suppresses false-positive place mentions in article text,
// and hub discovery that probes a publisher host for pages listing
// articles about a given place. The gazetteer builds three in-memory
// lookup tables at load time (normalized name, url slug, place id), plus
// a cuckoofilter prefilter ahead of the exact normalized-name map lookup
// (the same probabilistic "definitely not present" shortcut queue.Queue
// uses for enqueue dedup).
package places

import "github.com/newsgrid/crawler/cmn"

// Place mirrors the places table.
type Place struct {
	ID              int64
	Kind            string
	PlaceType       string
	CountryCode     string
	WikidataQID     string
	OSMType         string
	OSMID           string
	Lat             float64
	Lng             float64
	Population      int64
	Timezone        string
	CanonicalNameID int64
	Status          string
	ExtraJSON       string
	ExternalIDs     []ExternalID // candidate external ids to upsert on ingest, see GetOrCreateByQID
}

// Name mirrors a place_names row: an alias for a Place.
type Name struct {
	ID         int64
	PlaceID    int64
	Name       string
	Normalized string
	Lang       string
	Script     string
	NameKind   string
	IsPreferred bool
	IsOfficial  bool
	ValidFrom   string
	ValidTo     string
	Source      string
}

// Hub mirrors a place_hubs row.
type Hub struct {
	ID        int64
	Host      string
	URL       string
	PlaceSlug string
	PlaceKind string
	Title     string
	Evidence  string
	Status    string // candidate | verified | rejected
}

// Exclusion mirrors a place_exclusions row: a trigger word's list of
// known false-positive phrases.
type Exclusion struct {
	TriggerWord     string
	ExclusionPhrase string
	ExclusionType   string // org | personal | product
}

// ExternalID mirrors a place_external_ids row: a place's id in a known
// external source (geonames, osm, wikidata), used by FindDuplicates'
// rule (c).
type ExternalID struct {
	PlaceID int64
	Source  string
	ExtID   string
}

// candidate external ids carried alongside a Place during ingestion;
// PlaceID is unset until GetOrCreateByQID resolves the place's row id.

// kind constants re-exported for callers that only import places.
const (
	KindCountry  = cmn.PlaceKindCountry
	KindRegion   = cmn.PlaceKindRegion
	KindCity     = cmn.PlaceKindCity
	KindAdmin1   = cmn.PlaceKindAdmin1
	KindAdmin2   = cmn.PlaceKindAdmin2
	KindLocality = cmn.PlaceKindLocality
	KindOther    = cmn.PlaceKindOther
)

const (
	HubCandidate = cmn.HubCandidate
	HubVerified  = cmn.HubVerified
	HubRejected  = cmn.HubRejected
)

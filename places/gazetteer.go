package places

import (
	"database/sql"
	"sort"
	"sync"

	"github.com/newsgrid/crawler/cmn"
	crawlerdb "github.com/newsgrid/crawler/db"
	"github.com/pkg/errors"
	"github.com/seiflotfy/cuckoofilter"
)

// Gazetteer is the in-memory place reference data set:
// three lookup tables built at load time (normalized name, url slug,
// place id) plus the exclusion-pattern index the context filter
// consults. It is process-wide state with an explicit New/Load/Reset
// lifecycle, never implicit global init at import time.
type Gazetteer struct {
	cfg cmn.PlacesConfig

	mu         sync.RWMutex
	byID       map[int64]*Place
	byNameNorm map[string][]*Place // ambiguous names -> places, tie-broken by population desc
	bySlug     map[string][]*Place
	namesByID  map[int64][]*Name
	extIDsByID map[int64][]ExternalID
	exclusions ExclusionIndex

	seen *cuckoo.Filter // "definitely not a known name" prefilter ahead of byNameNorm
}

// New constructs an empty Gazetteer; call Load to populate it from db.
func New(cfg cmn.PlacesConfig) *Gazetteer {
	return &Gazetteer{
		cfg:        cfg,
		byID:       make(map[int64]*Place),
		byNameNorm: make(map[string][]*Place),
		bySlug:     make(map[string][]*Place),
		namesByID:  make(map[int64][]*Name),
		extIDsByID: make(map[int64][]ExternalID),
		exclusions: make(ExclusionIndex),
		seen:       cuckoo.NewFilter(1 << 16),
	}
}

// Reset clears all in-memory state, the test hook for the process-wide
// gazetteer.
func (g *Gazetteer) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.byID = make(map[int64]*Place)
	g.byNameNorm = make(map[string][]*Place)
	g.bySlug = make(map[string][]*Place)
	g.namesByID = make(map[int64][]*Name)
	g.extIDsByID = make(map[int64][]ExternalID)
	g.exclusions = make(ExclusionIndex)
	g.seen = cuckoo.NewFilter(1 << 16)
}

// Load rebuilds every index from the shared db: places, place_names,
// place_exclusions and place_external_ids. Called once at process start and
// again whenever a caller wants a fresh snapshot (e.g. after ingestion).
func (g *Gazetteer) Load(db *crawlerdb.DB) error {
	placesRows, err := loadPlaces(db)
	if err != nil {
		return errors.Wrap(err, "places: load places")
	}
	nameRows, err := loadNames(db)
	if err != nil {
		return errors.Wrap(err, "places: load place_names")
	}
	exclRows, err := loadExclusions(db)
	if err != nil {
		return errors.Wrap(err, "places: load place_exclusions")
	}
	extIDRows, err := loadExternalIDs(db)
	if err != nil {
		return errors.Wrap(err, "places: load place_external_ids")
	}

	byID := make(map[int64]*Place, len(placesRows))
	for i := range placesRows {
		p := &placesRows[i]
		byID[p.ID] = p
	}

	namesByID := make(map[int64][]*Name)
	byNameNorm := make(map[string][]*Place)
	bySlug := make(map[string][]*Place)
	seen := cuckoo.NewFilter(1 << 16)

	for i := range nameRows {
		n := &nameRows[i]
		namesByID[n.PlaceID] = append(namesByID[n.PlaceID], n)
		p, ok := byID[n.PlaceID]
		if !ok {
			continue
		}
		norm := n.Normalized
		if norm == "" {
			norm = NormalizeName(n.Name)
		}
		byNameNorm[norm] = appendUnique(byNameNorm[norm], p)
		seen.InsertUnique([]byte(norm))

		slug := Slugify(n.Name)
		bySlug[slug] = appendUnique(bySlug[slug], p)
	}

	for _, places := range byNameNorm {
		sortByPopulationDesc(places)
	}
	for _, places := range bySlug {
		sortByPopulationDesc(places)
	}

	extIDsByID := make(map[int64][]ExternalID, len(extIDRows))
	for _, e := range extIDRows {
		extIDsByID[e.PlaceID] = append(extIDsByID[e.PlaceID], e)
	}

	g.mu.Lock()
	g.byID = byID
	g.namesByID = namesByID
	g.byNameNorm = byNameNorm
	g.bySlug = bySlug
	g.extIDsByID = extIDsByID
	g.exclusions = buildExclusionIndex(exclRows)
	g.seen = seen
	g.mu.Unlock()
	return nil
}

func appendUnique(places []*Place, p *Place) []*Place {
	for _, existing := range places {
		if existing.ID == p.ID {
			return places
		}
	}
	return append(places, p)
}

func sortByPopulationDesc(places []*Place) {
	sort.SliceStable(places, func(i, j int) bool { return places[i].Population > places[j].Population })
}

// ByNormalizedName returns candidate places for a normalized name, already
// tie-broken by population descending.
func (g *Gazetteer) ByNormalizedName(norm string) []*Place {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.byNameNorm[norm]
}

// MaybeKnownName reports whether norm might be a gazetteer entry, using
// the cuckoo filter prefilter before a caller pays for the exact map
// lookup - the same probabilistic shortcut queue.Queue uses for enqueue
// dedup (queue/queue.go).
func (g *Gazetteer) MaybeKnownName(norm string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.seen.Lookup([]byte(norm))
}

// BySlug returns candidate places for a url slug.
func (g *Gazetteer) BySlug(slug string) []*Place {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.bySlug[slug]
}

// ByID returns the place with the given id, or nil.
func (g *Gazetteer) ByID(id int64) *Place {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.byID[id]
}

// Exclusions exposes the loaded exclusion index for the context filter.
func (g *Gazetteer) Exclusions() ExclusionIndex {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.exclusions
}

// Config exposes the places configuration the resolver and hub discovery
// consult for window sizes and thresholds.
func (g *Gazetteer) Config() cmn.PlacesConfig { return g.cfg }

// FindDuplicateCandidates runs FindDuplicates over every
// place currently loaded, using the gazetteer's own name and external-id
// indexes so rule (c) (place_external_ids) and rule (d) (normalized
// name+country+kind) see the full loaded set, not just whatever subset a
// caller happens to have in hand.
func (g *Gazetteer) FindDuplicateCandidates(coordProximityDeg float64) []DupGroup {
	g.mu.RLock()
	places := make([]Place, 0, len(g.byID))
	for _, p := range g.byID {
		places = append(places, *p)
	}
	namesByID := make(map[int64][]Name, len(g.namesByID))
	for id, names := range g.namesByID {
		flat := make([]Name, len(names))
		for i, n := range names {
			flat[i] = *n
		}
		namesByID[id] = flat
	}
	extIDsByID := g.extIDsByID
	g.mu.RUnlock()

	return FindDuplicates(places, namesByID, extIDsByID, coordProximityDeg)
}

func loadPlaces(db *crawlerdb.DB) ([]Place, error) {
	rows, err := db.SQL().Query(`
		SELECT id, kind, place_type, country_code, wikidata_qid, osm_type, osm_id,
			lat, lng, population, timezone, canonical_name_id, status, extra_json
		FROM places`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Place
	for rows.Next() {
		var p Place
		var placeType, countryCode, qid, osmType, osmID, timezone, extra sql.NullString
		var lat, lng sql.NullFloat64
		var population, canonicalNameID sql.NullInt64
		if err := rows.Scan(&p.ID, &p.Kind, &placeType, &countryCode, &qid, &osmType, &osmID,
			&lat, &lng, &population, &timezone, &canonicalNameID, &p.Status, &extra); err != nil {
			return nil, err
		}
		p.PlaceType = placeType.String
		p.CountryCode = countryCode.String
		p.WikidataQID = qid.String
		p.OSMType = osmType.String
		p.OSMID = osmID.String
		p.Lat = lat.Float64
		p.Lng = lng.Float64
		p.Population = population.Int64
		p.Timezone = timezone.String
		p.CanonicalNameID = canonicalNameID.Int64
		p.ExtraJSON = extra.String
		out = append(out, p)
	}
	return out, rows.Err()
}

func loadNames(db *crawlerdb.DB) ([]Name, error) {
	rows, err := db.SQL().Query(`
		SELECT id, place_id, name, normalized, lang, script, name_kind,
			is_preferred, is_official, valid_from, valid_to, source
		FROM place_names`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Name
	for rows.Next() {
		var n Name
		var lang, script, validFrom, validTo, source sql.NullString
		var isPreferred, isOfficial int
		if err := rows.Scan(&n.ID, &n.PlaceID, &n.Name, &n.Normalized, &lang, &script, &n.NameKind,
			&isPreferred, &isOfficial, &validFrom, &validTo, &source); err != nil {
			return nil, err
		}
		n.Lang = lang.String
		n.Script = script.String
		n.IsPreferred = isPreferred != 0
		n.IsOfficial = isOfficial != 0
		n.ValidFrom = validFrom.String
		n.ValidTo = validTo.String
		n.Source = source.String
		out = append(out, n)
	}
	return out, rows.Err()
}

func loadExternalIDs(db *crawlerdb.DB) ([]ExternalID, error) {
	rows, err := db.SQL().Query(`SELECT place_id, source, ext_id FROM place_external_ids`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExternalID
	for rows.Next() {
		var e ExternalID
		if err := rows.Scan(&e.PlaceID, &e.Source, &e.ExtID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func loadExclusions(db *crawlerdb.DB) ([]Exclusion, error) {
	rows, err := db.SQL().Query(`
		SELECT trigger_word, exclusion_phrase, exclusion_type FROM place_exclusions WHERE active=1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Exclusion
	for rows.Next() {
		var e Exclusion
		if err := rows.Scan(&e.TriggerWord, &e.ExclusionPhrase, &e.ExclusionType); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

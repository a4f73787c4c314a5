package places

import (
	"database/sql"
	"fmt"
	"math"

	"github.com/newsgrid/crawler/cmn"
	crawlerdb "github.com/newsgrid/crawler/db"
	"github.com/pkg/errors"
)

// DupReason ranks the five duplicate-candidate rules in
// merge priority order: a > b > c > d > e.
type DupReason int

const (
	DupNone DupReason = iota
	DupWikidataQID
	DupOSM
	DupExternalID
	DupNameCountryKind
	DupCoordProximity
)

// DupGroup is a candidate duplicate pair found by FindDuplicates, ranked
// by the strongest reason they match on.
type DupGroup struct {
	A, B   int64
	Reason DupReason
}

// FindDuplicates scans the given places for duplicate-candidate pairs per
// the five rules, returning the strongest-matching reason for
// each pair (a pair matching multiple rules is reported once, at its
// highest-priority reason). externalIDsByPlace supplies rule (c): two
// places sharing a (source, ext_id) pair from a known external source
// (geonames, osm, wikidata) in place_external_ids.
func FindDuplicates(places []Place, namesByID map[int64][]Name, externalIDsByPlace map[int64][]ExternalID, coordProximityDeg float64) []DupGroup {
	n := len(places)
	groups := make(map[[2]int64]DupReason)

	record := func(a, b int64, reason DupReason) {
		if a == b {
			return
		}
		key := [2]int64{a, b}
		if a > b {
			key = [2]int64{b, a}
		}
		if existing, ok := groups[key]; !ok || reason < existing {
			groups[key] = reason
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			p1, p2 := places[i], places[j]
			switch {
			case p1.WikidataQID != "" && p1.WikidataQID == p2.WikidataQID:
				record(p1.ID, p2.ID, DupWikidataQID)
			case p1.OSMType != "" && p1.OSMType == p2.OSMType && p1.OSMID != "" && p1.OSMID == p2.OSMID:
				record(p1.ID, p2.ID, DupOSM)
			case sameExternalID(p1, p2, externalIDsByPlace):
				record(p1.ID, p2.ID, DupExternalID)
			case sameNormalizedNameCountryKind(p1, p2, namesByID):
				record(p1.ID, p2.ID, DupNameCountryKind)
			case p1.Kind == p2.Kind && p1.CountryCode == p2.CountryCode && withinProximity(p1, p2, coordProximityDeg):
				record(p1.ID, p2.ID, DupCoordProximity)
			}
		}
	}

	out := make([]DupGroup, 0, len(groups))
	for key, reason := range groups {
		out = append(out, DupGroup{A: key[0], B: key[1], Reason: reason})
	}
	return out
}

// sameExternalID reports whether p1 and p2 share a (source, ext_id) pair
// from a known external source (geonames, osm, wikidata).
func sameExternalID(p1, p2 Place, externalIDsByPlace map[int64][]ExternalID) bool {
	if externalIDsByPlace == nil {
		return false
	}
	for _, e1 := range externalIDsByPlace[p1.ID] {
		for _, e2 := range externalIDsByPlace[p2.ID] {
			if e1.Source != "" && e1.Source == e2.Source && e1.ExtID != "" && e1.ExtID == e2.ExtID {
				return true
			}
		}
	}
	return false
}

func sameNormalizedNameCountryKind(p1, p2 Place, namesByID map[int64][]Name) bool {
	if p1.CountryCode != p2.CountryCode || p1.Kind != p2.Kind {
		return false
	}
	n1 := canonicalNormalizedName(p1, namesByID)
	n2 := canonicalNormalizedName(p2, namesByID)
	return n1 != "" && n1 == n2
}

func canonicalNormalizedName(p Place, namesByID map[int64][]Name) string {
	for _, n := range namesByID[p.ID] {
		if n.ID == p.CanonicalNameID {
			return n.Normalized
		}
	}
	for _, n := range namesByID[p.ID] {
		return n.Normalized
	}
	return ""
}

func withinProximity(p1, p2 Place, maxDeg float64) bool {
	if maxDeg <= 0 {
		maxDeg = 0.05
	}
	if (p1.Lat == 0 && p1.Lng == 0) || (p2.Lat == 0 && p2.Lng == 0) {
		return false
	}
	dLat := p1.Lat - p2.Lat
	dLng := p1.Lng - p2.Lng
	dist := math.Sqrt(dLat*dLat + dLng*dLng)
	return dist <= maxDeg
}

// GetOrCreateByQID resolves the concurrent-ingestion race on a Wikidata
// QID. The lookup+insert happens inside a
// single transaction keyed by places.wikidata_qid's UNIQUE constraint -
// a single get-or-create primitive. If a row already
// exists, missing fields on it are filled in from candidate (deterministic
// merge, the Place invariant).
func GetOrCreateByQID(db *crawlerdb.DB, candidate Place) (id int64, created bool, err error) {
	if candidate.WikidataQID == "" {
		return 0, false, errors.New("places: GetOrCreateByQID requires a wikidata_qid")
	}

	tx, err := db.SQL().Begin()
	if err != nil {
		return 0, false, errors.Wrap(err, "places: begin get-or-create")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	row := tx.QueryRow(`
		SELECT id, place_type, country_code, osm_type, osm_id, lat, lng, population, timezone, extra_json
		FROM places WHERE wikidata_qid=?`, candidate.WikidataQID)
	var existing Place
	var placeType, countryCode, osmType, osmID, timezone, extra sql.NullString
	var lat, lng sql.NullFloat64
	var population sql.NullInt64
	scanErr := row.Scan(&existing.ID, &placeType, &countryCode, &osmType, &osmID, &lat, &lng, &population, &timezone, &extra)

	if scanErr == nil {
		existing.PlaceType, existing.CountryCode = placeType.String, countryCode.String
		existing.OSMType, existing.OSMID = osmType.String, osmID.String
		existing.Lat, existing.Lng = lat.Float64, lng.Float64
		existing.Population, existing.Timezone = population.Int64, timezone.String
		existing.ExtraJSON = extra.String

		merged := mergeFields(existing, candidate)
		if _, err = tx.Exec(`
			UPDATE places SET place_type=?, country_code=?, osm_type=?, osm_id=?,
				lat=?, lng=?, population=?, timezone=?, extra_json=? WHERE id=?`,
			merged.PlaceType, merged.CountryCode, merged.OSMType, merged.OSMID,
			merged.Lat, merged.Lng, merged.Population, merged.Timezone, merged.ExtraJSON, existing.ID); err != nil {
			return 0, false, errors.Wrap(err, "places: merge existing")
		}
		if err = upsertExternalIDs(tx, existing.ID, candidate.ExternalIDs); err != nil {
			return 0, false, err
		}
		if err = tx.Commit(); err != nil {
			return 0, false, err
		}
		return existing.ID, false, nil
	}
	if !errors.Is(scanErr, sql.ErrNoRows) {
		err = scanErr
		return 0, false, errors.Wrap(err, "places: lookup by qid")
	}

	res, iErr := tx.Exec(`
		INSERT INTO places(kind, place_type, country_code, wikidata_qid, osm_type, osm_id,
			lat, lng, population, timezone, status, extra_json)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		candidate.Kind, candidate.PlaceType, candidate.CountryCode, candidate.WikidataQID,
		candidate.OSMType, candidate.OSMID, candidate.Lat, candidate.Lng, candidate.Population,
		candidate.Timezone, firstNonEmpty(candidate.Status, "active"), candidate.ExtraJSON)
	if iErr != nil {
		err = iErr
		return 0, false, errors.Wrap(err, "places: insert candidate")
	}
	newID, iErr := res.LastInsertId()
	if iErr != nil {
		err = iErr
		return 0, false, err
	}
	if err = upsertExternalIDs(tx, newID, candidate.ExternalIDs); err != nil {
		return 0, false, err
	}
	if err = tx.Commit(); err != nil {
		return 0, false, err
	}
	return newID, true, nil
}

// upsertExternalIDs records candidate's external-source ids against placeID
// in place_external_ids, the table FindDuplicates' rule (c) reads back
// through Gazetteer.FindDuplicateCandidates. A (source, ext_id) pair
// already claimed by another place (the table's UNIQUE constraint) is left
// alone rather than reassigned.
func upsertExternalIDs(tx *sql.Tx, placeID int64, ids []ExternalID) error {
	for _, e := range ids {
		if e.Source == "" || e.ExtID == "" {
			continue
		}
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO place_external_ids(place_id, source, ext_id) VALUES (?,?,?)`,
			placeID, e.Source, e.ExtID); err != nil {
			return errors.Wrap(err, "places: upsert external id")
		}
	}
	return nil
}

// mergeFields fills unset fields on existing from candidate, the
// deterministic merge the Place invariant requires.
func mergeFields(existing, candidate Place) Place {
	out := existing
	if out.PlaceType == "" {
		out.PlaceType = candidate.PlaceType
	}
	if out.CountryCode == "" {
		out.CountryCode = candidate.CountryCode
	}
	if out.OSMType == "" {
		out.OSMType = candidate.OSMType
	}
	if out.OSMID == "" {
		out.OSMID = candidate.OSMID
	}
	if out.Lat == 0 && out.Lng == 0 {
		out.Lat, out.Lng = candidate.Lat, candidate.Lng
	}
	if out.Population == 0 {
		out.Population = candidate.Population
	}
	if out.Timezone == "" {
		out.Timezone = candidate.Timezone
	}
	if out.ExtraJSON == "" {
		out.ExtraJSON = candidate.ExtraJSON
	}
	return out
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// ReportDuplicates runs FindDuplicateCandidates against gaz and records
// each candidate pair as a crawl_problems row. jobID must name an
// existing crawl_jobs row, since crawl_problems.job_id is a foreign key;
// callers without a running job yet should hold off until one starts.
func ReportDuplicates(db *crawlerdb.DB, gaz *Gazetteer, jobID string) (int, error) {
	groups := gaz.FindDuplicateCandidates(gaz.Config().CoordProximityDeg)
	for _, g := range groups {
		target := fmt.Sprintf("%d,%d", g.A, g.B)
		msg := fmt.Sprintf("candidate duplicate places (reason=%d)", g.Reason)
		if err := recordProblem(db, jobID, target, msg); err != nil {
			return len(groups), err
		}
	}
	return len(groups), nil
}

// recordProblem logs a Problem for duplicate-resolution ambiguity: conflicting evidence during ingestion is logged, never merged.
func recordProblem(db *crawlerdb.DB, jobID, target, message string) error {
	_, err := db.SQL().Exec(`
		INSERT INTO crawl_problems(job_id, ts, kind, scope, target, message, details)
		VALUES (?,?,?,?,?,?,?)`,
		jobID, cmn.NowString(), cmn.ErrKindDuplicateAmbig, "gazetteer", target, message, "")
	return err
}

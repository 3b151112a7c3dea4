// Package replan implements the rain-contingency replanning engine: the
// candidate collector, the indoor-alternative finder, the proposal builder,
// and the selection applier.
//
// The pipeline favors partial success everywhere. A venue whose details
// cannot be fetched degrades to its search summary; a candidate whose
// location cannot be resolved is dropped from the proposal; a center string
// that does not parse yields an empty alternative list. One stop's
// misfortune never aborts the rest of the itinerary.
package replan

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/raincheck/raincheck/internal/classify"
	"github.com/raincheck/raincheck/internal/geo"
	"github.com/raincheck/raincheck/internal/places"
	"github.com/raincheck/raincheck/pkg/models"
)

// KST is the fixed itinerary timezone. Calendar dates and proposal
// timestamps are computed in it.
var KST = time.FixedZone("KST", 9*60*60)

// Defaults applied when a request leaves the search knobs unset.
const (
	DefaultRadiusKM = 5.0
	DefaultTopK     = 3
)

// Engine wires the classifier and the place directory into the replanning
// pipeline.
type Engine struct {
	dir        places.Directory
	classifier classify.Classifier
}

// New creates an engine.
func New(dir places.Directory, classifier classify.Classifier) *Engine {
	return &Engine{dir: dir, classifier: classifier}
}

// ── Candidate collector ──────────────────────────────────────

// Collect walks the itinerary in display order and splits it into
// replacement candidates and kept stops. Not rainy is a short-circuit:
// every stop is kept with reason not_rainy and no directory calls happen.
//
// Under rain, protection wins over everything, even for stops whose date is
// outside the rainy set. The outdoor check only runs for stops whose date
// applies, so dry-day stops cost no lookups.
func (e *Engine) Collect(ctx context.Context, itin *models.Itinerary, isRainy bool, rainyDates, protectTitles []string) ([]models.Candidate, []models.KeptRecord) {
	if !isRainy {
		kept := make([]models.KeptRecord, 0, len(itin.Items))
		for _, item := range itin.Items {
			kept = append(kept, models.KeptRecord{Index: item.Index, Title: item.Title, Reason: models.ReasonNotRainy})
		}
		return nil, kept
	}

	protect := make(map[string]bool, len(protectTitles))
	for _, t := range protectTitles {
		protect[t] = true
	}
	rainy := make(map[string]bool, len(rainyDates))
	for _, d := range rainyDates {
		rainy[d] = true
	}

	var candidates []models.Candidate
	var kept []models.KeptRecord
	for i, item := range itin.Items {
		date := KSTDate(item.StartTime)
		applyToday := len(rainy) == 0 || rainy[date]

		if prot, reason := e.classifier.Protection(item, i == 0, protect); prot {
			kept = append(kept, models.KeptRecord{Index: item.Index, Title: item.Title, Reason: reason})
			continue
		}
		if applyToday && e.classifier.Category(ctx, item) == classify.CategoryOutdoor {
			candidates = append(candidates, models.Candidate{
				Index:  item.Index,
				Title:  item.Title,
				Date:   date,
				Reason: models.ReasonOutdoorCandidate,
			})
		} else {
			kept = append(kept, models.KeptRecord{Index: item.Index, Title: item.Title, Reason: models.ReasonKeptIndoor})
		}
	}
	return candidates, kept
}

// KSTDate extracts the KST calendar date (YYYY-MM-DD) from an ISO-8601
// timestamp. Naive timestamps are assumed to already be KST. Strings that
// do not parse degrade to their first 10 characters when long enough, which
// keeps date-keyed rain filtering working on sloppy client input.
func KSTDate(raw string) string {
	if raw == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(KST).Format("2006-01-02")
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, raw, KST); err == nil {
			return t.Format("2006-01-02")
		}
	}
	if len(raw) >= 10 {
		return raw[:10]
	}
	return ""
}

// ── Alternative finder ───────────────────────────────────────

// FindOptions bound one alternative search.
type FindOptions struct {
	Keywords      []string // nil → classify.DefaultIndoorKeywords
	RadiusKM      float64
	AvoidTitles   map[string]bool
	TopK          int
	MaxDistanceKM *float64
}

// FindAlternatives queries the directory around center ("lat,lng") for each
// indoor keyword, dedupes by venue name across keywords (first hit wins),
// skips titles already in the plan, and returns the topK nearest. A center
// that does not parse yields an empty list, not an error.
func (e *Engine) FindAlternatives(ctx context.Context, center string, opts FindOptions) []models.Alternative {
	centerLat, centerLng, ok := geo.ParseCoords(center)
	if !ok {
		return nil
	}
	keywords := opts.Keywords
	if len(keywords) == 0 {
		keywords = classify.DefaultIndoorKeywords
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	radiusM := int(opts.RadiusKM * 1000)

	var results []models.Alternative
	seen := make(map[string]bool)
	for _, kw := range keywords {
		summaries, err := e.dir.NearbySearch(ctx, center, kw, radiusM)
		if err != nil {
			log.Debug().Err(err).Str("keyword", kw).Msg("Nearby search failed, skipping keyword")
			continue
		}
		for _, s := range summaries {
			name := s.Name
			if name == "" {
				name = "정보 없음"
			}
			if opts.AvoidTitles[name] || seen[name] {
				continue
			}
			if s.Lat == nil || s.Lng == nil {
				continue
			}

			title := name
			address := s.Vicinity
			rating := s.Rating
			if s.PlaceID != "" {
				// Detail lookups are best-effort; the summary row is
				// enough to propose the venue.
				if det, err := e.dir.Details(ctx, s.PlaceID); err == nil && det != nil {
					if det.Name != "" {
						title = det.Name
					}
					if det.FormattedAddress != "" {
						address = det.FormattedAddress
					}
					if det.Rating != nil {
						rating = det.Rating
					}
				}
			}
			if address == "" {
				address = "정보 없음"
			}

			dist := geo.DistanceKM(centerLat, centerLng, *s.Lat, *s.Lng)
			if opts.MaxDistanceKM != nil && dist > *opts.MaxDistanceKM {
				continue
			}
			results = append(results, models.Alternative{
				Title:      title,
				Address:    address,
				PlaceID:    s.PlaceID,
				Lat:        *s.Lat,
				Lng:        *s.Lng,
				Rating:     rating,
				Type:       models.TypePlace,
				DistanceKM: geo.RoundKM(dist),
			})
			seen[name] = true
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].DistanceKM < results[j].DistanceKM
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// ── Proposal builder ─────────────────────────────────────────

// ProposalOptions parameterize one replanning pass.
type ProposalOptions struct {
	IsRainy        bool
	CenterCoords   string // fallback center when a stop resolves nowhere
	RainyDates     []string
	ProtectTitles  []string
	RadiusKM       float64
	IndoorKeywords []string
	TopK           int
	MaxDistanceKM  *float64
}

// BuildProposal runs the collector, resolves each candidate's own center
// (its coordinates, then its place id, then its title, then the fallback),
// and gathers ranked indoor alternatives per candidate. The search is
// anchored to the stop being replaced: a substitute has to be convenient to
// that stop, not to the trip's starting point.
func (e *Engine) BuildProposal(ctx context.Context, itin *models.Itinerary, opts ProposalOptions) *models.Proposal {
	if opts.RadiusKM <= 0 {
		opts.RadiusKM = DefaultRadiusKM
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}

	candidates, kept := e.Collect(ctx, itin, opts.IsRainy, opts.RainyDates, opts.ProtectTitles)

	avoid := itin.Titles()
	proposalCandidates := make([]models.ProposalCandidate, 0, len(candidates))
	for _, cand := range candidates {
		original, ok := itemByIndex(itin, cand.Index)
		if !ok {
			continue
		}
		center, ok := e.resolveItemCenter(ctx, original, opts.CenterCoords)
		if !ok {
			log.Debug().Int("index", cand.Index).Str("title", cand.Title).Msg("No coordinates for candidate, dropping it")
			continue
		}
		alts := e.FindAlternatives(ctx, center, FindOptions{
			Keywords:      opts.IndoorKeywords,
			RadiusKM:      opts.RadiusKM,
			AvoidTitles:   avoid,
			TopK:          opts.TopK,
			MaxDistanceKM: opts.MaxDistanceKM,
		})
		proposalCandidates = append(proposalCandidates, models.ProposalCandidate{
			Index:        cand.Index,
			Original:     original.Clone(),
			Alternatives: alts,
		})
	}

	dates := append([]string(nil), opts.RainyDates...)
	if dates == nil {
		dates = []string{}
	}
	sort.Strings(dates)

	return &models.Proposal{
		Meta: models.ProposalMeta{
			GeneratedAt:          time.Now().In(KST).Format(time.RFC3339),
			IsRainy:              opts.IsRainy,
			RainyDates:           dates,
			FallbackCenterCoords: opts.CenterCoords,
			RadiusKMForAlt:       opts.RadiusKM,
			TopK:                 opts.TopK,
			MaxDistanceKM:        opts.MaxDistanceKM,
		},
		Candidates: proposalCandidates,
		Kept:       kept,
	}
}

// resolveItemCenter finds the search center for a stop. Every lookup is
// best-effort; only a fully unresolvable stop reports ok=false.
func (e *Engine) resolveItemCenter(ctx context.Context, item models.ItineraryItem, fallback string) (string, bool) {
	if item.Lat != nil && item.Lng != nil {
		return geo.FormatCoords(*item.Lat, *item.Lng), true
	}
	if item.PlaceID != "" {
		if coords, err := e.dir.Geocode(ctx, item.PlaceID); err == nil && coords != "" {
			return coords, true
		}
	}
	if item.Title != "" {
		if coords, err := places.CoordsFromTitle(ctx, e.dir, item.Title); err == nil && coords != "" {
			return coords, true
		}
	}
	if fallback != "" {
		return fallback, true
	}
	return "", false
}

func itemByIndex(itin *models.Itinerary, index int) (models.ItineraryItem, bool) {
	for _, item := range itin.Items {
		if item.Index == index {
			return item, true
		}
	}
	return models.ItineraryItem{}, false
}

// normalizedType lowercases a stop's type tag for set checks.
func normalizedType(item models.ItineraryItem) string {
	return strings.ToLower(strings.TrimSpace(string(item.Type)))
}

package models

import (
	"strings"
	"time"
)

// ── Itinerary ────────────────────────────────────────────────

// ItemType is the closed set of stop categories. Incoming plans may carry
// arbitrary strings; NormalizeType folds unknown values to TypePlace.
type ItemType string

const (
	// TypeFestival is the event anchor — always the first stop, never replaced.
	TypeFestival   ItemType = "festival"
	TypePlace      ItemType = "place"
	TypeCafe       ItemType = "cafe"
	TypeRestaurant ItemType = "restaurant"
	TypeParking    ItemType = "parking"
)

// NormalizeType lowercases and validates a type tag.
func NormalizeType(s string) ItemType {
	switch ItemType(strings.ToLower(strings.TrimSpace(s))) {
	case TypeFestival:
		return TypeFestival
	case TypeCafe:
		return TypeCafe
	case TypeRestaurant:
		return TypeRestaurant
	case TypeParking:
		return TypeParking
	default:
		return TypePlace
	}
}

// ItineraryItem is one planned stop. Index is 1-based and dense within an
// itinerary; it is renumbered after every mutation.
type ItineraryItem struct {
	Index       int      `json:"index"`
	Type        ItemType `json:"type"`
	Title       string   `json:"title"`
	StartTime   string   `json:"start_time,omitempty"` // ISO-8601, KST in practice
	EndTime     string   `json:"end_time,omitempty"`
	Description string   `json:"description,omitempty"`
	Address     string   `json:"address,omitempty"` // filled by planner enrichment
	PlaceID     string   `json:"place_id,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lng         *float64 `json:"lng,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
}

// Clone returns a copy with its own optional-field pointers.
func (i ItineraryItem) Clone() ItineraryItem {
	out := i
	out.Lat = cloneFloat(i.Lat)
	out.Lng = cloneFloat(i.Lng)
	out.Rating = cloneFloat(i.Rating)
	return out
}

// Itinerary is an ordered list of stops plus aggregate totals (cost and
// travel-time estimates) that every transformation carries through unchanged.
type Itinerary struct {
	Items  []ItineraryItem `json:"itinerary"`
	Totals map[string]any  `json:"totals,omitempty"`
}

// Clone returns a deep copy. Transition history does not need this — the
// applier always builds fresh item slices, so plans are never mutated in
// place once installed — but the original plan captured at session creation
// must survive anything the caller does with its request payload afterwards.
func (it *Itinerary) Clone() *Itinerary {
	if it == nil {
		return nil
	}
	out := &Itinerary{Items: make([]ItineraryItem, len(it.Items))}
	for i, item := range it.Items {
		out.Items[i] = item.Clone()
	}
	if it.Totals != nil {
		out.Totals = make(map[string]any, len(it.Totals))
		for k, v := range it.Totals {
			out.Totals[k] = v
		}
	}
	return out
}

// Titles returns the set of stop titles, used to keep alternatives from
// colliding with stops already in the plan.
func (it *Itinerary) Titles() map[string]bool {
	set := make(map[string]bool, len(it.Items))
	for _, item := range it.Items {
		if item.Title != "" {
			set[item.Title] = true
		}
	}
	return set
}

// ── Rain proposal ────────────────────────────────────────────

// Reason strings recorded on kept and candidate entries. These are part of
// the wire contract; clients branch on them.
const (
	ReasonNotRainy         = "not_rainy"
	ReasonProtectedFirst   = "protected:first_item"
	ReasonKeptIndoor       = "kept:not_applicable_or_indoor"
	ReasonOutdoorCandidate = "rain_outdoor_candidate"
)

// Candidate flags a stop for possible replacement on a rainy date.
type Candidate struct {
	Index  int    `json:"index"`
	Title  string `json:"title"`
	Date   string `json:"date,omitempty"`
	Reason string `json:"reason"`
}

// KeptRecord explains why a stop was excluded from replacement.
type KeptRecord struct {
	Index  int    `json:"index"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// Alternative is a ranked substitute venue. DistanceKM is measured from the
// replaced stop's own resolved coordinates, not a shared trip center.
type Alternative struct {
	Title      string   `json:"title"`
	Address    string   `json:"address"`
	PlaceID    string   `json:"place_id,omitempty"`
	Lat        float64  `json:"lat"`
	Lng        float64  `json:"lng"`
	Rating     *float64 `json:"rating,omitempty"`
	Type       ItemType `json:"type"`
	DistanceKM float64  `json:"distance_km"`
}

// ProposalMeta records the parameters a proposal was generated under.
type ProposalMeta struct {
	GeneratedAt          string   `json:"generated_at"`
	IsRainy              bool     `json:"is_rainy"`
	RainyDates           []string `json:"rainy_dates"`
	FallbackCenterCoords string   `json:"fallback_center_coords,omitempty"`
	RadiusKMForAlt       float64  `json:"radius_km_for_alt"`
	TopK                 int      `json:"top_k"`
	MaxDistanceKM        *float64 `json:"max_distance_km,omitempty"`
}

// ProposalCandidate pairs a replaceable stop with its ranked alternatives.
type ProposalCandidate struct {
	Index        int           `json:"index"`
	Original     ItineraryItem `json:"original"`
	Alternatives []Alternative `json:"alternatives"`
}

// Proposal is the full output of one replanning pass: which stops could be
// swapped, what to swap them with, and why the rest stay.
type Proposal struct {
	Meta       ProposalMeta        `json:"meta"`
	Candidates []ProposalCandidate `json:"candidates"`
	Kept       []KeptRecord        `json:"kept"`
}

// Clone returns a deep copy.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	out := &Proposal{Meta: p.Meta}
	if p.Meta.RainyDates != nil {
		out.Meta.RainyDates = append([]string(nil), p.Meta.RainyDates...)
	}
	out.Meta.MaxDistanceKM = cloneFloat(p.Meta.MaxDistanceKM)
	if p.Candidates != nil {
		out.Candidates = make([]ProposalCandidate, len(p.Candidates))
		for i, c := range p.Candidates {
			cc := ProposalCandidate{Index: c.Index, Original: c.Original.Clone()}
			if c.Alternatives != nil {
				cc.Alternatives = make([]Alternative, len(c.Alternatives))
				for j, a := range c.Alternatives {
					a.Rating = cloneFloat(a.Rating)
					cc.Alternatives[j] = a
				}
			}
			out.Candidates[i] = cc
		}
	}
	if p.Kept != nil {
		out.Kept = append([]KeptRecord(nil), p.Kept...)
	}
	return out
}

// ── Selections ───────────────────────────────────────────────

// Choice addresses a stop by its itinerary index and picks an alternative by
// position within that candidate's list. A nil or negative Choice keeps the
// original stop.
type Choice struct {
	Index  int  `json:"index"`
	Choice *int `json:"choice"`
}

// Selection addresses a proposal candidate by its 0-based position in the
// candidates list, the shape the intent resolver emits.
type Selection struct {
	CandidateIndex   int `json:"candidate_index"`
	AlternativeIndex int `json:"alternative_index"`
}

// ── Session ──────────────────────────────────────────────────

// Session is the server-held replanning state for one plan: the current
// itinerary, the itinerary captured at the first check, the last proposal,
// and the undo stack. Version increments on every transition so slow paths
// can detect that the state moved under them. The session store exclusively
// owns these records.
type Session struct {
	ID           string       `json:"id"`
	Plan         *Itinerary   `json:"plan"`
	OriginalPlan *Itinerary   `json:"original_plan"`
	Proposal     *Proposal    `json:"proposal,omitempty"`
	History      []*Itinerary `json:"history,omitempty"`
	Version      int          `json:"version"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Clone returns a deep copy. Stores hand out clones so a caller can never
// reach into state another request is reading.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := &Session{
		ID:           s.ID,
		Plan:         s.Plan.Clone(),
		OriginalPlan: s.OriginalPlan.Clone(),
		Proposal:     s.Proposal.Clone(),
		Version:      s.Version,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	if s.History != nil {
		out.History = make([]*Itinerary, len(s.History))
		for i, h := range s.History {
			out.History[i] = h.Clone()
		}
	}
	return out
}

// ── Pointer helpers ──────────────────────────────────────────

// Float returns a pointer to v, for optional numeric fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for optional choice fields.
func Int(v int) *int { return &v }

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

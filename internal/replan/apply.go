package replan

import (
	"github.com/raincheck/raincheck/pkg/models"
)

// ApplyChoices merges picked alternatives into a new itinerary. A nil,
// negative, or out-of-range choice keeps the original stop, as does an
// index the proposal never offered alternatives for. The result is
// renumbered 1..N and totals are carried over unchanged.
//
// Pure: inputs are never mutated and the returned items are fresh copies.
// The session machine relies on that to keep history snapshots by
// reference.
func ApplyChoices(itin *models.Itinerary, proposal *models.Proposal, choices []models.Choice) *models.Itinerary {
	choiceByIndex := make(map[int]*int, len(choices))
	for _, c := range choices {
		choiceByIndex[c.Index] = c.Choice
	}
	altsByIndex := make(map[int][]models.Alternative)
	if proposal != nil {
		for _, cand := range proposal.Candidates {
			altsByIndex[cand.Index] = cand.Alternatives
		}
	}

	out := &models.Itinerary{Items: make([]models.ItineraryItem, 0, len(itin.Items))}
	if itin.Totals != nil {
		out.Totals = make(map[string]any, len(itin.Totals))
		for k, v := range itin.Totals {
			out.Totals[k] = v
		}
	}

	for _, item := range itin.Items {
		choice, chosen := choiceByIndex[item.Index]
		alts, offered := altsByIndex[item.Index]
		if !chosen || !offered || choice == nil || *choice < 0 || *choice >= len(alts) {
			out.Items = append(out.Items, item.Clone())
			continue
		}

		alt := alts[*choice]
		replaced := item.Clone()
		// Meal stops keep their slot semantics even when swapped for an
		// indoor venue.
		if ty := normalizedType(item); ty != "cafe" && ty != "restaurant" {
			if alt.Type != "" {
				replaced.Type = alt.Type
			} else {
				replaced.Type = models.TypePlace
			}
		}
		replaced.Title = alt.Title
		replaced.Description = "우천 대안 적용 · 주소: " + alt.Address
		replaced.PlaceID = alt.PlaceID
		replaced.Lat = models.Float(alt.Lat)
		replaced.Lng = models.Float(alt.Lng)
		if alt.Rating != nil {
			replaced.Rating = models.Float(*alt.Rating)
		} else {
			replaced.Rating = nil
		}
		out.Items = append(out.Items, replaced)
	}

	Renumber(out.Items)
	return out
}

// Renumber rewrites indices as a dense 1..N sequence in display order.
func Renumber(items []models.ItineraryItem) {
	for i := range items {
		items[i].Index = i + 1
	}
}

package replan_test

import (
	"context"
	"testing"
	"time"

	"github.com/raincheck/raincheck/internal/classify"
	"github.com/raincheck/raincheck/internal/places"
	"github.com/raincheck/raincheck/internal/replan"
	"github.com/raincheck/raincheck/pkg/models"
)

type fakeDirectory struct {
	ids        map[string]string
	geocodes   map[string]string
	details    map[string]*places.Details
	detailsErr map[string]error
	nearby     map[string][]places.Summary
	nearbyErr  map[string]error
}

func (f *fakeDirectory) FindPlaceID(_ context.Context, query string) (string, error) {
	if id, ok := f.ids[query]; ok {
		return id, nil
	}
	return "", &places.LookupError{Op: "findplace", Query: query, Status: "ZERO_RESULTS"}
}

func (f *fakeDirectory) Geocode(_ context.Context, placeID string) (string, error) {
	if c, ok := f.geocodes[placeID]; ok {
		return c, nil
	}
	return "", &places.LookupError{Op: "geocode", Query: placeID, Status: "ZERO_RESULTS"}
}

func (f *fakeDirectory) Details(_ context.Context, placeID string) (*places.Details, error) {
	if err, ok := f.detailsErr[placeID]; ok {
		return nil, err
	}
	if d, ok := f.details[placeID]; ok {
		return d, nil
	}
	return nil, &places.LookupError{Op: "details", Query: placeID, Status: "NOT_FOUND"}
}

func (f *fakeDirectory) NearbySearch(_ context.Context, _, keyword string, _ int) ([]places.Summary, error) {
	if err, ok := f.nearbyErr[keyword]; ok {
		return nil, err
	}
	return f.nearby[keyword], nil
}

func (f *fakeDirectory) ReverseGeocode(_ context.Context, _, _ float64) (string, error) {
	return "", &places.LookupError{Op: "revgeocode", Status: "ZERO_RESULTS"}
}

func newTestEngine(dir *fakeDirectory) *replan.Engine {
	if dir == nil {
		dir = &fakeDirectory{}
	}
	return replan.New(dir, classify.NewKeywordClassifier(dir))
}

func TestKSTDate(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"2025-08-20T11:00:00+09:00", "2025-08-20"},
		{"2025-08-19T23:30:00Z", "2025-08-20"}, // UTC evening rolls into the next KST day
		{"2025-08-20T09:00:00", "2025-08-20"},  // naive timestamps are already KST
		{"2025-08-20 09:00:00", "2025-08-20"},
		{"2025-08-20", "2025-08-20"},
		{"2025-08-20T이상한값", "2025-08-20"}, // unparseable but long enough
		{"junk", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := replan.KSTDate(tc.in); got != tc.want {
			t.Errorf("KSTDate(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCollectNotRainy(t *testing.T) {
	e := newTestEngine(nil)
	itin := &models.Itinerary{Items: []models.ItineraryItem{
		{Index: 1, Type: models.TypeFestival, Title: "강릉단오제"},
		{Index: 2, Type: models.TypePlace, Title: "경포호수공원"},
		{Index: 3, Type: models.TypeCafe, Title: "테라로사"},
	}}

	candidates, kept := e.Collect(context.Background(), itin, false, nil, nil)
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates without rain, got %d", len(candidates))
	}
	if len(kept) != 3 {
		t.Fatalf("expected all 3 stops kept, got %d", len(kept))
	}
	for i, k := range kept {
		if k.Reason != models.ReasonNotRainy {
			t.Errorf("kept[%d] reason = %q, want %q", i, k.Reason, models.ReasonNotRainy)
		}
		if k.Index != i+1 {
			t.Errorf("kept[%d] index = %d, want %d", i, k.Index, i+1)
		}
	}
}

func TestCollectFestivalThenPark(t *testing.T) {
	e := newTestEngine(nil)
	itin := &models.Itinerary{Items: []models.ItineraryItem{
		{Index: 1, Type: models.TypeFestival, Title: "강릉단오제", StartTime: "2025-08-20T10:00:00+09:00"},
		{Index: 2, Type: models.TypePlace, Title: "경포호수공원", StartTime: "2025-08-20T11:00:00+09:00"},
	}}

	candidates, kept := e.Collect(context.Background(), itin, true, []string{"2025-08-20"}, nil)
	if len(candidates) != 1 {
		t.Fatalf("expected exactly the park as candidate, got %d candidates", len(candidates))
	}
	c := candidates[0]
	if c.Index != 2 || c.Date != "2025-08-20" || c.Reason != models.ReasonOutdoorCandidate {
		t.Errorf("candidate = %+v", c)
	}
	if len(kept) != 1 || kept[0].Index != 1 || kept[0].Reason != models.ReasonProtectedFirst {
		t.Errorf("kept = %+v, want festival anchored by first-item protection", kept)
	}
}

func TestCollectRespectsRainyDates(t *testing.T) {
	e := newTestEngine(nil)
	itin := &models.Itinerary{Items: []models.ItineraryItem{
		{Index: 1, Type: models.TypeFestival, Title: "강릉단오제", StartTime: "2025-08-20T10:00:00+09:00"},
		{Index: 2, Type: models.TypePlace, Title: "경포해변", StartTime: "2025-08-20T13:00:00+09:00"},
		{Index: 3, Type: models.TypePlace, Title: "주문진 산책로", StartTime: "2025-08-21T10:00:00+09:00"},
	}}

	candidates, kept := e.Collect(context.Background(), itin, true, []string{"2025-08-20"}, nil)
	if len(candidates) != 1 || candidates[0].Index != 2 {
		t.Fatalf("only the rainy-day beach should be a candidate, got %+v", candidates)
	}
	var dryDay *models.KeptRecord
	for i := range kept {
		if kept[i].Index == 3 {
			dryDay = &kept[i]
		}
	}
	if dryDay == nil {
		t.Fatal("dry-day stop missing from kept records")
	}
	if dryDay.Reason != models.ReasonKeptIndoor {
		t.Errorf("dry-day stop reason = %q, want %q", dryDay.Reason, models.ReasonKeptIndoor)
	}
}

func TestCollectEmptyRainyDatesCoversEveryDay(t *testing.T) {
	e := newTestEngine(nil)
	itin := &models.Itinerary{Items: []models.ItineraryItem{
		{Index: 1, Type: models.TypeFestival, Title: "강릉단오제"},
		{Index: 2, Type: models.TypePlace, Title: "경포호수공원", StartTime: "2025-08-22T11:00:00+09:00"},
	}}

	candidates, _ := e.Collect(context.Background(), itin, true, nil, nil)
	if len(candidates) != 1 || candidates[0].Index != 2 {
		t.Fatalf("empty rainy-date set should apply to every day, got %+v", candidates)
	}
}

func TestCollectProtectionBeatsDateFilter(t *testing.T) {
	e := newTestEngine(nil)
	itin := &models.Itinerary{Items: []models.ItineraryItem{
		{Index: 1, Type: models.TypeFestival, Title: "강릉단오제"},
		{Index: 2, Type: models.TypePlace, Title: "강릉역", StartTime: "2025-08-20T10:00:00+09:00"},
	}}

	// The station's date is dry, but protection reasons still win over the
	// date filter's generic kept reason.
	candidates, kept := e.Collect(context.Background(), itin, true, []string{"2025-08-21"}, nil)
	if len(candidates) != 0 {
		t.Fatalf("unexpected candidates %+v", candidates)
	}
	if len(kept) != 2 || kept[1].Reason != "protected:keyword:역" {
		t.Errorf("kept = %+v, want station protected by keyword", kept)
	}
}

func TestFindAlternativesMalformedCenter(t *testing.T) {
	e := newTestEngine(&fakeDirectory{nearby: map[string][]places.Summary{
		"박물관": {{Name: "참소리박물관", Lat: models.Float(37.78), Lng: models.Float(128.89)}},
	}})
	got := e.FindAlternatives(context.Background(), "중심 좌표 아님", replan.FindOptions{Keywords: []string{"박물관"}, RadiusKM: 5})
	if len(got) != 0 {
		t.Fatalf("malformed center should yield no alternatives, got %d", len(got))
	}
}

func TestFindAlternativesRanksByDistanceAndCaps(t *testing.T) {
	dir := &fakeDirectory{nearby: map[string][]places.Summary{
		"박물관": {
			{Name: "먼 박물관", Vicinity: "사천면", Lat: models.Float(37.79), Lng: models.Float(128.87)},
			{Name: "가까운 박물관", Vicinity: "교동", Lat: models.Float(37.755), Lng: models.Float(128.87)},
			{Name: "중간 박물관", Vicinity: "포남동", Lat: models.Float(37.77), Lng: models.Float(128.87)},
		},
	}}
	e := newTestEngine(dir)

	got := e.FindAlternatives(context.Background(), "37.75,128.87", replan.FindOptions{
		Keywords: []string{"박물관"},
		RadiusKM: 5,
		TopK:     2,
	})
	if len(got) != 2 {
		t.Fatalf("expected top 2 alternatives, got %d", len(got))
	}
	if got[0].Title != "가까운 박물관" || got[1].Title != "중간 박물관" {
		t.Errorf("ranking = [%s, %s]", got[0].Title, got[1].Title)
	}
	if got[0].DistanceKM > got[1].DistanceKM {
		t.Errorf("distances out of order: %v then %v", got[0].DistanceKM, got[1].DistanceKM)
	}
	for _, alt := range got {
		if alt.Type != models.TypePlace {
			t.Errorf("alternative %q type = %q, want place", alt.Title, alt.Type)
		}
	}
}

func TestFindAlternativesSkipsAvoidedAndDuplicates(t *testing.T) {
	dir := &fakeDirectory{nearby: map[string][]places.Summary{
		"박물관": {
			{Name: "경포호수공원", Lat: models.Float(37.76), Lng: models.Float(128.87)},
			{Name: "오죽헌", Lat: models.Float(37.76), Lng: models.Float(128.87)},
		},
		"전시": {
			{Name: "오죽헌", Lat: models.Float(37.77), Lng: models.Float(128.87)},
			{Name: "아르떼뮤지엄", Lat: models.Float(37.77), Lng: models.Float(128.87)},
		},
	}}
	e := newTestEngine(dir)

	got := e.FindAlternatives(context.Background(), "37.75,128.87", replan.FindOptions{
		Keywords:    []string{"박물관", "전시"},
		RadiusKM:    5,
		AvoidTitles: map[string]bool{"경포호수공원": true},
		TopK:        5,
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 alternatives after avoid+dedupe, got %d: %+v", len(got), got)
	}
	if got[0].Title != "오죽헌" || got[1].Title != "아르떼뮤지엄" {
		t.Errorf("alternatives = [%s, %s]", got[0].Title, got[1].Title)
	}
}

func TestFindAlternativesDetailLookup(t *testing.T) {
	dir := &fakeDirectory{
		nearby: map[string][]places.Summary{
			"박물관": {
				{Name: "시립박물관", PlaceID: "pid-full", Vicinity: "근처 어딘가", Rating: models.Float(4.0), Lat: models.Float(37.76), Lng: models.Float(128.87)},
				{Name: "작은전시관", PlaceID: "pid-broken", Vicinity: "교동 123", Lat: models.Float(37.77), Lng: models.Float(128.87)},
			},
		},
		details: map[string]*places.Details{
			"pid-full": {Name: "강릉시립박물관", FormattedAddress: "강원 강릉시 화부산로 40", Rating: models.Float(4.5)},
		},
		detailsErr: map[string]error{
			"pid-broken": &places.LookupError{Op: "details", Query: "pid-broken", Status: "UNKNOWN_ERROR"},
		},
	}
	e := newTestEngine(dir)

	got := e.FindAlternatives(context.Background(), "37.75,128.87", replan.FindOptions{Keywords: []string{"박물관"}, RadiusKM: 5, TopK: 5})
	if len(got) != 2 {
		t.Fatalf("expected 2 alternatives, got %d", len(got))
	}
	full := got[0]
	if full.Title != "강릉시립박물관" || full.Address != "강원 강릉시 화부산로 40" {
		t.Errorf("detail fields not applied: %+v", full)
	}
	if full.Rating == nil || *full.Rating != 4.5 {
		t.Errorf("rating should come from details, got %v", full.Rating)
	}
	degraded := got[1]
	if degraded.Title != "작은전시관" || degraded.Address != "교동 123" {
		t.Errorf("detail failure should fall back to the summary row: %+v", degraded)
	}
}

func TestFindAlternativesMaxDistance(t *testing.T) {
	dir := &fakeDirectory{nearby: map[string][]places.Summary{
		"박물관": {
			{Name: "가까운 곳", Lat: models.Float(37.758), Lng: models.Float(128.87)},
			{Name: "먼 곳", Lat: models.Float(37.83), Lng: models.Float(128.87)},
		},
	}}
	e := newTestEngine(dir)

	got := e.FindAlternatives(context.Background(), "37.75,128.87", replan.FindOptions{
		Keywords:      []string{"박물관"},
		RadiusKM:      10,
		TopK:          5,
		MaxDistanceKM: models.Float(5),
	})
	if len(got) != 1 || got[0].Title != "가까운 곳" {
		t.Fatalf("distance cap should drop the far venue, got %+v", got)
	}
}

func TestFindAlternativesSkipsMissingGeometry(t *testing.T) {
	dir := &fakeDirectory{nearby: map[string][]places.Summary{
		"박물관": {
			{Name: "좌표 없는 곳"},
			{Name: "좌표 있는 곳", Lat: models.Float(37.76), Lng: models.Float(128.87)},
		},
	}}
	e := newTestEngine(dir)

	got := e.FindAlternatives(context.Background(), "37.75,128.87", replan.FindOptions{Keywords: []string{"박물관"}, RadiusKM: 5, TopK: 5})
	if len(got) != 1 || got[0].Title != "좌표 있는 곳" {
		t.Fatalf("venues without geometry must be skipped, got %+v", got)
	}
}

func TestBuildProposal(t *testing.T) {
	dir := &fakeDirectory{
		geocodes: map[string]string{"pid-garden": "37.70,128.80"},
		nearby: map[string][]places.Summary{
			"박물관": {
				{Name: "경포해변", Lat: models.Float(37.795), Lng: models.Float(128.91)}, // collides with a planned stop
				{Name: "참소리축음기박물관", Vicinity: "경포로 393", Lat: models.Float(37.79), Lng: models.Float(128.90)},
			},
		},
	}
	e := replan.New(dir, classify.NewKeywordClassifier(dir))

	itin := &models.Itinerary{
		Items: []models.ItineraryItem{
			{Index: 1, Type: models.TypeFestival, Title: "강릉단오제", StartTime: "2025-08-20T10:00:00+09:00"},
			{Index: 2, Type: models.TypePlace, Title: "경포해변", StartTime: "2025-08-20T13:00:00+09:00", Lat: models.Float(37.80), Lng: models.Float(128.91)},
			{Index: 3, Type: models.TypePlace, Title: "허균허난설헌기념공원 야외정원", StartTime: "2025-08-20T15:00:00+09:00", PlaceID: "pid-garden"},
			{Index: 4, Type: models.TypePlace, Title: "풀리지 않는 공원", StartTime: "2025-08-20T17:00:00+09:00"},
		},
		Totals: map[string]any{"estimated_cost_krw": 50000},
	}

	p := e.BuildProposal(context.Background(), itin, replan.ProposalOptions{
		IsRainy:        true,
		RainyDates:     []string{"2025-08-21", "2025-08-20"},
		IndoorKeywords: []string{"박물관"},
	})

	if len(p.Candidates) != 2 {
		t.Fatalf("expected 2 resolvable candidates, got %d: %+v", len(p.Candidates), p.Candidates)
	}
	if p.Candidates[0].Index != 2 || p.Candidates[1].Index != 3 {
		t.Errorf("candidate indices = %d, %d", p.Candidates[0].Index, p.Candidates[1].Index)
	}
	if p.Candidates[0].Original.Title != "경포해변" {
		t.Errorf("original snapshot title = %q", p.Candidates[0].Original.Title)
	}
	for _, cand := range p.Candidates {
		for _, alt := range cand.Alternatives {
			if alt.Title == "경포해변" {
				t.Errorf("candidate %d offers a venue already in the plan", cand.Index)
			}
		}
	}
	if len(p.Candidates[0].Alternatives) != 1 || p.Candidates[0].Alternatives[0].Title != "참소리축음기박물관" {
		t.Errorf("alternatives = %+v", p.Candidates[0].Alternatives)
	}

	// The unresolvable stop disappears from candidates but its kept record
	// never existed: it was collected, then dropped for want of coordinates.
	for _, k := range p.Kept {
		if k.Index == 4 {
			t.Errorf("stop 4 should not be in kept records, got %+v", k)
		}
	}

	if !p.Meta.IsRainy {
		t.Error("meta should record the rain flag")
	}
	if len(p.Meta.RainyDates) != 2 || p.Meta.RainyDates[0] != "2025-08-20" {
		t.Errorf("rainy dates should be sorted, got %v", p.Meta.RainyDates)
	}
	if p.Meta.RadiusKMForAlt != replan.DefaultRadiusKM || p.Meta.TopK != replan.DefaultTopK {
		t.Errorf("defaults not recorded: radius=%v topK=%d", p.Meta.RadiusKMForAlt, p.Meta.TopK)
	}
	if _, err := time.Parse(time.RFC3339, p.Meta.GeneratedAt); err != nil {
		t.Errorf("generated_at %q is not RFC 3339: %v", p.Meta.GeneratedAt, err)
	}
}

func TestBuildProposalFallbackCenter(t *testing.T) {
	dir := &fakeDirectory{nearby: map[string][]places.Summary{
		"박물관": {{Name: "대체 전시관", Vicinity: "명주동", Lat: models.Float(37.752), Lng: models.Float(128.88)}},
	}}
	e := replan.New(dir, classify.NewKeywordClassifier(dir))

	itin := &models.Itinerary{Items: []models.ItineraryItem{
		{Index: 1, Type: models.TypeFestival, Title: "강릉단오제"},
		{Index: 2, Type: models.TypePlace, Title: "미지의 공원", StartTime: "2025-08-20T11:00:00+09:00"},
	}}

	p := e.BuildProposal(context.Background(), itin, replan.ProposalOptions{
		IsRainy:        true,
		CenterCoords:   "37.75,128.87",
		IndoorKeywords: []string{"박물관"},
	})
	if len(p.Candidates) != 1 {
		t.Fatalf("fallback center should keep the candidate alive, got %d", len(p.Candidates))
	}
	if len(p.Candidates[0].Alternatives) != 1 {
		t.Errorf("alternatives = %+v", p.Candidates[0].Alternatives)
	}
	if p.Meta.FallbackCenterCoords != "37.75,128.87" {
		t.Errorf("meta center = %q", p.Meta.FallbackCenterCoords)
	}
}

func TestBuildProposalNotRainy(t *testing.T) {
	e := newTestEngine(nil)
	itin := &models.Itinerary{Items: []models.ItineraryItem{
		{Index: 1, Type: models.TypeFestival, Title: "강릉단오제"},
		{Index: 2, Type: models.TypePlace, Title: "경포호수공원"},
	}}

	p := e.BuildProposal(context.Background(), itin, replan.ProposalOptions{IsRainy: false})
	if len(p.Candidates) != 0 {
		t.Fatalf("no candidates expected without rain, got %d", len(p.Candidates))
	}
	if len(p.Kept) != 2 {
		t.Fatalf("kept = %+v", p.Kept)
	}
	for _, k := range p.Kept {
		if k.Reason != models.ReasonNotRainy {
			t.Errorf("kept reason = %q", k.Reason)
		}
	}
}

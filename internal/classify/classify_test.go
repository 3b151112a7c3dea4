package classify_test

import (
	"context"
	"testing"

	"github.com/raincheck/raincheck/internal/classify"
	"github.com/raincheck/raincheck/internal/places"
	"github.com/raincheck/raincheck/pkg/models"
)

type fakeDirectory struct {
	ids        map[string]string
	details    map[string]*places.Details
	detailsErr map[string]bool
}

func (f *fakeDirectory) FindPlaceID(ctx context.Context, query string) (string, error) {
	if id, ok := f.ids[query]; ok {
		return id, nil
	}
	return "", &places.LookupError{Op: "findplace", Query: query, Status: "zero results"}
}

func (f *fakeDirectory) Geocode(ctx context.Context, placeID string) (string, error) {
	return "", &places.LookupError{Op: "geocode", Query: placeID, Status: "zero results"}
}

func (f *fakeDirectory) Details(ctx context.Context, placeID string) (*places.Details, error) {
	if f.detailsErr[placeID] {
		return nil, &places.LookupError{Op: "details", Query: placeID, Status: "transport failure"}
	}
	if d, ok := f.details[placeID]; ok {
		return d, nil
	}
	return nil, &places.LookupError{Op: "details", Query: placeID, Status: "zero results"}
}

func (f *fakeDirectory) NearbySearch(ctx context.Context, location, keyword string, radiusM int) ([]places.Summary, error) {
	return nil, nil
}

func (f *fakeDirectory) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	return "", &places.LookupError{Op: "revgeocode", Status: "zero results"}
}

// ─── Protection ──────────────────────────────────────────────

func TestProtectionFirstItem(t *testing.T) {
	c := classify.NewKeywordClassifier(nil)
	item := models.ItineraryItem{Index: 1, Type: "place", Title: "호수 공원"}

	prot, reason := c.Protection(item, true, nil)
	if !prot {
		t.Fatal("first item must be protected")
	}
	if reason != models.ReasonProtectedFirst {
		t.Errorf("reason = %q, want %q", reason, models.ReasonProtectedFirst)
	}
}

func TestProtectionByType(t *testing.T) {
	c := classify.NewKeywordClassifier(nil)
	for _, ty := range []string{"festival", "Festival", "parking", "cafe", "RESTAURANT"} {
		prot, reason := c.Protection(models.ItineraryItem{Type: models.ItemType(ty), Title: "x"}, false, nil)
		if !prot {
			t.Errorf("type %q: want protected", ty)
			continue
		}
		want := "protected:type:"
		if len(reason) <= len(want) || reason[:len(want)] != want {
			t.Errorf("type %q: reason = %q, want protected:type:* prefix", ty, reason)
		}
	}
}

func TestProtectionByKeyword(t *testing.T) {
	c := classify.NewKeywordClassifier(nil)
	item := models.ItineraryItem{Type: "place", Title: "시립 박물관", Description: "도서관 옆"}

	prot, reason := c.Protection(item, false, nil)
	if !prot {
		t.Fatal("keyword hit must protect")
	}
	// Hits are joined in list order.
	if reason != "protected:keyword:박물관|도서관" {
		t.Errorf("reason = %q, want %q", reason, "protected:keyword:박물관|도서관")
	}
}

func TestProtectionByExactTitle(t *testing.T) {
	c := classify.NewKeywordClassifier(nil)
	item := models.ItineraryItem{Type: "place", Title: "단골집"}

	prot, reason := c.Protection(item, false, map[string]bool{"단골집": true})
	if !prot {
		t.Fatal("explicit title must protect")
	}
	if reason != "protected:title_exact:단골집" {
		t.Errorf("reason = %q, want %q", reason, "protected:title_exact:단골집")
	}
}

func TestProtectionNoMatch(t *testing.T) {
	c := classify.NewKeywordClassifier(nil)
	item := models.ItineraryItem{Type: "place", Title: "Lakeside Park"}

	if prot, reason := c.Protection(item, false, nil); prot {
		t.Errorf("plain place protected with reason %q", reason)
	}
}

// ─── Category ────────────────────────────────────────────────

func TestCategoryNeverOutdoorTypes(t *testing.T) {
	c := classify.NewKeywordClassifier(nil)
	for _, ty := range []string{"cafe", "restaurant", "parking"} {
		item := models.ItineraryItem{Type: models.ItemType(ty), Title: "야외 테라스"}
		if got := c.Category(context.Background(), item); got != classify.CategoryIndoor {
			t.Errorf("type %q classified outdoor", ty)
		}
	}
}

func TestCategoryHeritageTitle(t *testing.T) {
	c := classify.NewKeywordClassifier(nil)
	outdoor := []string{"경포대", "촉석루", "보신각", "숭례문", "오죽헌 정자"}
	for _, title := range outdoor {
		item := models.ItineraryItem{Type: "place", Title: title}
		if got := c.Category(context.Background(), item); got != classify.CategoryOutdoor {
			t.Errorf("heritage title %q classified indoor", title)
		}
	}
	// A single-rune title never matches the suffix pattern, and nothing
	// else fires for it either.
	if got := c.Category(context.Background(), models.ItineraryItem{Type: "place", Title: "대"}); got != classify.CategoryIndoor {
		t.Error("single-rune title matched heritage suffix")
	}
}

func TestCategoryDirectoryTypes(t *testing.T) {
	dir := &fakeDirectory{
		details: map[string]*places.Details{
			"p-beach": {Name: "Gyeongpo Beach", Types: []string{"tourist_attraction", "point_of_interest"}},
		},
	}
	c := classify.NewKeywordClassifier(dir)

	item := models.ItineraryItem{Type: "place", Title: "Gyeongpo Beach EN", PlaceID: "p-beach"}
	if got := c.Category(context.Background(), item); got != classify.CategoryOutdoor {
		t.Error("tourist_attraction tag should classify outdoor")
	}
}

func TestCategoryResolvesTitleToPlaceID(t *testing.T) {
	dir := &fakeDirectory{
		ids: map[string]string{"Central Green": "p-green"},
		details: map[string]*places.Details{
			"p-green": {Name: "Central Green", Types: []string{"park"}},
		},
	}
	c := classify.NewKeywordClassifier(dir)

	item := models.ItineraryItem{Type: "place", Title: "Central Green"}
	if got := c.Category(context.Background(), item); got != classify.CategoryOutdoor {
		t.Error("park tag via title resolution should classify outdoor")
	}
}

func TestCategoryDetailFailureDegrades(t *testing.T) {
	dir := &fakeDirectory{detailsErr: map[string]bool{"p-x": true}}
	c := classify.NewKeywordClassifier(dir)

	item := models.ItineraryItem{Type: "place", Title: "Quiet Atelier", PlaceID: "p-x"}
	if got := c.Category(context.Background(), item); got != classify.CategoryIndoor {
		t.Error("detail lookup failure must fall through to indoor, not error")
	}
}

func TestCategoryOutdoorKeywords(t *testing.T) {
	c := classify.NewKeywordClassifier(nil)
	outdoor := []models.ItineraryItem{
		{Type: "place", Title: "경포 해수욕장"},
		{Type: "place", Title: "바다 부채길", Description: "해안 산책로"},
		{Type: "place", Title: "선교장", Description: "전통 고택 탐방"},
	}
	for _, item := range outdoor {
		if got := c.Category(context.Background(), item); got != classify.CategoryOutdoor {
			t.Errorf("%q should classify outdoor", item.Title)
		}
	}

	indoor := models.ItineraryItem{Type: "place", Title: "테라로사 커피공장", Description: "실내 로스터리"}
	if got := c.Category(context.Background(), indoor); got != classify.CategoryIndoor {
		t.Errorf("%q should classify indoor", indoor.Title)
	}
}

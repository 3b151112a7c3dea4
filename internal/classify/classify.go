// Package classify decides whether an itinerary stop is protected from
// replacement and whether a non-protected stop looks outdoor.
//
// Protection is evaluated before outdoor classification so a false positive
// from the outdoor heuristics can never flag a protected stop. The outdoor
// side is deliberately loose: misclassifying an indoor stop as outdoor only
// adds an optional candidate the user can decline.
package classify

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/raincheck/raincheck/internal/places"
	"github.com/raincheck/raincheck/pkg/models"
)

// Category is the verdict for a non-protected stop.
type Category int

const (
	CategoryIndoor Category = iota
	CategoryOutdoor
)

// Classifier is the strategy the candidate collector consults. Keyword sets
// live behind this interface so they can be swapped or externalized without
// touching the collector.
type Classifier interface {
	// Protection reports whether the stop may never be replaced, with the
	// reason string recorded on its kept entry.
	Protection(item models.ItineraryItem, first bool, protectTitles map[string]bool) (bool, string)
	// Category classifies a non-protected stop. Directory lookup failures
	// count as a missing signal, not an error.
	Category(ctx context.Context, item models.ItineraryItem) Category
}

// ── Keyword sets ─────────────────────────────────────────────
// Korean search terms and title matchers, verbatim from production traffic.

// DefaultIndoorKeywords drive the alternative search when the caller
// supplies none.
var DefaultIndoorKeywords = []string{
	"박물관", "전시", "미술관", "과학관", "도서관", "쇼핑몰", "아쿠아리움", "실내 체험",
	"키즈카페", "갤러리", "볼링장", "VR", "만화카페", "보드게임", "카페", "영화관", "공연장",
}

// OutdoorKeywords mark a stop as rain-exposed when found in its title,
// description, or type tag.
var OutdoorKeywords = []string{
	"공원", "해변", "호수", "강", "산", "정상", "야외", "산책로", "전망대",
	"캠핑", "스카이워크", "정원", "폭포", "해수욕장", "야외전시", "전망",
}

// HeritageOutdoorKeywords cover traditional architecture and historic sites,
// which are open-air even when the name does not say so.
var HeritageOutdoorKeywords = []string{
	"고택", "한옥", "전통가옥", "유적", "사적", "향교", "서원", "누정", "서당",
	"민속촌", "고건축", "문화재", "옛집", "고가", "고택군", "객사", "별당", "행궁", "전통마을", "정원", "한옥마을",
}

// ProtectKeywords mark transit hubs and indoor institutions that replacement
// must never touch.
var ProtectKeywords = []string{
	"역", "터미널", "정거장", "환승", "공항", "항만", "항구",
	"박물관", "미술관", "과학관", "도서관", "쇼핑몰", "아쿠아리움",
	"전시장", "컨벤션", "센터", "체육관", "공연장", "도청", "시청", "도서문화센터",
}

// ProtectTypes are stop types that are never replaced.
var ProtectTypes = map[string]bool{
	"festival":   true,
	"parking":    true,
	"cafe":       true,
	"restaurant": true,
}

// neverOutdoorTypes can also never be outdoor candidates.
var neverOutdoorTypes = map[string]bool{
	"parking":    true,
	"cafe":       true,
	"restaurant": true,
}

// OutdoorPlaceTypes are directory category tags treated as outdoor. Open-air
// religious sites count: their grounds are what visitors come for.
var OutdoorPlaceTypes = map[string]bool{
	"park":               true,
	"campground":         true,
	"zoo":                true,
	"rv_park":            true,
	"natural_feature":    true,
	"tourist_attraction": true,
	"amusement_park":     true,
	"hindu_temple":       true,
	"mosque":             true,
	"church":             true,
}

// Heritage-style proper names: 경포대, ○○루, ○○각, ○○문, pavilions, fortress
// walls, palace gardens. Single-character suffixes only fire on multi-rune
// titles.
var heritageSuffixChars = []string{"대", "루", "각", "문"}

var heritageTokens = []string{
	"정자", "누각", "문루", "전망대",
	"서원", "향교", "사적", "유적", "고분",
	"성곽", "산성", "읍성", "궁", "고궁",
	"정원", "후원", "별서", "종묘", "사직",
	"탑", "비",
}

func titleLooksHeritage(title string) bool {
	t := strings.TrimSpace(title)
	if utf8.RuneCountInString(t) <= 1 {
		return false
	}
	for _, suf := range heritageSuffixChars {
		if strings.HasSuffix(t, suf) {
			return true
		}
	}
	for _, tok := range heritageTokens {
		if strings.Contains(t, tok) {
			return true
		}
	}
	return false
}

// ── Keyword strategy ─────────────────────────────────────────

// KeywordClassifier is the default strategy: fixed keyword lists, the
// heritage-name pattern, and place-detail category tags from the directory.
type KeywordClassifier struct {
	dir places.Directory
}

// NewKeywordClassifier creates the default classifier. dir may be nil; the
// detail-tag signal is then skipped.
func NewKeywordClassifier(dir places.Directory) *KeywordClassifier {
	return &KeywordClassifier{dir: dir}
}

// Protection applies the protection rules in order, first match wins:
// first stop, protected type, protected keyword, exact protected title.
func (c *KeywordClassifier) Protection(item models.ItineraryItem, first bool, protectTitles map[string]bool) (bool, string) {
	if first {
		return true, models.ReasonProtectedFirst
	}
	ty := strings.ToLower(strings.TrimSpace(string(item.Type)))
	if ProtectTypes[ty] {
		return true, "protected:type:" + ty
	}
	joined := strings.ToLower(item.Title + " " + item.Description)
	var hits []string
	for _, kw := range ProtectKeywords {
		if strings.Contains(joined, strings.ToLower(kw)) {
			hits = append(hits, kw)
		}
	}
	if len(hits) > 0 {
		return true, "protected:keyword:" + strings.Join(hits, "|")
	}
	if protectTitles[item.Title] {
		return true, "protected:title_exact:" + item.Title
	}
	return false, ""
}

// Category returns CategoryOutdoor on the first positive signal: heritage
// title pattern, outdoor detail tags, outdoor keywords, heritage keywords.
func (c *KeywordClassifier) Category(ctx context.Context, item models.ItineraryItem) Category {
	ty := strings.ToLower(strings.TrimSpace(string(item.Type)))
	if neverOutdoorTypes[ty] {
		return CategoryIndoor
	}
	if titleLooksHeritage(item.Title) {
		return CategoryOutdoor
	}

	if c.dir != nil {
		placeID := item.PlaceID
		if placeID == "" && item.Title != "" {
			if id, err := c.dir.FindPlaceID(ctx, item.Title); err == nil {
				placeID = id
			}
		}
		if placeID != "" {
			if det, err := c.dir.Details(ctx, placeID); err == nil && det != nil {
				for _, t := range det.Types {
					if OutdoorPlaceTypes[strings.ToLower(t)] {
						return CategoryOutdoor
					}
				}
			}
		}
	}

	joined := strings.ToLower(item.Title + " " + item.Description + " " + ty)
	for _, kw := range OutdoorKeywords {
		if strings.Contains(joined, strings.ToLower(kw)) {
			return CategoryOutdoor
		}
	}
	for _, kw := range HeritageOutdoorKeywords {
		if strings.Contains(joined, strings.ToLower(kw)) {
			return CategoryOutdoor
		}
	}
	return CategoryIndoor
}

// Package planner builds festival-anchored itineraries: nearby venue
// search with category expansion, prompt assembly, the model call, and
// post-hoc enrichment of the model's picks with directory data.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/raincheck/raincheck/internal/geo"
	"github.com/raincheck/raincheck/internal/llm"
	"github.com/raincheck/raincheck/internal/places"
	"github.com/raincheck/raincheck/internal/replan"
	"github.com/raincheck/raincheck/pkg/models"
)

// Search bounds.
const (
	DefaultSearchRadiusKM  = 10.0
	DefaultParkingRadiusKM = 1.5
	maxPromptVenues        = 20
)

// parkingPlaceholderTime fills start/end on parking suggestions; parking
// has no slot of its own in the plan.
const parkingPlaceholderTime = "2025-08-20T00:00:00+09:00"

// TravelNeeds are the user's trip constraints. Budget is free-form: a
// number in KRW or a phrase, interpolated into the prompt as-is.
type TravelNeeds struct {
	StartAt    string   `json:"start_at"`
	EndAt      string   `json:"end_at"`
	Categories []string `json:"categories"`
	Budget     any      `json:"budget,omitempty"`
}

// UnmarshalJSON accepts the historical "burget" misspelling some clients
// still send for budget.
func (n *TravelNeeds) UnmarshalJSON(data []byte) error {
	type alias TravelNeeds
	aux := struct {
		*alias
		Burget any `json:"burget"`
	}{alias: (*alias)(n)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if n.Budget == nil && aux.Burget != nil {
		n.Budget = aux.Burget
	}
	return nil
}

// ValidationError reports a missing required field in a planning request.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "travel_needs: " + e.Field + " is required"
}

// Validate checks the required trip window fields.
func (n TravelNeeds) Validate() error {
	if strings.TrimSpace(n.StartAt) == "" {
		return &ValidationError{Field: "start_at"}
	}
	if strings.TrimSpace(n.EndAt) == "" {
		return &ValidationError{Field: "end_at"}
	}
	return nil
}

// Request describes one planning job.
type Request struct {
	FestTitle        string      `json:"fest_title"`
	FestLocationText string      `json:"fest_location_text"`
	TravelNeeds      TravelNeeds `json:"travel_needs"`
}

// Venue is one nearby-search row with details merged in.
type Venue struct {
	Name       string
	Address    string
	Categories []string
	Rating     *float64
	Lat, Lng   float64
	PlaceID    string
}

// Planner wires the place directory and the chat model.
type Planner struct {
	dir     places.Directory
	chatter llm.Chatter
}

// New creates a planner.
func New(dir places.Directory, chatter llm.Chatter) *Planner {
	return &Planner{dir: dir, chatter: chatter}
}

// ── Category expansion ───────────────────────────────────────

var categoryExpansions = map[string][]string{
	"카페":   {"카페", "디저트", "베이커리"},
	"맛집":   {"맛집", "식당", "로컬 맛집", "현지 맛집"},
	"관광":   {"관광", "명소", "랜드마크", "볼거리", "투어"},
	"전시":   {"전시", "미술관", "갤러리", "아트"},
	"박물관":  {"박물관", "뮤지엄"},
	"정원":   {"정원", "가든", "수목원", "식물원"},
	"한옥":   {"한옥", "고택", "전통가옥", "사적", "유적", "향교", "서원"},
	"자연경관": {"자연경관", "전망대", "해변", "호수", "폭포", "산책로"},
	"체험":   {"체험", "공방", "클래스", "체험관"},
	"쇼핑":   {"쇼핑", "시장", "아울렛", "상점가"},
}

// ExpandCategories turns user concepts into concrete search keywords,
// keeping first-seen order and dropping duplicates. Unknown concepts pass
// through unchanged; an empty request defaults to sightseeing.
func ExpandCategories(categories []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		expanded, ok := categoryExpansions[c]
		if !ok {
			expanded = []string{c}
		}
		for _, kw := range expanded {
			if !seen[kw] {
				seen[kw] = true
				out = append(out, kw)
			}
		}
	}
	if len(out) == 0 {
		out = []string{"관광"}
	}
	return out
}

// ── Nearby search ────────────────────────────────────────────

var genericAddressTokens = []string{"대한민국", "강원", "강릉시", "Gangneung-si", "Korea"}

// looksTooGeneric flags addresses that name a region without a street,
// like "대한민국 강원도". Those get re-resolved by reverse geocoding.
func looksTooGeneric(addr string) bool {
	if addr == "" {
		return true
	}
	if strings.Count(addr, ",") > 0 {
		return false
	}
	for _, t := range genericAddressTokens {
		if strings.Contains(addr, t) {
			return true
		}
	}
	return false
}

// FindNearby searches venues around center ("lat,lng") for each expanded
// category keyword. Keyword-level failures are skipped. Radii under a
// kilometer are raised to one; below that nearby search returns noise.
func (p *Planner) FindNearby(ctx context.Context, center string, categories []string, radiusKM float64) []Venue {
	if center == "" {
		return nil
	}
	radiusM := int(radiusKM * 1000)
	if radiusM < 1000 {
		radiusM = 1000
	}

	var venues []Venue
	for _, kw := range ExpandCategories(categories) {
		summaries, err := p.dir.NearbySearch(ctx, center, kw, radiusM)
		if err != nil {
			log.Debug().Err(err).Str("keyword", kw).Msg("Nearby search failed, skipping keyword")
			continue
		}
		for _, s := range summaries {
			if s.Lat == nil || s.Lng == nil {
				continue
			}
			v := Venue{
				Name:       s.Name,
				Address:    s.Vicinity,
				Categories: s.Types,
				Rating:     s.Rating,
				Lat:        *s.Lat,
				Lng:        *s.Lng,
				PlaceID:    s.PlaceID,
			}
			if s.PlaceID != "" {
				if det, err := p.dir.Details(ctx, s.PlaceID); err == nil && det != nil {
					if det.Name != "" {
						v.Name = det.Name
					}
					if det.FormattedAddress != "" {
						v.Address = det.FormattedAddress
					} else if det.Vicinity != "" {
						v.Address = det.Vicinity
					}
					if det.Rating != nil {
						v.Rating = det.Rating
					}
				}
			}
			if looksTooGeneric(v.Address) {
				if rg, err := p.dir.ReverseGeocode(ctx, v.Lat, v.Lng); err == nil && rg != "" {
					v.Address = rg
				}
			}
			if v.Name == "" {
				v.Name = "정보 없음"
			}
			if v.Address == "" {
				v.Address = "정보 없음"
			}
			if len(v.Categories) == 0 {
				v.Categories = []string{"정보 없음"}
			}
			venues = append(venues, v)
		}
	}
	return venues
}

// ── Prompt ───────────────────────────────────────────────────

const jsonOnlySystem = "Return ONLY valid JSON. No markdown or extra text."

const promptTemplate = `역할: 여행 플래너

입력 정보
- 시작지: %s
- 시작정보(위도,경도): %s
- 여행 기간(시작~종료, KST ISO8601): %s ~ %s
- 추가 고려 옵션:
  - 최대 예산: %s
  - 희망 여행 컨셉(참고용): %s

참고용 주변 장소(최대 20개)
%s

요구사항
1) 내부 자료와 참고용 주변 장소를 통해 후보를 탐색하고, 검증 가능한 대표 정보(명칭·카테고리·대략적 평판/특징)를 근거로 선정할 것.
2) 반드시 처음은 시작 위치일 것
3) 이동 시간을 현실적으로 반영하되, 특정 이동수단이나 경로 최적화는 고려하지 말 것.
4) 예산 제약은 반드시 준수하고, 희망 여행 컨셉은 참고만 할 것.
5) 숙소와 주차장은 고려하지 말 것(추천·배치·유형 사용 금지).
6) 모든 시간은 KST ISO8601 형식으로 기입할 것(예: 2025-08-19T10:00:00+09:00).
7) 장소 유형(type)은 다음 중 하나로만 사용: festival, place, cafe, restaurant.
8) 일정이 의미적으로 중복되는 것은 피하기
9) 결과는 JSON만 출력하고, 그 외 설명/텍스트는 포함하지 말 것.
10) 장소만 적을 것 (강릉 여행 종료 이런거 금지)

출력 스키마 예시
{
  "itinerary": [
    {
      "index": 1,
      "type": "festival",
      "title": "%s",
      "start_time": "2025-08-19T10:00:00+09:00",
      "end_time": "2025-08-19T11:30:00+09:00",
      "description": "행사장 중심 활동"
    },
    {
      "index": 2,
      "type": "place",
      "title": "소양강 스카이워크",
      "start_time": "2025-08-19T11:30:00+09:00",
      "end_time": "2025-08-19T12:00:00+09:00",
      "description": "주변 추천지"
    }
  ],
  "totals": {
    "estimated_cost_krw": 0,
    "estimated_travel_time_minutes": 0
  }
}`

func buildPrompt(festTitle, festLocation string, needs TravelNeeds, nearby []Venue) string {
	var snippets []string
	for _, v := range nearby {
		if len(snippets) == maxPromptVenues {
			break
		}
		cats := v.Categories
		if len(cats) > 3 {
			cats = cats[:3]
		}
		rating := "없음"
		if v.Rating != nil {
			rating = strconv.FormatFloat(*v.Rating, 'g', -1, 64)
		}
		snippets = append(snippets, fmt.Sprintf("- %s | %s | 평점:%s | %s", v.Name, strings.Join(cats, ", "), rating, v.Address))
	}
	placesBlock := "(근처 후보 없음)"
	if len(snippets) > 0 {
		placesBlock = strings.Join(snippets, "\n")
	}

	budget := "미지정"
	if needs.Budget != nil {
		budget = fmt.Sprintf("%v", needs.Budget)
	}

	return fmt.Sprintf(promptTemplate,
		festTitle,
		festLocation,
		needs.StartAt,
		needs.EndAt,
		budget,
		strings.Join(needs.Categories, ", "),
		placesBlock,
		festTitle,
	)
}

// ── Planning ─────────────────────────────────────────────────

// SuggestPlan builds a full itinerary: resolve the festival anchor, gather
// nearby context, ask the model for a draft, then enrich each stop with
// directory data. An unresolvable anchor degrades to a plan without local
// context instead of failing.
func (p *Planner) SuggestPlan(ctx context.Context, req Request) (*models.Itinerary, error) {
	if err := req.TravelNeeds.Validate(); err != nil {
		return nil, err
	}

	festLocation := ""
	if req.FestLocationText != "" {
		coords, err := places.CoordsFromTitle(ctx, p.dir, req.FestLocationText)
		if err != nil {
			log.Warn().Err(err).Str("location", req.FestLocationText).Msg("Could not resolve festival location")
		} else {
			festLocation = coords
		}
	}

	var nearby []Venue
	if festLocation != "" {
		nearby = p.FindNearby(ctx, festLocation, req.TravelNeeds.Categories, DefaultSearchRadiusKM)
	}

	raw, err := p.chatter.ChatJSON(ctx, jsonOnlySystem, buildPrompt(req.FestTitle, festLocation, req.TravelNeeds, nearby))
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	var draft models.Itinerary
	if err := llm.DecodeJSON(raw, &draft); err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	if len(draft.Items) == 0 {
		return nil, errors.New("planner: model returned an empty itinerary")
	}

	p.enrichItems(ctx, draft.Items)
	replan.Renumber(draft.Items)
	if draft.Totals == nil {
		draft.Totals = map[string]any{"estimated_cost_krw": 0, "estimated_travel_time_minutes": 0}
	}
	return &draft, nil
}

// placeInfo is the enrichment payload resolved for one stop.
type placeInfo struct {
	placeID  string
	address  string
	lat, lng *float64
	rating   *float64
}

// enrichItems fills address, coordinates, rating, and place id on model
// output. Stops that already carry all three are only checked for a
// too-generic address. Everything here is best-effort per stop.
func (p *Planner) enrichItems(ctx context.Context, items []models.ItineraryItem) {
	for i := range items {
		item := &items[i]
		hasCoords := item.Lat != nil && item.Lng != nil

		if item.Address != "" && hasCoords && item.PlaceID != "" {
			if looksTooGeneric(item.Address) {
				if rg, err := p.dir.ReverseGeocode(ctx, *item.Lat, *item.Lng); err == nil && rg != "" {
					item.Address = rg
				}
			}
			continue
		}

		info := p.lookupByPlaceID(ctx, item)
		if info == nil && item.Title != "" {
			info = p.resolveByTitle(ctx, item.Title)
		}
		if info != nil {
			if item.PlaceID == "" {
				item.PlaceID = info.placeID
			}
			if info.address != "" {
				item.Address = info.address
			}
			if info.lat != nil {
				item.Lat = info.lat
			}
			if info.lng != nil {
				item.Lng = info.lng
			}
			if info.rating != nil {
				item.Rating = info.rating
			}
		}

		if item.Address == "" {
			if item.Lat != nil && item.Lng != nil {
				if rg, err := p.dir.ReverseGeocode(ctx, *item.Lat, *item.Lng); err == nil && rg != "" {
					item.Address = rg
				}
			}
			if item.Address == "" {
				desc := strings.TrimSpace(item.Description)
				if !strings.Contains(desc, "주소:") {
					if desc != "" {
						desc += " · "
					}
					item.Description = desc + "주소: 정보 없음"
				}
			}
		}
	}
}

func (p *Planner) lookupByPlaceID(ctx context.Context, item *models.ItineraryItem) *placeInfo {
	if item.PlaceID == "" {
		return nil
	}
	det, err := p.dir.Details(ctx, item.PlaceID)
	if err != nil || det == nil {
		return nil
	}

	info := &placeInfo{placeID: item.PlaceID, lat: det.Lat, lng: det.Lng, rating: det.Rating}
	addr := det.FormattedAddress
	if addr == "" {
		addr = det.Vicinity
	}
	if addr == "" {
		addr = item.Address
	}
	if det.Lat != nil && det.Lng != nil && looksTooGeneric(addr) {
		if rg, err := p.dir.ReverseGeocode(ctx, *det.Lat, *det.Lng); err == nil && rg != "" {
			addr = rg
		}
	}
	info.address = addr
	if info.lat == nil {
		info.lat = item.Lat
	}
	if info.lng == nil {
		info.lng = item.Lng
	}
	if info.rating == nil {
		info.rating = item.Rating
	}
	return info
}

func (p *Planner) resolveByTitle(ctx context.Context, title string) *placeInfo {
	pid, err := p.dir.FindPlaceID(ctx, title)
	if err != nil || pid == "" {
		return nil
	}
	det, err := p.dir.Details(ctx, pid)
	if err != nil {
		return nil
	}
	if det == nil {
		det = &places.Details{}
	}

	info := &placeInfo{placeID: pid, lat: det.Lat, lng: det.Lng, rating: det.Rating}
	if info.lat == nil || info.lng == nil {
		if coords, err := p.dir.Geocode(ctx, pid); err == nil {
			if lat, lng, ok := geo.ParseCoords(coords); ok {
				info.lat, info.lng = models.Float(lat), models.Float(lng)
			}
		}
	}
	addr := det.FormattedAddress
	if addr == "" {
		addr = det.Vicinity
	}
	if info.lat != nil && info.lng != nil && looksTooGeneric(addr) {
		if rg, err := p.dir.ReverseGeocode(ctx, *info.lat, *info.lng); err == nil && rg != "" {
			addr = rg
		}
	}
	info.address = addr
	return info
}

// ── Parking ──────────────────────────────────────────────────

// SuggestParking lists up to three public parking lots near the festival
// as a minimal itinerary with placeholder times.
func (p *Planner) SuggestParking(ctx context.Context, festLocationText string) (*models.Itinerary, error) {
	center, err := places.CoordsFromTitle(ctx, p.dir, festLocationText)
	if err != nil {
		return nil, fmt.Errorf("planner: resolve parking center: %w", err)
	}
	if center == "" {
		return nil, errors.New("planner: festival location did not resolve")
	}

	venues := p.FindNearby(ctx, center, []string{"공영주차장"}, DefaultParkingRadiusKM)
	if len(venues) > 3 {
		venues = venues[:3]
	}
	return venuesToItinerary(venues), nil
}

func venuesToItinerary(venues []Venue) *models.Itinerary {
	items := make([]models.ItineraryItem, 0, len(venues))
	for i, v := range venues {
		ty := models.TypePlace
		if len(v.Categories) > 0 {
			ty = models.NormalizeType(v.Categories[0])
		}
		items = append(items, models.ItineraryItem{
			Index:       i + 1,
			Type:        ty,
			Title:       v.Name,
			StartTime:   parkingPlaceholderTime,
			EndTime:     parkingPlaceholderTime,
			Address:     v.Address,
			Description: "주소: " + v.Address,
			PlaceID:     v.PlaceID,
			Lat:         models.Float(v.Lat),
			Lng:         models.Float(v.Lng),
			Rating:      v.Rating,
		})
	}
	return &models.Itinerary{
		Items:  items,
		Totals: map[string]any{"estimated_cost_krw": 0, "estimated_travel_time_minutes": 0},
	}
}

// Package handlers implements the HTTP handlers for the raincheck service:
// plan suggestion, the stateless rain-check pair, the versioned session
// state machine, and the cached weather outlook.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/raincheck/raincheck/internal/llm"
	"github.com/raincheck/raincheck/internal/planner"
	"github.com/raincheck/raincheck/internal/replan"
	"github.com/raincheck/raincheck/internal/sessions"
	"github.com/raincheck/raincheck/internal/store"
	"github.com/raincheck/raincheck/internal/weather"
	"github.com/raincheck/raincheck/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Store    store.Store
	Planner  *planner.Planner
	Engine   *replan.Engine
	Sessions *sessions.Manager
	Weather  *weather.Poller // nil when no forecast function is configured

	// Deployment-level search defaults, applied when a request leaves the
	// knobs unset. Zero values fall through to the engine's own defaults.
	AltRadiusKM float64
	AltTopK     int
}

// New creates a new Handlers instance with all dependencies.
func New(st store.Store, pl *planner.Planner, eng *replan.Engine, mgr *sessions.Manager, poller *weather.Poller) *Handlers {
	return &Handlers{
		Store:    st,
		Planner:  pl,
		Engine:   eng,
		Sessions: mgr,
		Weather:  poller,
	}
}

// ══════════════════════════════════════════════════════════════
// ── Plan Handlers ────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) SuggestPlan(w http.ResponseWriter, r *http.Request) {
	var req planner.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	plan, err := h.Planner.SuggestPlan(r.Context(), req)
	if err != nil {
		respondPlanError(w, err)
		return
	}

	log.Info().Str("festival", req.FestTitle).Int("stops", len(plan.Items)).Msg("🗺️ Plan suggested")
	respondJSON(w, http.StatusOK, plan)
}

func (h *Handlers) SuggestParking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FestLocationText string `json:"fest_location_text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.FestLocationText) == "" {
		respondError(w, http.StatusBadRequest, "fest_location_text is required")
		return
	}

	lots, err := h.Planner.SuggestParking(r.Context(), req.FestLocationText)
	if err != nil {
		respondPlanError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, lots)
}

// ══════════════════════════════════════════════════════════════
// ── Rain Handlers (stateless) ────────────────────────────────
// ══════════════════════════════════════════════════════════════

// rainParams carries the proposal-builder knobs shared by the stateless
// proposal endpoint and the session check.
type rainParams struct {
	IsRainy        *bool    `json:"is_rainy,omitempty"`
	CenterCoords   string   `json:"center_coords,omitempty"`
	RainyDates     []string `json:"rainy_dates,omitempty"`
	ProtectTitles  []string `json:"protect_titles,omitempty"`
	RadiusKM       float64  `json:"radius_km_for_alt,omitempty"`
	IndoorKeywords []string `json:"indoor_keywords,omitempty"`
	TopK           int      `json:"top_k,omitempty"`
	MaxDistanceKM  *float64 `json:"max_distance_km,omitempty"`
}

// proposalOptions resolves the rain outlook for a request. An explicit
// is_rainy wins; otherwise the poller's cached outlook decides, and with no
// outlook at all the check assumes rain. Dates the client sent are never
// overridden.
func (h *Handlers) proposalOptions(p rainParams) replan.ProposalOptions {
	isRainy := true
	dates := p.RainyDates
	switch {
	case p.IsRainy != nil:
		isRainy = *p.IsRainy
	case h.Weather != nil:
		if cached, fetchedAt := h.Weather.Latest(); !fetchedAt.IsZero() {
			isRainy = len(cached) > 0
			if dates == nil {
				dates = cached
			}
		}
	}
	radius := p.RadiusKM
	if radius <= 0 {
		radius = h.AltRadiusKM
	}
	topK := p.TopK
	if topK <= 0 {
		topK = h.AltTopK
	}
	return replan.ProposalOptions{
		IsRainy:        isRainy,
		CenterCoords:   p.CenterCoords,
		RainyDates:     dates,
		ProtectTitles:  p.ProtectTitles,
		RadiusKM:       radius,
		IndoorKeywords: p.IndoorKeywords,
		TopK:           topK,
		MaxDistanceKM:  p.MaxDistanceKM,
	}
}

func (h *Handlers) RainProposal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Plan *models.Itinerary `json:"plan"`
		rainParams
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Plan == nil || len(req.Plan.Items) == 0 {
		respondError(w, http.StatusBadRequest, "plan with at least one stop required")
		return
	}

	proposal := h.Engine.BuildProposal(r.Context(), req.Plan, h.proposalOptions(req.rainParams))
	respondJSON(w, http.StatusOK, proposal)
}

func (h *Handlers) RainApply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Plan     *models.Itinerary `json:"plan"`
		Proposal *models.Proposal  `json:"proposal"`
		Choices  []models.Choice   `json:"choices"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Plan == nil {
		respondError(w, http.StatusBadRequest, "plan is required")
		return
	}

	respondJSON(w, http.StatusOK, replan.ApplyChoices(req.Plan, req.Proposal, req.Choices))
}

// ══════════════════════════════════════════════════════════════
// ── Session Handlers ─────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) CheckSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID        string            `json:"session_id,omitempty"`
		Plan             *models.Itinerary `json:"plan"`
		AttachParking    bool              `json:"attach_parking,omitempty"`
		FestLocationText string            `json:"fest_location_text,omitempty"`
		rainParams
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if id := chi.URLParam(r, "sessionID"); id != "" {
		req.SessionID = id
	}

	plan := req.Plan
	if req.AttachParking {
		plan = h.attachParking(r.Context(), plan, req.FestLocationText)
	}

	sess, err := h.Sessions.Check(r.Context(), req.SessionID, plan, h.proposalOptions(req.rainParams))
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// attachParking appends nearby parking stops to a copy of the plan before
// the check runs. Enrichment is cosmetic; any failure leaves the plan as
// submitted.
func (h *Handlers) attachParking(ctx context.Context, plan *models.Itinerary, festLocation string) *models.Itinerary {
	if plan == nil || h.Planner == nil {
		return plan
	}
	if festLocation == "" && len(plan.Items) > 0 {
		festLocation = plan.Items[0].Title
	}
	if festLocation == "" {
		return plan
	}

	lots, err := h.Planner.SuggestParking(ctx, festLocation)
	if err != nil {
		log.Warn().Err(err).Str("location", festLocation).Msg("Parking enrichment failed, continuing without it")
		return plan
	}
	if len(lots.Items) == 0 {
		return plan
	}

	enriched := plan.Clone()
	enriched.Items = append(enriched.Items, lots.Items...)
	replan.Renumber(enriched.Items)
	return enriched
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := h.Store.ListSessions(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []models.Session{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := h.Sessions.Delete(r.Context(), id); err != nil {
		respondSessionError(w, err)
		return
	}

	log.Info().Str("session", id).Msg("Session deleted")
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "session_id": id})
}

func (h *Handlers) ApplySession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var req struct {
		Choices    []models.Choice    `json:"choices"`
		Selections []models.Selection `json:"selections"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Choices) > 0 && len(req.Selections) > 0 {
		respondError(w, http.StatusBadRequest, "Send either choices or selections, not both")
		return
	}

	var sess *models.Session
	var err error
	if len(req.Selections) > 0 {
		sess, err = h.Sessions.ApplySelections(r.Context(), id, req.Selections)
	} else {
		sess, err = h.Sessions.ApplyChoices(r.Context(), id, req.Choices)
	}
	if err != nil {
		respondSessionError(w, err)
		return
	}

	log.Info().Str("session", id).Int("version", sess.Version).Msg("Selections applied")
	respondJSON(w, http.StatusOK, sess)
}

type llmApplyResponse struct {
	Session    *models.Session    `json:"session"`
	Selections []models.Selection `json:"selections"`
}

func (h *Handlers) LLMApplySession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	sess, sels, err := h.Sessions.LLMApply(r.Context(), id, req.Message)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	if sels == nil {
		sels = []models.Selection{}
	}

	log.Info().Str("session", id).Int("selections", len(sels)).Msg("🤖 Free-text selections applied")
	respondJSON(w, http.StatusOK, llmApplyResponse{Session: sess, Selections: sels})
}

func (h *Handlers) RollbackSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	sess, err := h.Sessions.Rollback(r.Context(), id)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (h *Handlers) ResetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	sess, err := h.Sessions.Reset(r.Context(), id)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// ══════════════════════════════════════════════════════════════
// ── Weather Handlers ─────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type rainyDatesResponse struct {
	RainyDates []string   `json:"rainy_dates"`
	FetchedAt  *time.Time `json:"fetched_at,omitempty"`
}

func (h *Handlers) RainyDates(w http.ResponseWriter, r *http.Request) {
	if h.Weather == nil {
		respondError(w, http.StatusServiceUnavailable, weather.ErrNotConfigured.Error())
		return
	}

	dates, fetchedAt := h.Weather.Latest()
	resp := rainyDatesResponse{RainyDates: dates}
	if resp.RainyDates == nil {
		resp.RainyDates = []string{}
	}
	if !fetchedAt.IsZero() {
		resp.FetchedAt = &fetchedAt
	}
	respondJSON(w, http.StatusOK, resp)
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondPlanError maps planner failures. Invalid travel needs are the
// caller's fault; a missing model key is an operational condition, not a
// bug.
func respondPlanError(w http.ResponseWriter, err error) {
	var ve *planner.ValidationError
	switch {
	case errors.As(err, &ve):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, llm.ErrNotConfigured):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// respondSessionError maps state-machine failures. Unknown sessions are
// 404s; transitions that need state the session does not have yet are
// conflicts, not server errors.
func respondSessionError(w http.ResponseWriter, err error) {
	var nf *store.ErrNotFound
	var inv *sessions.InvalidSelectionError
	switch {
	case errors.As(err, &nf):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &inv), errors.Is(err, sessions.ErrEmptyPlan):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sessions.ErrNoProposal),
		errors.Is(err, sessions.ErrNoHistory),
		errors.Is(err, sessions.ErrStaleProposal):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, llm.ErrNotConfigured):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// Package sessions is the versioned state machine around stored plans:
// check installs a fresh proposal, apply swaps stops and pushes the undo
// stack, rollback pops it, reset returns to the plan captured at the first
// check. All transitions for a session run under one lock so concurrent
// requests cannot interleave a read-modify-write.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/raincheck/raincheck/internal/intent"
	"github.com/raincheck/raincheck/internal/replan"
	"github.com/raincheck/raincheck/internal/store"
	"github.com/raincheck/raincheck/pkg/models"
)

var (
	// ErrNoHistory means rollback was called with nothing to undo.
	ErrNoHistory = errors.New("sessions: no history to roll back")

	// ErrNoProposal means apply was called before any check produced one,
	// or after a transition invalidated it.
	ErrNoProposal = errors.New("sessions: no active proposal, run a check first")

	// ErrStaleProposal means the session moved while a slow path (the LLM
	// round trip) was in flight. The caller should re-check and retry.
	ErrStaleProposal = errors.New("sessions: proposal changed while resolving, run a new check")

	// ErrEmptyPlan rejects a check without any stops to work on.
	ErrEmptyPlan = errors.New("sessions: plan with at least one stop required")
)

// InvalidSelectionError rejects an apply before any state is mutated.
type InvalidSelectionError struct {
	Candidate   int
	Alternative int
	Reason      string
}

func (e *InvalidSelectionError) Error() string {
	return fmt.Sprintf("sessions: invalid selection (candidate %d, alternative %d): %s", e.Candidate, e.Alternative, e.Reason)
}

// Manager owns all session transitions. The lock is coarse: one mutex for
// the whole table keeps each check-then-set, push-then-set, and
// pop-then-set atomic per session. Directory and model calls happen
// outside the lock; only the store round trip runs under it.
type Manager struct {
	mu       sync.Mutex
	store    store.Store
	engine   *replan.Engine
	resolver *intent.Resolver
}

// NewManager wires the store, the replanning engine, and the intent
// resolver used by LLMApply.
func NewManager(st store.Store, engine *replan.Engine, resolver *intent.Resolver) *Manager {
	return &Manager{store: st, engine: engine, resolver: resolver}
}

// Check builds a proposal for the submitted plan and installs it on the
// session, creating the session if needed. The first check captures the
// plan as the session's original; later checks refresh plan and proposal
// but never touch the original.
func (m *Manager) Check(ctx context.Context, id string, plan *models.Itinerary, opts replan.ProposalOptions) (*models.Session, error) {
	if plan == nil || len(plan.Items) == 0 {
		return nil, ErrEmptyPlan
	}

	// Directory I/O happens before the lock.
	proposal := m.engine.BuildProposal(ctx, plan, opts)

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	sess, err := m.getLocked(ctx, id)
	if err != nil {
		var nf *store.ErrNotFound
		if id != "" && !errors.As(err, &nf) {
			return nil, err
		}
		if id == "" {
			id = uuid.NewString()
		}
		sess = &models.Session{
			ID:           id,
			OriginalPlan: plan.Clone(),
			CreatedAt:    now,
		}
		log.Info().Str("session", id).Int("stops", len(plan.Items)).Msg("🌂 Session created")
	}

	sess.Plan = plan.Clone()
	sess.Proposal = proposal
	sess.Version++
	sess.UpdatedAt = now
	if err := m.store.PutSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ApplySelections replaces stops by proposal-candidate position, the shape
// the intent resolver emits. All selections are validated before any state
// changes.
func (m *Manager) ApplySelections(ctx context.Context, id string, sels []models.Selection) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Proposal == nil {
		return nil, ErrNoProposal
	}
	if err := validateSelections(sess.Proposal, sels); err != nil {
		return nil, err
	}
	return m.applyLocked(ctx, sess, selectionsToChoices(sess.Proposal, sels))
}

// ApplyChoices replaces stops by itinerary index, the wire shape of the
// apply endpoint. A nil or negative choice is an explicit keep; indices
// that are not proposal candidates are rejected.
func (m *Manager) ApplyChoices(ctx context.Context, id string, choices []models.Choice) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Proposal == nil {
		return nil, ErrNoProposal
	}
	if err := validateChoices(sess.Proposal, choices); err != nil {
		return nil, err
	}
	return m.applyLocked(ctx, sess, choices)
}

// LLMApply resolves a free-text message against the session's proposal and
// applies the resulting selections. The model round trip runs outside the
// lock; the session version is re-checked afterwards so a concurrent
// transition invalidates the slow path instead of being overwritten by it.
func (m *Manager) LLMApply(ctx context.Context, id, message string) (*models.Session, []models.Selection, error) {
	m.mu.Lock()
	snap, err := m.getLocked(ctx, id)
	m.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}
	if snap.Proposal == nil {
		return nil, nil, ErrNoProposal
	}

	sels, err := m.resolver.Resolve(ctx, snap.Proposal, message)
	if err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.getLocked(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if sess.Version != snap.Version || sess.Proposal == nil {
		return nil, nil, ErrStaleProposal
	}
	if len(sels) == 0 {
		// The model picked nothing; leave the session untouched.
		return sess, nil, nil
	}
	if err := validateSelections(sess.Proposal, sels); err != nil {
		return nil, nil, err
	}
	sess, err = m.applyLocked(ctx, sess, selectionsToChoices(sess.Proposal, sels))
	if err != nil {
		return nil, nil, err
	}
	return sess, sels, nil
}

// Rollback pops the most recent history entry into the current plan.
func (m *Manager) Rollback(ctx context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(sess.History) == 0 {
		return nil, ErrNoHistory
	}

	last := len(sess.History) - 1
	sess.Plan = sess.History[last]
	sess.History = sess.History[:last]
	sess.Proposal = nil
	sess.Version++
	sess.UpdatedAt = time.Now().UTC()
	if err := m.store.PutSession(ctx, sess); err != nil {
		return nil, err
	}
	log.Info().Str("session", id).Int("history", len(sess.History)).Msg("Rolled back one step")
	return sess, nil
}

// Reset restores the plan captured at the session's first check and clears
// history and proposal.
func (m *Manager) Reset(ctx context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}

	sess.Plan = sess.OriginalPlan.Clone()
	sess.History = nil
	sess.Proposal = nil
	sess.Version++
	sess.UpdatedAt = time.Now().UTC()
	if err := m.store.PutSession(ctx, sess); err != nil {
		return nil, err
	}
	log.Info().Str("session", id).Msg("Session reset to original plan")
	return sess, nil
}

// Get returns the session as stored.
func (m *Manager) Get(ctx context.Context, id string) (*models.Session, error) {
	return m.store.GetSession(ctx, id)
}

// Delete removes the session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.store.DeleteSession(ctx, id)
}

// getLocked fetches a session while m.mu is held.
func (m *Manager) getLocked(ctx context.Context, id string) (*models.Session, error) {
	if id == "" {
		return nil, &store.ErrNotFound{Entity: "session", Key: "(empty)"}
	}
	return m.store.GetSession(ctx, id)
}

// applyLocked runs the applier, pushes the undo entry, and installs the
// new plan. The proposal is cleared: renumbering makes its candidate
// indices stale, so reuse must go through a fresh check.
func (m *Manager) applyLocked(ctx context.Context, sess *models.Session, choices []models.Choice) (*models.Session, error) {
	next := replan.ApplyChoices(sess.Plan, sess.Proposal, choices)
	sess.History = append(sess.History, sess.Plan)
	sess.Plan = next
	sess.Proposal = nil
	sess.Version++
	sess.UpdatedAt = time.Now().UTC()
	if err := m.store.PutSession(ctx, sess); err != nil {
		return nil, err
	}
	log.Info().Str("session", sess.ID).Int("choices", len(choices)).Int("history", len(sess.History)).Msg("☂️ Applied rain alternatives")
	return sess, nil
}

func validateSelections(p *models.Proposal, sels []models.Selection) error {
	for _, sel := range sels {
		if sel.CandidateIndex < 0 || sel.CandidateIndex >= len(p.Candidates) {
			return &InvalidSelectionError{Candidate: sel.CandidateIndex, Alternative: sel.AlternativeIndex, Reason: "candidate index out of range"}
		}
		if sel.AlternativeIndex < 0 || sel.AlternativeIndex >= len(p.Candidates[sel.CandidateIndex].Alternatives) {
			return &InvalidSelectionError{Candidate: sel.CandidateIndex, Alternative: sel.AlternativeIndex, Reason: "alternative index out of range"}
		}
	}
	return nil
}

func selectionsToChoices(p *models.Proposal, sels []models.Selection) []models.Choice {
	choices := make([]models.Choice, 0, len(sels))
	for _, sel := range sels {
		choices = append(choices, models.Choice{
			Index:  p.Candidates[sel.CandidateIndex].Index,
			Choice: models.Int(sel.AlternativeIndex),
		})
	}
	return choices
}

func validateChoices(p *models.Proposal, choices []models.Choice) error {
	altsByIndex := make(map[int]int, len(p.Candidates))
	for _, c := range p.Candidates {
		altsByIndex[c.Index] = len(c.Alternatives)
	}
	for _, ch := range choices {
		n, ok := altsByIndex[ch.Index]
		if !ok {
			return &InvalidSelectionError{Candidate: ch.Index, Alternative: -1, Reason: "itinerary index is not a proposal candidate"}
		}
		if ch.Choice == nil || *ch.Choice < 0 {
			continue
		}
		if *ch.Choice >= n {
			return &InvalidSelectionError{Candidate: ch.Index, Alternative: *ch.Choice, Reason: "alternative index out of range"}
		}
	}
	return nil
}

// Package intent resolves free-form user messages ("둘 다 바꿔줘", "두 번째
// 걸로") into validated alternative selections against a rain proposal.
package intent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/raincheck/raincheck/internal/llm"
	"github.com/raincheck/raincheck/pkg/models"
)

const selectionPrompt = `역할: 여행 일정 대안 선택 전문가

당신은 사용자의 자연어 메시지를 해석해서 어떤 대안을 선택할지 결정합니다.

입력 형식:
- candidates: 각 후보별 원본 장소와 대안들
- user_message: 사용자의 요청 메시지

출력 형식: JSON만 허용
{"selections": [{"candidate_index": 숫자, "alternative_index": 숫자}, ...]}

예시:
- "두 번째 박물관으로 바꿔줘" → 박물관 관련 대안 중 두 번째 선택
- "에디슨과학박물관 좋아요" → 해당 이름의 대안 선택
- "첫 번째 것으로 해주세요" → 첫 번째 대안 선택
- "다 바꿔주세요" → 모든 후보의 첫 번째 대안 선택
- "안 바꿀래요" → 빈 배열 반환

주의사항:
- candidate_index는 0부터 시작 (0, 1, 2...)
- alternative_index는 0부터 시작 (0, 1, 2...)
- 명확하지 않으면 가장 적절한 선택을 추론
- 존재하지 않는 인덱스는 선택하지 마세요`

// compactAlternative is the trimmed view of an alternative the model sees:
// enough to match names and rank by rating or distance, nothing more.
type compactAlternative struct {
	Index      int     `json:"index"`
	Title      string  `json:"title"`
	Address    string  `json:"address"`
	Rating     float64 `json:"rating"`
	DistanceKM float64 `json:"distance_km"`
}

type compactCandidate struct {
	CandidateIndex int                  `json:"candidate_index"`
	OriginalTitle  string               `json:"original_title"`
	Alternatives   []compactAlternative `json:"alternatives"`
}

// Resolver interprets user messages with a chat model.
type Resolver struct {
	chatter llm.Chatter
}

// NewResolver creates a resolver on top of any Chatter.
func NewResolver(chatter llm.Chatter) *Resolver {
	return &Resolver{chatter: chatter}
}

// Resolve asks the model which alternatives the message picks. Selections
// pointing outside the proposal are dropped; transport and decode failures
// come back as errors, never as a silent empty result. A proposal with no
// candidates resolves to nothing without a model call.
func (r *Resolver) Resolve(ctx context.Context, proposal *models.Proposal, message string) ([]models.Selection, error) {
	if proposal == nil || len(proposal.Candidates) == 0 {
		return nil, nil
	}

	compact := make([]compactCandidate, 0, len(proposal.Candidates))
	for i, cand := range proposal.Candidates {
		alts := make([]compactAlternative, 0, len(cand.Alternatives))
		for j, alt := range cand.Alternatives {
			rating := 0.0
			if alt.Rating != nil {
				rating = *alt.Rating
			}
			alts = append(alts, compactAlternative{
				Index:      j,
				Title:      alt.Title,
				Address:    alt.Address,
				Rating:     rating,
				DistanceKM: alt.DistanceKM,
			})
		}
		compact = append(compact, compactCandidate{
			CandidateIndex: i,
			OriginalTitle:  cand.Original.Title,
			Alternatives:   alts,
		})
	}

	payload, err := json.Marshal(map[string]any{
		"candidates":   compact,
		"user_message": message,
	})
	if err != nil {
		return nil, fmt.Errorf("intent: marshal payload: %w", err)
	}

	raw, err := r.chatter.ChatJSON(ctx, selectionPrompt, string(payload))
	if err != nil {
		return nil, fmt.Errorf("intent: %w", err)
	}

	var parsed struct {
		Selections []models.Selection `json:"selections"`
	}
	if err := llm.DecodeJSON(raw, &parsed); err != nil {
		return nil, fmt.Errorf("intent: %w", err)
	}

	valid := make([]models.Selection, 0, len(parsed.Selections))
	for _, sel := range parsed.Selections {
		if sel.CandidateIndex < 0 || sel.CandidateIndex >= len(proposal.Candidates) {
			log.Debug().Int("candidate_index", sel.CandidateIndex).Msg("Model picked a candidate that does not exist, dropping it")
			continue
		}
		if sel.AlternativeIndex < 0 || sel.AlternativeIndex >= len(proposal.Candidates[sel.CandidateIndex].Alternatives) {
			log.Debug().
				Int("candidate_index", sel.CandidateIndex).
				Int("alternative_index", sel.AlternativeIndex).
				Msg("Model picked an alternative that does not exist, dropping it")
			continue
		}
		valid = append(valid, sel)
	}
	return valid, nil
}

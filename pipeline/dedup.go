package pipeline

import (
	"context"

	"jatri-ovijog-backend/models"
	"jatri-ovijog-backend/parser"

	"github.com/apex/log"
)

// checkDuplicate asks the LLM whether description reports the same incident
// as one of the candidates. Returns the matched candidate id, or -1 for no
// match. Every failure path returns -1: the submission then proceeds as a
// fresh insert.
func (s *Service) checkDuplicate(ctx context.Context, description string, candidates []models.DuplicateCandidate) int64 {
	if len(candidates) == 0 {
		return -1
	}

	raw, err := s.pool.Do(ctx, "duplicate", s.llmTimeout, func(ctx context.Context) (string, error) {
		return s.llm.CheckDuplicate(ctx, description, candidates)
	})
	if err != nil {
		log.Warnf("duplicate check failed: %v", err)
		return -1
	}

	matchID, err := parser.ParseMatchID(raw)
	if err != nil {
		log.Warnf("duplicate check returned unparseable response: %v", err)
		return -1
	}
	if matchID == -1 {
		return -1
	}

	// The model is only trusted to pick from the candidate set; anything
	// else is treated as no match.
	for _, c := range candidates {
		if c.ID == matchID {
			return matchID
		}
	}
	log.Warnf("duplicate check returned unknown id %d, ignoring", matchID)
	return -1
}

package pipeline

import (
	"context"

	"jatri-ovijog-backend/models"
	"jatri-ovijog-backend/parser"
)

// classify runs the LLM classification on the worker pool and parses the
// verdict.
func (s *Service) classify(ctx context.Context, description string) (*models.Verdict, error) {
	raw, err := s.pool.Do(ctx, "classify", s.llmTimeout, func(ctx context.Context) (string, error) {
		return s.llm.AnalyzeComplaint(ctx, description)
	})
	if err != nil {
		return nil, err
	}
	return parser.ParseVerdict(raw)
}

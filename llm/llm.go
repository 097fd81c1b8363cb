package llm

import (
	"context"

	"jatri-ovijog-backend/models"
)

// Client abstracts the LLM provider used by the complaint pipeline.
// Implementations must be concurrency-safe; all calls block and are expected
// to run on the pipeline's worker pool with a per-call deadline.
type Client interface {
	// AnalyzeComplaint classifies a complaint description and returns the
	// model's raw JSON response (category, priority, is_fake, translated_text).
	AnalyzeComplaint(ctx context.Context, description string) (string, error)
	// CheckDuplicate decides whether description reports the same incident as
	// one of the candidates; returns raw JSON {"match_id": <id or -1>}.
	CheckDuplicate(ctx context.Context, description string, candidates []models.DuplicateCandidate) (string, error)
	// DraftResolutionEmail writes a short citizen-facing message about a
	// resolved complaint. Returns plain text.
	DraftResolutionEmail(ctx context.Context, category, busName, actionTaken string) (string, error)
	// ParseComplaintFromChat extracts structured complaint fields from a
	// free-text story; returns the model's raw JSON response.
	ParseComplaintFromChat(ctx context.Context, text string) (string, error)
	// SourceName returns a short provider label for logs (e.g. "Groq").
	SourceName() string
}

package stubllm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"jatri-ovijog-backend/models"
)

// Client is a deterministic, no-network LLM stub intended for CI and local
// end-to-end tests. It returns schema-valid JSON so downstream parsing and
// datastore writes exercise the full pipeline.
type Client struct {
	// Category and Priority override the classification verdict.
	Category string
	Priority string
	// Fake marks every description as spam.
	Fake bool
	// MatchID is returned from duplicate checks (-1 means no match).
	MatchID int64
	// Err, when set, is returned from every call to simulate provider outages.
	Err error
}

func NewClient() *Client {
	return &Client{Category: models.CategoryOther, Priority: models.PriorityLow, MatchID: -1}
}

func (c *Client) SourceName() string { return "Stub" }

func (c *Client) AnalyzeComplaint(ctx context.Context, description string) (string, error) {
	if c.Err != nil {
		return "", c.Err
	}
	out := map[string]any{
		"category":        c.Category,
		"priority":        c.Priority,
		"is_fake":         c.Fake || looksLikeGibberish(description),
		"translated_text": description,
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *Client) CheckDuplicate(ctx context.Context, description string, candidates []models.DuplicateCandidate) (string, error) {
	if c.Err != nil {
		return "", c.Err
	}
	return fmt.Sprintf(`{"match_id": %d}`, c.MatchID), nil
}

func (c *Client) DraftResolutionEmail(ctx context.Context, category, busName, actionTaken string) (string, error) {
	if c.Err != nil {
		return "", c.Err
	}
	return fmt.Sprintf("Stub draft for %s / %s / %s", category, busName, actionTaken), nil
}

func (c *Client) ParseComplaintFromChat(ctx context.Context, text string) (string, error) {
	if c.Err != nil {
		return "", c.Err
	}
	out := map[string]any{
		"incidentType": "Others",
		"busName":      "",
		"busNumber":    "",
		"location":     "",
		"thana":        "",
		"description":  text,
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func looksLikeGibberish(s string) bool {
	return !strings.ContainsAny(s, " \t") && len(s) > 12
}

package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"jatri-ovijog-backend/metrics"
	"jatri-ovijog-backend/models"
	"jatri-ovijog-backend/supabase"

	"github.com/apex/log"
)

// CreateComplaint runs a submission through the full ingestion pipeline.
// Exactly one datastore mutation happens: either one UPDATE to a matched
// parent complaint, or one INSERT of a new row.
func (s *Service) CreateComplaint(ctx context.Context, sub models.ComplaintSubmission, authHeader string) (supabase.Row, error) {
	if sub.Status != "" {
		if _, ok := models.ValidStatus(sub.Status); !ok {
			return nil, ErrInvalidStatus
		}
	}

	// Duplicate clustering needs the full vehicle identity plus a
	// description; with any of them missing the submission is always a fresh
	// insert.
	if sub.BusName != "" && sub.BusNumber != "" && sub.Description != "" {
		parent, merged, err := s.tryMerge(ctx, sub)
		if err != nil {
			metrics.SubmissionsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		if merged {
			return parent, nil
		}
	}

	row, err := s.insertComplaint(ctx, sub, authHeader)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.SubmissionsTotal.WithLabelValues("inserted").Inc()
	return row, nil
}

// tryMerge looks for an open complaint on the same vehicle describing the
// same incident and appends the new description to it. Failures before a
// match is accepted return merged=false and the submission proceeds as a
// fresh insert: clustering is an optimization there. Once a match is
// accepted, the merge IS the primary write; a failed update must surface
// rather than fall through to an insert, which could double-write.
func (s *Service) tryMerge(ctx context.Context, sub models.ComplaintSubmission) (supabase.Row, bool, error) {
	open, err := s.store.OpenComplaintsByBus(ctx, sub.BusName, sub.BusNumber)
	if err != nil {
		log.Warnf("duplicate check: candidate lookup failed for (%s, %s): %v", sub.BusName, sub.BusNumber, err)
		return nil, false, nil
	}
	if len(open) == 0 {
		return nil, false, nil
	}

	candidates := make([]models.DuplicateCandidate, 0, len(open))
	byID := make(map[int64]supabase.Row, len(open))
	for _, row := range open {
		id := row.Int64("id")
		candidates = append(candidates, models.DuplicateCandidate{ID: id, Description: row.String("description")})
		byID[id] = row
	}

	matchID := s.checkDuplicate(ctx, sub.Description, candidates)
	if matchID == -1 {
		return nil, false, nil
	}

	parent := byID[matchID]
	log.Infof("duplicate complaint detected, merging into id=%d", matchID)

	// Append the new report to the parent's description; no other parent
	// field changes.
	stamp := s.now().Format("2006-01-02T15:04:05")
	newDesc := fmt.Sprintf("%s\n\n[Duplicate Report %s]: %s", parent.String("description"), stamp, sub.Description)

	updated, err := s.store.UpdateComplaint(ctx, matchID, map[string]any{"description": newDesc})
	if err != nil {
		log.Errorf("duplicate merge: update of parent %d failed: %v", matchID, err)
		return nil, false, fmt.Errorf("failed to merge into complaint %d: %w", matchID, err)
	}
	metrics.SubmissionsTotal.WithLabelValues("merged").Inc()
	return updated, true, nil
}

// insertComplaint classifies the submission, reconciles the verdict with
// caller input and inserts the row.
func (s *Service) insertComplaint(ctx context.Context, sub models.ComplaintSubmission, authHeader string) (supabase.Row, error) {
	payload := normalize(sub)
	s.applyVerdict(ctx, payload, sub)
	payload["user_id"] = s.resolveUserID(authHeader, sub.UserID)
	// created_at is server-assigned; the caller's value is ignored.
	payload["created_at"] = s.now().UTC().Format(time.RFC3339)

	return s.store.CreateComplaint(ctx, payload)
}

// normalize maps the caller-facing camelCase fields onto datastore column
// names. Only whitelisted fields survive, preventing mass-assignment.
func normalize(sub models.ComplaintSubmission) map[string]any {
	payload := map[string]any{}
	put := func(key, value string) {
		if value != "" {
			payload[key] = value
		}
	}
	put("description", sub.Description)
	put("bus_name", sub.BusName)
	put("bus_number", sub.BusNumber)
	put("route", sub.Route)
	put("thana", sub.Thana)
	put("landmark", sub.Landmark)
	put("seat_info", sub.SeatInfo)
	put("company_name", sub.CompanyName)
	put("image_url", sub.ImageURL)
	put("reporter_type", sub.ReporterType)
	put("reporter_name", sub.ReporterName)
	put("reporter_email", sub.ReporterEmail)
	put("reporter_phone", sub.ReporterPhone)

	if sub.Latitude != nil {
		payload["latitude"] = *sub.Latitude
	}
	if sub.Longitude != nil {
		payload["longitude"] = *sub.Longitude
	}
	if sub.Accuracy != nil {
		payload["accuracy"] = *sub.Accuracy
	}
	return payload
}

// applyVerdict classifies the description and reconciles the verdict with
// the caller-supplied category and status. LLM failures are absorbed: the
// pipeline has a meaningful default for every LLM-derived field.
func (s *Service) applyVerdict(ctx context.Context, payload map[string]any, sub models.ComplaintSubmission) {
	if sub.Description == "" {
		// No description, nothing to classify.
		payload["priority"] = models.PriorityLow
		payload["status"] = callerStatusOr(sub.Status, models.StatusNew)
		if sub.Category != "" {
			payload["category"] = sub.Category
		}
		return
	}

	verdict, err := s.classify(ctx, sub.Description)
	if err != nil {
		log.Warnf("classifier failed, using fallback verdict: %v", err)
		payload["priority"] = models.PriorityLow
		payload["status"] = callerStatusOr(sub.Status, models.StatusNew)
		payload["category"] = callerCategoryOr(sub.Category, "General")
		return
	}

	if verdict.IsFake {
		log.Infof("complaint flagged as fake, marking as spam")
		payload["status"] = models.StatusFake
		payload["priority"] = models.PriorityLow
		payload["category"] = models.CategoryOther
		return
	}

	payload["priority"] = verdict.Priority
	payload["status"] = callerStatusOr(sub.Status, models.StatusNew)
	payload["category"] = callerCategoryOr(sub.Category, verdict.Category)
}

// resolveUserID picks the submitter identity: a verified bearer claim wins,
// then the caller-supplied userId, then the anonymous sentinel. An
// unverifiable token is silently ignored so anonymous reporters are never
// rejected.
func (s *Service) resolveUserID(authHeader string, callerID *int64) int64 {
	if token := bearerToken(authHeader); token != "" {
		if userID, err := s.tokens.ValidateToken(token); err == nil {
			return userID
		}
	}
	if callerID != nil {
		return *callerID
	}
	return fallbackUserID
}

func bearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) > len(prefix) && authHeader[:len(prefix)] == prefix {
		return strings.TrimSpace(authHeader[len(prefix):])
	}
	return ""
}

func callerStatusOr(status, def string) string {
	if canonical, ok := models.ValidStatus(status); ok {
		return canonical
	}
	return def
}

func callerCategoryOr(category, def string) string {
	if category != "" {
		return category
	}
	return def
}

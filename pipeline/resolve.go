package pipeline

import (
	"context"
	"fmt"

	"jatri-ovijog-backend/models"
	"jatri-ovijog-backend/supabase"

	"github.com/apex/log"
)

// ResolveComplaint marks a complaint resolved, drafts a citizen-facing
// message and dispatches it to the reporter by email. The email leaves on the
// background dispatcher; the response never waits for delivery.
func (s *Service) ResolveComplaint(ctx context.Context, id int64, actionTaken, busName, category string) (supabase.Row, error) {
	row, err := s.UpdateStatus(ctx, id, models.StatusResolved, actionTaken)
	if err != nil {
		return nil, err
	}

	reporterEmail := row.String("reporter_email")
	if reporterEmail == "" {
		log.Warnf("no reporter_email on complaint #%d, skipping notification", id)
		return row, nil
	}

	body, draftErr := s.pool.Do(ctx, "draft", s.llmTimeout, func(ctx context.Context) (string, error) {
		return s.llm.DraftResolutionEmail(ctx, category, busName, actionTaken)
	})
	if draftErr != nil || body == "" {
		log.Warnf("email draft failed for complaint #%d, using static fallback: %v", id, draftErr)
		body = fmt.Sprintf("Dear Citizen, your complaint regarding %s has been resolved. Action: %s", busName, actionTaken)
	}

	subject := fmt.Sprintf("Complaint Resolved: Jatri Ovijog #%d", id)
	s.mailer.Enqueue(reporterEmail, subject, body)
	return row, nil
}

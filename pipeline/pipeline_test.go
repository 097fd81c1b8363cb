package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"jatri-ovijog-backend/auth"
	"jatri-ovijog-backend/llm"
	"jatri-ovijog-backend/models"
	"jatri-ovijog-backend/stubllm"
	"jatri-ovijog-backend/supabase"
)

// fakeRest is an in-memory PostgREST double. It records every mutation so
// tests can assert that the pipeline performed exactly one write.
type fakeRest struct {
	mu          sync.Mutex
	openRows    []supabase.Row
	patchRow    supabase.Row
	patchStatus int // non-zero makes every PATCH fail with this status

	gets       int
	posts      int
	patches    int
	lastInsert map[string]any
	lastPatch  map[string]any
}

func (f *fakeRest) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			f.gets++
			json.NewEncoder(w).Encode(f.openRows)
		case http.MethodPost:
			f.posts++
			payload := map[string]any{}
			json.NewDecoder(r.Body).Decode(&payload)
			f.lastInsert = payload
			resp := map[string]any{"id": 101}
			for k, v := range payload {
				resp[k] = v
			}
			json.NewEncoder(w).Encode([]map[string]any{resp})
		case http.MethodPatch:
			f.patches++
			if f.patchStatus != 0 {
				w.WriteHeader(f.patchStatus)
				w.Write([]byte(`{"message":"internal error"}`))
				return
			}
			payload := map[string]any{}
			json.NewDecoder(r.Body).Decode(&payload)
			f.lastPatch = payload
			if f.patchRow == nil {
				json.NewEncoder(w).Encode([]supabase.Row{})
				return
			}
			resp := supabase.Row{}
			for k, v := range f.patchRow {
				resp[k] = v
			}
			for k, v := range payload {
				resp[k] = v
			}
			json.NewEncoder(w).Encode([]supabase.Row{resp})
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})
}

func (f *fakeRest) counts() (gets, posts, patches int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets, f.posts, f.patches
}

type capturedMail struct {
	to      string
	subject string
	body    string
}

type captureSender struct {
	mu    sync.Mutex
	mails []capturedMail
}

func (c *captureSender) Send(to, subject, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mails = append(c.mails, capturedMail{to: to, subject: subject, body: body})
	return nil
}

// countingLLM wraps the stub client and counts which calls actually happen.
type countingLLM struct {
	*stubllm.Client
	mu        sync.Mutex
	analyze   int
	duplicate int
}

func (c *countingLLM) AnalyzeComplaint(ctx context.Context, description string) (string, error) {
	c.mu.Lock()
	c.analyze++
	c.mu.Unlock()
	return c.Client.AnalyzeComplaint(ctx, description)
}

func (c *countingLLM) CheckDuplicate(ctx context.Context, description string, candidates []models.DuplicateCandidate) (string, error) {
	c.mu.Lock()
	c.duplicate++
	c.mu.Unlock()
	return c.Client.CheckDuplicate(ctx, description, candidates)
}

type testEnv struct {
	svc    *Service
	rest   *fakeRest
	mailer *captureSender
	dsp    *Dispatcher
	tokens *auth.TokenManager
}

func newTestEnv(t *testing.T, client llm.Client) *testEnv {
	t.Helper()
	rest := &fakeRest{}
	server := httptest.NewServer(rest.handler())
	t.Cleanup(server.Close)

	mailer := &captureSender{}
	dsp := NewDispatcher(mailer, 8, 1)
	tokens := auth.NewTokenManager("test-secret")

	store := supabase.New(server.URL, "anon", "", 5*time.Second)
	svc := NewService(store, client, tokens, dsp, 2, 2*time.Second)
	svc.now = func() time.Time { return time.Date(2025, 5, 4, 10, 30, 0, 0, time.UTC) }

	return &testEnv{svc: svc, rest: rest, mailer: mailer, dsp: dsp, tokens: tokens}
}

// drainMail stops the dispatcher and returns everything it delivered.
func (e *testEnv) drainMail() []capturedMail {
	e.dsp.Close()
	e.mailer.mu.Lock()
	defer e.mailer.mu.Unlock()
	return e.mailer.mails
}

func TestCreateComplaintFakeVerdict(t *testing.T) {
	stub := stubllm.NewClient()
	stub.Fake = true
	stub.Category = "Pickpocketing / Theft"
	stub.Priority = models.PriorityHigh
	env := newTestEnv(t, stub)

	sub := models.ComplaintSubmission{
		Description: "win free taka click this link now",
		Category:    "Harassment (verbal/physical)",
		Status:      "working",
	}
	if _, err := env.svc.CreateComplaint(context.Background(), sub, ""); err != nil {
		t.Fatalf("CreateComplaint() error = %v", err)
	}

	_, posts, patches := env.rest.counts()
	if posts != 1 || patches != 0 {
		t.Fatalf("writes = %d inserts, %d updates; want exactly one insert", posts, patches)
	}

	row := env.rest.lastInsert
	if row["status"] != models.StatusFake {
		t.Errorf("status = %v, want fake", row["status"])
	}
	if row["priority"] != models.PriorityLow {
		t.Errorf("priority = %v, want Low", row["priority"])
	}
	if row["category"] != models.CategoryOther {
		t.Errorf("category = %v, want Other", row["category"])
	}
}

func TestCreateComplaintVerdictApplied(t *testing.T) {
	stub := stubllm.NewClient()
	stub.Category = "Reckless / Speeding / Racing"
	stub.Priority = models.PriorityHigh
	env := newTestEnv(t, stub)

	sub := models.ComplaintSubmission{Description: "driver was racing another bus"}
	if _, err := env.svc.CreateComplaint(context.Background(), sub, ""); err != nil {
		t.Fatalf("CreateComplaint() error = %v", err)
	}

	row := env.rest.lastInsert
	if row["category"] != "Reckless / Speeding / Racing" {
		t.Errorf("category = %v", row["category"])
	}
	if row["priority"] != models.PriorityHigh {
		t.Errorf("priority = %v, want High", row["priority"])
	}
	if row["status"] != models.StatusNew {
		t.Errorf("status = %v, want new", row["status"])
	}
	if row["created_at"] != "2025-05-04T10:30:00Z" {
		t.Errorf("created_at = %v, want server-assigned timestamp", row["created_at"])
	}
	if got, ok := row["user_id"].(float64); !ok || int64(got) != fallbackUserID {
		t.Errorf("user_id = %v, want anonymous sentinel %d", row["user_id"], fallbackUserID)
	}
}

func TestCreateComplaintCallerCategoryWins(t *testing.T) {
	stub := stubllm.NewClient()
	stub.Category = "Reckless / Speeding / Racing"
	stub.Priority = models.PriorityMedium
	env := newTestEnv(t, stub)

	sub := models.ComplaintSubmission{
		Description: "conductor demanded double fare",
		Category:    "Fare Dispute / Overcharging",
	}
	if _, err := env.svc.CreateComplaint(context.Background(), sub, ""); err != nil {
		t.Fatalf("CreateComplaint() error = %v", err)
	}

	if got := env.rest.lastInsert["category"]; got != "Fare Dispute / Overcharging" {
		t.Errorf("category = %v, want caller-supplied category", got)
	}
}

func TestCreateComplaintInvalidStatus(t *testing.T) {
	env := newTestEnv(t, stubllm.NewClient())

	sub := models.ComplaintSubmission{Description: "late bus", Status: "archived"}
	_, err := env.svc.CreateComplaint(context.Background(), sub, "")
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("CreateComplaint() error = %v, want ErrInvalidStatus", err)
	}

	gets, posts, patches := env.rest.counts()
	if gets+posts+patches != 0 {
		t.Errorf("datastore touched (%d/%d/%d requests) despite invalid status", gets, posts, patches)
	}
}

func TestCreateComplaintEmptyDescriptionSkipsClassifier(t *testing.T) {
	counting := &countingLLM{Client: stubllm.NewClient()}
	counting.Err = errors.New("provider down")
	env := newTestEnv(t, counting)

	sub := models.ComplaintSubmission{Category: "Other", BusName: "Raida"}
	if _, err := env.svc.CreateComplaint(context.Background(), sub, ""); err != nil {
		t.Fatalf("CreateComplaint() error = %v", err)
	}

	if counting.analyze != 0 {
		t.Errorf("classifier called %d times for empty description", counting.analyze)
	}
	row := env.rest.lastInsert
	if row["priority"] != models.PriorityLow {
		t.Errorf("priority = %v, want Low", row["priority"])
	}
	if row["category"] != "Other" {
		t.Errorf("category = %v, want caller's", row["category"])
	}
	if row["status"] != models.StatusNew {
		t.Errorf("status = %v, want new", row["status"])
	}
}

func TestCreateComplaintClassifierFailureFallback(t *testing.T) {
	stub := stubllm.NewClient()
	stub.Err = errors.New("rate limited")
	env := newTestEnv(t, stub)

	sub := models.ComplaintSubmission{Description: "bus skipped my stop"}
	if _, err := env.svc.CreateComplaint(context.Background(), sub, ""); err != nil {
		t.Fatalf("CreateComplaint() error = %v", err)
	}

	row := env.rest.lastInsert
	if row["priority"] != models.PriorityLow {
		t.Errorf("priority = %v, want Low", row["priority"])
	}
	if row["category"] != "General" {
		t.Errorf("category = %v, want General", row["category"])
	}
	if row["status"] != models.StatusNew {
		t.Errorf("status = %v, want new", row["status"])
	}
}

func TestCreateComplaintClassifierFailureKeepsCallerCategory(t *testing.T) {
	stub := stubllm.NewClient()
	stub.Err = errors.New("rate limited")
	env := newTestEnv(t, stub)

	sub := models.ComplaintSubmission{
		Description: "bus skipped my stop",
		Category:    "Skipping Stops / Not Stopping at Stand",
	}
	if _, err := env.svc.CreateComplaint(context.Background(), sub, ""); err != nil {
		t.Fatalf("CreateComplaint() error = %v", err)
	}

	if got := env.rest.lastInsert["category"]; got != "Skipping Stops / Not Stopping at Stand" {
		t.Errorf("category = %v, want caller's category on fallback", got)
	}
}

func TestCreateComplaintVerifiedTokenWins(t *testing.T) {
	env := newTestEnv(t, stubllm.NewClient())

	token, err := env.tokens.IssueToken(77, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	callerID := int64(12)
	sub := models.ComplaintSubmission{Description: "late bus", UserID: &callerID}
	if _, err := env.svc.CreateComplaint(context.Background(), sub, "Bearer "+token); err != nil {
		t.Fatalf("CreateComplaint() error = %v", err)
	}

	if got, _ := env.rest.lastInsert["user_id"].(float64); int64(got) != 77 {
		t.Errorf("user_id = %v, want verified claim 77", env.rest.lastInsert["user_id"])
	}
}

func TestCreateComplaintTokenWhitespaceTrimmed(t *testing.T) {
	env := newTestEnv(t, stubllm.NewClient())

	token, err := env.tokens.IssueToken(77, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	sub := models.ComplaintSubmission{Description: "late bus"}
	if _, err := env.svc.CreateComplaint(context.Background(), sub, "Bearer "+token+" "); err != nil {
		t.Fatalf("CreateComplaint() error = %v", err)
	}

	if got, _ := env.rest.lastInsert["user_id"].(float64); int64(got) != 77 {
		t.Errorf("user_id = %v, want verified claim 77 despite padded header", env.rest.lastInsert["user_id"])
	}
}

func TestCreateComplaintInvalidTokenIgnored(t *testing.T) {
	env := newTestEnv(t, stubllm.NewClient())

	callerID := int64(12)
	sub := models.ComplaintSubmission{Description: "late bus", UserID: &callerID}
	if _, err := env.svc.CreateComplaint(context.Background(), sub, "Bearer not-a-token"); err != nil {
		t.Fatalf("CreateComplaint() error = %v", err)
	}

	if got, _ := env.rest.lastInsert["user_id"].(float64); int64(got) != 12 {
		t.Errorf("user_id = %v, want caller-supplied 12", env.rest.lastInsert["user_id"])
	}
}

func TestNormalizeDropsEmptyAndUnknownFields(t *testing.T) {
	lat := 23.8103
	payload := normalize(models.ComplaintSubmission{
		Description: "overcrowded",
		BusName:     "Bikolpo",
		Latitude:    &lat,
	})

	if payload["description"] != "overcrowded" || payload["bus_name"] != "Bikolpo" {
		t.Errorf("payload missing whitelisted fields: %v", payload)
	}
	if payload["latitude"] != lat {
		t.Errorf("latitude = %v, want %v", payload["latitude"], lat)
	}
	if _, ok := payload["bus_number"]; ok {
		t.Error("empty bus_number should be omitted")
	}
	if _, ok := payload["route"]; ok {
		t.Error("empty route should be omitted")
	}
}

func TestDuplicateMerge(t *testing.T) {
	stub := stubllm.NewClient()
	stub.MatchID = 7
	env := newTestEnv(t, stub)
	env.rest.openRows = []supabase.Row{
		{"id": float64(7), "description": "driver was speeding near Shahbag", "status": "new"},
	}
	env.rest.patchRow = supabase.Row{"id": float64(7), "status": "new"}

	sub := models.ComplaintSubmission{
		Description: "same bus speeding at Shahbag again",
		BusName:     "Raida",
		BusNumber:   "Ga-1544",
	}
	row, err := env.svc.CreateComplaint(context.Background(), sub, "")
	if err != nil {
		t.Fatalf("CreateComplaint() error = %v", err)
	}
	if row.Int64("id") != 7 {
		t.Errorf("returned row id = %d, want parent 7", row.Int64("id"))
	}

	_, posts, patches := env.rest.counts()
	if posts != 0 || patches != 1 {
		t.Fatalf("writes = %d inserts, %d updates; want exactly one update", posts, patches)
	}

	want := "driver was speeding near Shahbag\n\n[Duplicate Report 2025-05-04T10:30:00]: same bus speeding at Shahbag again"
	if got := env.rest.lastPatch["description"]; got != want {
		t.Errorf("merged description = %q, want %q", got, want)
	}
	if len(env.rest.lastPatch) != 1 {
		t.Errorf("merge changed fields %v, want description only", env.rest.lastPatch)
	}
}

func TestDuplicateMergeFailureSurfaced(t *testing.T) {
	stub := stubllm.NewClient()
	stub.MatchID = 7
	env := newTestEnv(t, stub)
	env.rest.openRows = []supabase.Row{
		{"id": float64(7), "description": "driver was speeding", "status": "new"},
	}
	env.rest.patchStatus = http.StatusInternalServerError

	sub := models.ComplaintSubmission{
		Description: "same bus speeding again",
		BusName:     "Raida",
		BusNumber:   "Ga-1544",
	}
	_, err := env.svc.CreateComplaint(context.Background(), sub, "")
	if err == nil {
		t.Fatal("CreateComplaint() returned nil error despite failed merge update")
	}

	// The update may have been applied server-side before the error; a
	// follow-up insert would double-write the report.
	_, posts, patches := env.rest.counts()
	if posts != 0 {
		t.Errorf("inserts = %d after failed merge, want 0", posts)
	}
	if patches != 1 {
		t.Errorf("updates = %d, want 1", patches)
	}
}

func TestDuplicateNoCandidatesSkipsLLM(t *testing.T) {
	counting := &countingLLM{Client: stubllm.NewClient()}
	env := newTestEnv(t, counting)

	sub := models.ComplaintSubmission{
		Description: "overcrowded bus",
		BusName:     "Raida",
		BusNumber:   "Ga-1544",
	}
	if _, err := env.svc.CreateComplaint(context.Background(), sub, ""); err != nil {
		t.Fatalf("CreateComplaint() error = %v", err)
	}

	if counting.duplicate != 0 {
		t.Errorf("duplicate check called %d times with no candidates", counting.duplicate)
	}
	_, posts, _ := env.rest.counts()
	if posts != 1 {
		t.Errorf("inserts = %d, want 1", posts)
	}
}

func TestDuplicateUnknownMatchIgnored(t *testing.T) {
	stub := stubllm.NewClient()
	stub.MatchID = 99
	env := newTestEnv(t, stub)
	env.rest.openRows = []supabase.Row{
		{"id": float64(7), "description": "driver was speeding", "status": "new"},
	}

	sub := models.ComplaintSubmission{
		Description: "another speeding report",
		BusName:     "Raida",
		BusNumber:   "Ga-1544",
	}
	if _, err := env.svc.CreateComplaint(context.Background(), sub, ""); err != nil {
		t.Fatalf("CreateComplaint() error = %v", err)
	}

	_, posts, patches := env.rest.counts()
	if posts != 1 || patches != 0 {
		t.Errorf("writes = %d inserts, %d updates; want a fresh insert", posts, patches)
	}
}

func TestDuplicateCheckFailureFallsBackToInsert(t *testing.T) {
	stub := stubllm.NewClient()
	stub.Err = errors.New("provider down")
	env := newTestEnv(t, stub)
	env.rest.openRows = []supabase.Row{
		{"id": float64(7), "description": "driver was speeding", "status": "new"},
	}

	sub := models.ComplaintSubmission{
		Description: "another speeding report",
		BusName:     "Raida",
		BusNumber:   "Ga-1544",
	}
	if _, err := env.svc.CreateComplaint(context.Background(), sub, ""); err != nil {
		t.Fatalf("CreateComplaint() error = %v", err)
	}

	_, posts, patches := env.rest.counts()
	if posts != 1 || patches != 0 {
		t.Errorf("writes = %d inserts, %d updates; want a fresh insert", posts, patches)
	}
}

func TestDuplicateSkippedWithoutBusIdentity(t *testing.T) {
	counting := &countingLLM{Client: stubllm.NewClient()}
	env := newTestEnv(t, counting)
	env.rest.openRows = []supabase.Row{
		{"id": float64(7), "description": "driver was speeding", "status": "new"},
	}

	sub := models.ComplaintSubmission{Description: "speeding", BusName: "Raida"}
	if _, err := env.svc.CreateComplaint(context.Background(), sub, ""); err != nil {
		t.Fatalf("CreateComplaint() error = %v", err)
	}

	gets, posts, _ := env.rest.counts()
	if gets != 0 {
		t.Errorf("candidate lookup ran %d times without full bus identity", gets)
	}
	if counting.duplicate != 0 {
		t.Errorf("duplicate check called %d times", counting.duplicate)
	}
	if posts != 1 {
		t.Errorf("inserts = %d, want 1", posts)
	}
}

func TestUpdateStatusResolvedDropsPriority(t *testing.T) {
	env := newTestEnv(t, stubllm.NewClient())
	env.rest.patchRow = supabase.Row{"id": float64(5)}

	if _, err := env.svc.UpdateStatus(context.Background(), 5, "Resolved", "fined the operator"); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	patch := env.rest.lastPatch
	if patch["status"] != models.StatusResolved {
		t.Errorf("status = %v, want resolved", patch["status"])
	}
	if patch["priority"] != models.PriorityLow {
		t.Errorf("priority = %v, want Low", patch["priority"])
	}
	if patch["verification_note"] != "fined the operator" {
		t.Errorf("verification_note = %v", patch["verification_note"])
	}
}

func TestUpdateStatusInvalid(t *testing.T) {
	env := newTestEnv(t, stubllm.NewClient())

	_, err := env.svc.UpdateStatus(context.Background(), 5, "archived", "")
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("UpdateStatus() error = %v, want ErrInvalidStatus", err)
	}

	_, _, patches := env.rest.counts()
	if patches != 0 {
		t.Errorf("updates = %d, want 0 for invalid status", patches)
	}
}

func TestUpdateStatusNotFound(t *testing.T) {
	env := newTestEnv(t, stubllm.NewClient())

	_, err := env.svc.UpdateStatus(context.Background(), 999, "working", "")
	if !errors.Is(err, supabase.ErrNotFound) {
		t.Errorf("UpdateStatus() error = %v, want ErrNotFound", err)
	}
}

func TestResolveComplaintSendsEmail(t *testing.T) {
	env := newTestEnv(t, stubllm.NewClient())
	env.rest.patchRow = supabase.Row{"id": float64(5), "reporter_email": "rider@example.com"}

	_, err := env.svc.ResolveComplaint(context.Background(), 5, "fined the operator", "Raida", "Fare Dispute / Overcharging")
	if err != nil {
		t.Fatalf("ResolveComplaint() error = %v", err)
	}

	mails := env.drainMail()
	if len(mails) != 1 {
		t.Fatalf("delivered %d mails, want 1", len(mails))
	}
	if mails[0].to != "rider@example.com" {
		t.Errorf("mail to = %q", mails[0].to)
	}
	if mails[0].subject != "Complaint Resolved: Jatri Ovijog #5" {
		t.Errorf("subject = %q", mails[0].subject)
	}
	if !strings.Contains(mails[0].body, "Raida") {
		t.Errorf("body = %q, want bus name included", mails[0].body)
	}
}

func TestResolveComplaintDraftFallback(t *testing.T) {
	stub := stubllm.NewClient()
	stub.Err = errors.New("provider down")
	env := newTestEnv(t, stub)
	env.rest.patchRow = supabase.Row{"id": float64(5), "reporter_email": "rider@example.com"}

	_, err := env.svc.ResolveComplaint(context.Background(), 5, "fined the operator", "Raida", "Other")
	if err != nil {
		t.Fatalf("ResolveComplaint() error = %v", err)
	}

	mails := env.drainMail()
	if len(mails) != 1 {
		t.Fatalf("delivered %d mails, want 1", len(mails))
	}
	want := "Dear Citizen, your complaint regarding Raida has been resolved. Action: fined the operator"
	if mails[0].body != want {
		t.Errorf("body = %q, want static fallback", mails[0].body)
	}
}

func TestResolveComplaintNoReporterEmail(t *testing.T) {
	env := newTestEnv(t, stubllm.NewClient())
	env.rest.patchRow = supabase.Row{"id": float64(5)}

	if _, err := env.svc.ResolveComplaint(context.Background(), 5, "warned the driver", "Raida", "Other"); err != nil {
		t.Fatalf("ResolveComplaint() error = %v", err)
	}
	if mails := env.drainMail(); len(mails) != 0 {
		t.Errorf("delivered %d mails without a reporter address", len(mails))
	}
}

func TestResolveComplaintStatusFailureSendsNothing(t *testing.T) {
	env := newTestEnv(t, stubllm.NewClient())

	_, err := env.svc.ResolveComplaint(context.Background(), 999, "n/a", "Raida", "Other")
	if !errors.Is(err, supabase.ErrNotFound) {
		t.Fatalf("ResolveComplaint() error = %v, want ErrNotFound", err)
	}
	if mails := env.drainMail(); len(mails) != 0 {
		t.Errorf("delivered %d mails despite failed status update", len(mails))
	}
}

func TestParseChat(t *testing.T) {
	env := newTestEnv(t, stubllm.NewClient())

	form, err := env.svc.ParseChat(context.Background(), "the Raida bus driver was rude at Farmgate")
	if err != nil {
		t.Fatalf("ParseChat() error = %v", err)
	}
	if form.Description != "the Raida bus driver was rude at Farmgate" {
		t.Errorf("Description = %q", form.Description)
	}
}

package models

import "strings"

// Complaint status values accepted by the datastore.
const (
	StatusNew      = "new"
	StatusWorking  = "working"
	StatusResolved = "resolved"
	StatusFake     = "fake"
)

// Complaint priority values.
const (
	PriorityHigh   = "High"
	PriorityMedium = "Medium"
	PriorityLow    = "Low"
)

// CategoryOther is the default complaint category.
const CategoryOther = "Other"

// Categories is the closed set of complaint categories.
var Categories = []string{
	"Fare Dispute / Overcharging",
	"Harassment (verbal/physical)",
	"Women/Reserved Seat Violation",
	"Reckless / Speeding / Racing",
	"Driving Under Influence (suspected)",
	"Overcrowding / Door Hanging",
	"Skipping Stops / Not Stopping at Stand",
	"Illegal / Random Stoppage",
	"Unsafe Bus Condition (no fitness)",
	"Pickpocketing / Theft",
	"Staff Misbehaviour / Abuse",
	"Corrupt Ticketing / Fake Receipts",
	CategoryOther,
}

// ValidStatus reports whether s (trimmed, lowercased) is one of the four
// allowed status values, returning the canonical form.
func ValidStatus(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case StatusNew, StatusWorking, StatusResolved, StatusFake:
		return s, true
	}
	return "", false
}

// ComplaintSubmission is the caller-facing complaint payload. Field names
// follow the mobile client's camelCase convention; intake maps them onto the
// datastore's snake_case columns. Unknown fields are dropped on bind.
type ComplaintSubmission struct {
	Description   string   `json:"description"`
	BusName       string   `json:"busName"`
	BusNumber     string   `json:"busNumber"`
	Route         string   `json:"route"`
	Thana         string   `json:"thana"`
	Landmark      string   `json:"landmark"`
	SeatInfo      string   `json:"seatInfo"`
	CompanyName   string   `json:"companyName"`
	ImageURL      string   `json:"imageUrl"`
	Category      string   `json:"category"`
	Status        string   `json:"status"`
	ReporterType  string   `json:"reporterType"`
	ReporterName  string   `json:"reporterName"`
	ReporterEmail string   `json:"reporterEmail"`
	ReporterPhone string   `json:"reporterPhone"`
	UserID        *int64   `json:"userId"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	Accuracy      *float64 `json:"accuracy"`
	// CreatedAt is accepted for wire compatibility but ignored; the server
	// assigns created_at itself.
	CreatedAt string `json:"createdAt"`
}

// Verdict is the classifier's output for a complaint description.
type Verdict struct {
	Category       string `json:"category"`
	Priority       string `json:"priority"`
	IsFake         bool   `json:"is_fake"`
	TranslatedText string `json:"translated_text"`
}

// DuplicateCandidate is an open complaint considered by the duplicate
// clusterer.
type DuplicateCandidate struct {
	ID          int64
	Description string
}

// ChatForm is the structured complaint extracted from a free-text story.
type ChatForm struct {
	IncidentType string `json:"incidentType"`
	BusName      string `json:"busName"`
	BusNumber    string `json:"busNumber"`
	Location     string `json:"location"`
	Thana        string `json:"thana"`
	Description  string `json:"description"`
}

package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"jatri-ovijog-backend/models"
)

const groqEndpoint = "https://api.groq.com/openai/v1/chat/completions"

// maxResponseBody caps completion response bodies; a well-formed completion
// is a few KiB.
const maxResponseBody = 1 * 1024 * 1024

const promptClassify = `You are a complaint analysis AI for Jatri Ovijog, a bus safety app in Dhaka. Analyze the user's passenger complaint.
The complaint may be written in Bangla, Banglish (romanized Bangla) or English. First translate it to English for your own reasoning.
Return a strict JSON object with these 4 fields:
1. "category": Choose the BEST fit from this list:
   - "Fare Dispute / Overcharging"
   - "Harassment (verbal/physical)"
   - "Women/Reserved Seat Violation"
   - "Reckless / Speeding / Racing"
   - "Driving Under Influence (suspected)"
   - "Overcrowding / Door Hanging"
   - "Skipping Stops / Not Stopping at Stand"
   - "Illegal / Random Stoppage"
   - "Unsafe Bus Condition (no fitness)"
   - "Pickpocketing / Theft"
   - "Staff Misbehaviour / Abuse"
   - "Corrupt Ticketing / Fake Receipts"
   - "Other"
2. "priority": "High" (dangerous/violence), "Medium" (service/money issues), "Low" (minor).
3. "is_fake": true (if spam/gibberish) or false.
4. "translated_text": the English translation of the complaint (copy the input unchanged if it is already English).
Return JSON ONLY.`

const promptDuplicate = `You are a duplicate-incident detector for a bus complaint system.
You are given a NEW complaint description and a list of OPEN complaints about the same bus.
Decide whether the new description reports the SAME incident as one of the open complaints.
If it does, return that complaint's id; if it matches several, prefer the most recent (highest) id.
If it describes a different incident, return -1.
Return ONLY a JSON object: {"match_id": <id or -1>}`

const promptParseChat = `You are a Complaint Parser for a bus safety app in Dhaka. Extract details from the user's story.
Return ONLY a JSON object with these exact keys (use null if not found):
- "incidentType": Choose closest from [Fare Dispute / Overcharging, Harassment (verbal/physical), Reckless / Speeding / Racing, Others]
- "busName": String (e.g. Raida, Bikolpo)
- "busNumber": String (e.g. Dhaka Metro Ga-1544)
- "location": String (Specific landmark e.g. Farmgate, Shahbag)
- "thana": String (Best guess Dhaka Thana e.g. Mirpur, Gulshan, Dhanmondi)
- "description": String (A polite, clear summary of what happened)

JSON ONLY. No markdown.`

const promptDraftEmail = `You write short, formal notification emails for Jatri Ovijog, a citizen bus-safety service in Dhaka.
The recipient reported a bus complaint that the authorities have now resolved.
Write the email body only: 3-5 sentences, polite, no subject line, no markdown, signed "Jatri Ovijog Team".`

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Messages       []message       `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client calls Groq's OpenAI-compatible chat-completions API.
type Client struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewClient creates a new Groq client. The per-call deadline comes from the
// caller's context; the HTTP client itself carries no timeout.
func NewClient(apiKey, model string) *Client {
	return &Client{
		apiKey:   apiKey,
		model:    model,
		endpoint: groqEndpoint,
		client:   &http.Client{},
	}
}

// NewClientWithEndpoint points the client at a non-default completions URL.
// Used by tests against a local fake.
func NewClientWithEndpoint(apiKey, model, endpoint string) *Client {
	c := NewClient(apiKey, model)
	c.endpoint = endpoint
	return c
}

// SourceName identifies this provider in logs
func (c *Client) SourceName() string {
	return "Groq"
}

// chat sends one completion request and returns choices[0].message.content.
func (c *Client) chat(ctx context.Context, jsonMode bool, system, user string) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	if jsonMode {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return chatResp.Choices[0].Message.Content, nil
}

// AnalyzeComplaint classifies a complaint description.
func (c *Client) AnalyzeComplaint(ctx context.Context, description string) (string, error) {
	return c.chat(ctx, true, promptClassify, description)
}

// CheckDuplicate asks the model whether description matches an open candidate.
func (c *Client) CheckDuplicate(ctx context.Context, description string, candidates []models.DuplicateCandidate) (string, error) {
	var sb strings.Builder
	sb.WriteString("NEW COMPLAINT:\n")
	sb.WriteString(description)
	sb.WriteString("\n\nOPEN COMPLAINTS:\n")
	for _, cand := range candidates {
		fmt.Fprintf(&sb, "- [ID: %d] %s\n", cand.ID, cand.Description)
	}
	return c.chat(ctx, true, promptDuplicate, sb.String())
}

// DraftResolutionEmail writes the citizen-facing resolution message.
func (c *Client) DraftResolutionEmail(ctx context.Context, category, busName, actionTaken string) (string, error) {
	user := fmt.Sprintf("Complaint category: %s\nBus: %s\nAction taken by authorities: %s", category, busName, actionTaken)
	return c.chat(ctx, false, promptDraftEmail, user)
}

// ParseComplaintFromChat extracts form fields from a free-text story.
func (c *Client) ParseComplaintFromChat(ctx context.Context, text string) (string, error) {
	return c.chat(ctx, true, promptParseChat, text)
}

package parser

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"jatri-ovijog-backend/models"
)

// ExtractJSONFromMarkdown extracts a JSON object from a model response that
// may be wrapped in markdown code fences or surrounded by prose.
func ExtractJSONFromMarkdown(response string) string {
	startMarker := "```"
	endMarker := "```"

	startIdx := strings.Index(response, startMarker)
	if startIdx == -1 {
		// No code block found, try to find JSON object directly
		startIdx = strings.Index(response, "{")
		if startIdx == -1 {
			return response
		}
		endIdx := strings.LastIndex(response, "}")
		if endIdx == -1 {
			return response
		}
		return strings.TrimSpace(response[startIdx : endIdx+1])
	}

	endIdx := strings.Index(response[startIdx+len(startMarker):], endMarker)
	if endIdx == -1 {
		return response
	}
	endIdx += startIdx + len(startMarker)

	content := response[startIdx+len(startMarker) : endIdx]

	// Remove the language identifier if present (e.g., "json")
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > 0 && (strings.TrimSpace(lines[0]) == "json" || strings.TrimSpace(lines[0]) == "") {
		content = strings.Join(lines[1:], "\n")
	}

	return strings.TrimSpace(content)
}

// ParseVerdict parses the classifier response. The priority is normalized to
// its canonical casing; an unrecognized priority is an error so the caller
// falls back to its defaults. An unknown category collapses to "Other".
func ParseVerdict(response string) (*models.Verdict, error) {
	jsonContent := ExtractJSONFromMarkdown(strings.TrimSpace(response))

	var v models.Verdict
	if err := json.Unmarshal([]byte(jsonContent), &v); err != nil {
		return nil, errors.New("failed to parse JSON response: " + err.Error())
	}

	switch strings.ToLower(strings.TrimSpace(v.Priority)) {
	case "high":
		v.Priority = models.PriorityHigh
	case "medium":
		v.Priority = models.PriorityMedium
	case "low":
		v.Priority = models.PriorityLow
	default:
		return nil, errors.New("invalid priority: " + v.Priority)
	}

	if !knownCategory(v.Category) {
		v.Category = models.CategoryOther
	}
	return &v, nil
}

func knownCategory(category string) bool {
	for _, c := range models.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// ParseMatchID parses the duplicate-check response {"match_id": <id or -1>}.
// The id may arrive as a number or a numeric string.
func ParseMatchID(response string) (int64, error) {
	jsonContent := ExtractJSONFromMarkdown(strings.TrimSpace(response))

	var obj struct {
		MatchID json.RawMessage `json:"match_id"`
	}
	if err := json.Unmarshal([]byte(jsonContent), &obj); err != nil {
		return -1, errors.New("failed to parse JSON response: " + err.Error())
	}
	if len(obj.MatchID) == 0 {
		return -1, errors.New("match_id missing")
	}

	raw := strings.Trim(string(obj.MatchID), `"`)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return -1, errors.New("invalid match_id: " + raw)
	}
	return id, nil
}

// ParseChatForm parses the chat-to-form extraction response.
func ParseChatForm(response string) (*models.ChatForm, error) {
	jsonContent := ExtractJSONFromMarkdown(strings.TrimSpace(response))

	var form models.ChatForm
	if err := json.Unmarshal([]byte(jsonContent), &form); err != nil {
		return nil, errors.New("failed to parse JSON response: " + err.Error())
	}
	return &form, nil
}

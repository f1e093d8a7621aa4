package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// ShortFormFile is one uploaded file reference carried in a short-form
// request body.
type ShortFormFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type shortFormRequest struct {
	Message string          `json:"message"`
	Stream  bool            `json:"stream"`
	Files   []ShortFormFile `json:"files,omitempty"`
}

// Family is the short-form URL's model family segment (spec §6.3:
// `/agent/api/a{1|2|3}/{gpt|gemini|claude}`).
type Family string

const (
	FamilyGPT    Family = "gpt"
	FamilyGemini Family = "gemini"
	FamilyClaude Family = "claude"
)

// ShortFormURL builds the path for a given API slot (1, 2, or 3) and
// model family.
func ShortFormURL(baseURL string, slot int, family Family) string {
	return fmt.Sprintf("%s/agent/api/a%d/%s", strings.TrimRight(baseURL, "/"), slot, family)
}

// StreamShortForm posts message (with optional file attachments) and
// invokes onEvent with the cumulative reply text so far as each `data:`
// line arrives; if the server instead returns a single JSON object
// (non-streaming), onEvent is invoked exactly once with the whole reply.
func (c *Client) StreamShortForm(ctx context.Context, url, message string, files []ShortFormFile, onEvent func(Event) error) error {
	resp, cancel, err := c.postJSON(ctx, url, shortFormRequest{Message: message, Stream: true, Files: files}, nil)
	if err != nil {
		return err
	}
	defer cancel()
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/event-stream") {
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read non-streaming response: %w", err)
		}
		var single struct {
			Replies string `json:"replies"`
		}
		if err := json.Unmarshal(raw, &single); err != nil {
			return fmt.Errorf("decode non-streaming response: %w", err)
		}
		return onEvent(Event{Text: single.Replies, Cumulative: true})
	}

	scanner := newLineScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		if data == "" {
			continue
		}
		var ev struct {
			Replies string `json:"replies"`
		}
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		if ContainsBackendError(ev.Replies) {
			return fmt.Errorf("backend reported a transient error: %s", ev.Replies)
		}
		if err := onEvent(Event{Text: ev.Replies, Cumulative: true}); err != nil {
			return err
		}
	}
	return scanner.Err()
}

package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// LongFormRequest is the bit-level shape of spec §6.3's long-form
// request: snake_case JSON, a single 1-element array per param_filter,
// a single text query, and an optional thread id for continuation.
type LongFormRequest struct {
	UsersID        string
	ChatRoomsID    string
	Provider       string
	ModelName      string
	DeploymentName string
	DeptCode       string
	SclpstCode     string
	Email1         string
	UserID         string
	Nm             string
	Text           string
	ScenariosID    string
	ChatThreadsID  string // empty unless continuing a thread
}

func (r LongFormRequest) marshal() map[string]interface{} {
	paramFilters := map[string]interface{}{
		"dept_code":   []string{r.DeptCode},
		"sclpst_code": []string{r.SclpstCode},
		"email_1":     []string{r.Email1},
	}
	if r.UserID != "" {
		paramFilters["user_id"] = []string{r.UserID}
	}
	if r.Nm != "" {
		paramFilters["nm"] = []string{r.Nm}
	}

	body := map[string]interface{}{
		"app_type":    "browser",
		"device_type": "pc",
		"users_id":    r.UsersID,
		"chat_rooms_id": r.ChatRoomsID,
		"llms": map[string]interface{}{
			"model_config": map[string]interface{}{
				"provider":        r.Provider,
				"model_name":      r.ModelName,
				"deployment_name": r.DeploymentName,
			},
		},
		"param_filters": paramFilters,
		"queries": map[string]interface{}{
			"type": "text",
			"text": r.Text,
		},
		"scenarios_id":       r.ScenariosID,
		"sse_status_enabled": true,
	}
	if r.ChatThreadsID != "" {
		body["chat_threads_id"] = r.ChatThreadsID
	}
	return body
}

type longFormEnvelope struct {
	Data struct {
		Documents []struct {
			ChatThreadsID json.Number `json:"chat_threads_id"`
			Replies       struct {
				Text string `json:"text"`
			} `json:"replies"`
		} `json:"documents"`
	} `json:"data"`
}

// StreamLongForm posts req and invokes onEvent for each incremental SSE
// event, retrying on a backend JSON-parse error embedded in the text
// payload (spec §4.6) up to MaxRetries times, threading the
// server-assigned chat_threads_id into the retried payload.
func (c *Client) StreamLongForm(ctx context.Context, url string, req LongFormRequest, onEvent func(Event) error) error {
	attempt := 0
	for {
		err := c.streamLongFormOnce(ctx, url, req, onEvent)
		if err == nil {
			return nil
		}
		retryErr, ok := err.(*backendRetryError)
		if !ok {
			return err
		}
		attempt++
		if attempt > c.MaxRetries {
			return fmt.Errorf("backend retry limit (%d) exceeded: %w", c.MaxRetries, retryErr.cause)
		}
		if retryErr.threadID != "" {
			req.ChatThreadsID = retryErr.threadID
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.RetryDelay):
		}
	}
}

type backendRetryError struct {
	cause    error
	threadID string
}

func (e *backendRetryError) Error() string { return e.cause.Error() }

func (c *Client) streamLongFormOnce(ctx context.Context, url string, req LongFormRequest, onEvent func(Event) error) error {
	resp, cancel, err := c.postJSON(ctx, url, req.marshal(), nil)
	if err != nil {
		return err
	}
	defer cancel()
	defer resp.Body.Close()

	scanner := newLineScanner(resp.Body)
	var lastThreadID string

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		if data == "" {
			continue
		}

		var env longFormEnvelope
		if err := json.Unmarshal([]byte(data), &env); err != nil {
			continue
		}
		for _, doc := range env.Data.Documents {
			if ContainsBackendError(doc.Replies.Text) {
				return &backendRetryError{
					cause:    fmt.Errorf("backend reported a transient error: %s", doc.Replies.Text),
					threadID: lastThreadID,
				}
			}
			threadID := doc.ChatThreadsID.String()
			if threadID != "" && threadID != "0" {
				lastThreadID = threadID
			}
			ev := Event{Text: doc.Replies.Text, ThreadID: threadID}
			if err := onEvent(ev); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

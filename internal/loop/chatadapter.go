package loop

import (
	"context"
	"strings"

	"github.com/popilot-dev/popilot/internal/chatclient"
	"github.com/popilot-dev/popilot/internal/session"
)

// LongFormParams holds the long-form transport's per-conversation fields
// that do not change turn to turn, plus the thread id once the server
// assigns one. Building the single query string from message history is
// deliberately not this adapter's job (that belongs to the request
// transformer upstream, out of scope here); RequestText is injected.
type LongFormParams struct {
	UsersID, ChatRoomsID                            string
	Provider, ModelName, DeploymentName              string
	DeptCode, SclpstCode, Email1, UserID, Nm         string
	ScenariosID                                       string
	ThreadID                                          string
}

// ChatAdapter satisfies Streamer over a chatclient.Client, picking the
// long-form or short-form transport depending on which params are set.
type ChatAdapter struct {
	Client      *chatclient.Client
	URL         string
	RequestText func(messages []session.Message) string
	LongForm    *LongFormParams // nil selects the short-form transport
}

// DefaultRequestText renders the causal history as role-prefixed lines,
// the minimal single-text-query shape both transports need.
func DefaultRequestText(messages []session.Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

func (a *ChatAdapter) Stream(ctx context.Context, messages []session.Message, onDelta func(string)) (string, string, error) {
	requestText := a.RequestText
	if requestText == nil {
		requestText = DefaultRequestText
	}
	text := requestText(messages)

	if a.LongForm != nil {
		return a.streamLongForm(ctx, text, onDelta)
	}
	return a.streamShortForm(ctx, text, onDelta)
}

func (a *ChatAdapter) streamLongForm(ctx context.Context, text string, onDelta func(string)) (string, string, error) {
	lf := a.LongForm
	req := chatclient.LongFormRequest{
		UsersID:        lf.UsersID,
		ChatRoomsID:    lf.ChatRoomsID,
		Provider:       lf.Provider,
		ModelName:      lf.ModelName,
		DeploymentName: lf.DeploymentName,
		DeptCode:       lf.DeptCode,
		SclpstCode:     lf.SclpstCode,
		Email1:         lf.Email1,
		UserID:         lf.UserID,
		Nm:             lf.Nm,
		Text:           text,
		ScenariosID:    lf.ScenariosID,
		ChatThreadsID:  lf.ThreadID,
	}

	var full strings.Builder
	var threadID string
	err := a.Client.StreamLongForm(ctx, a.URL, req, func(ev chatclient.Event) error {
		full.WriteString(ev.Text)
		if ev.ThreadID != "" {
			threadID = ev.ThreadID
		}
		onDelta(ev.Text)
		return nil
	})
	if err != nil {
		return "", "", err
	}
	if threadID != "" {
		lf.ThreadID = threadID
	}
	return full.String(), threadID, nil
}

func (a *ChatAdapter) streamShortForm(ctx context.Context, text string, onDelta func(string)) (string, string, error) {
	var lastCumulative string
	err := a.Client.StreamShortForm(ctx, a.URL, text, nil, func(ev chatclient.Event) error {
		delta := ev.Text
		if ev.Cumulative {
			if strings.HasPrefix(ev.Text, lastCumulative) {
				delta = ev.Text[len(lastCumulative):]
			} else {
				delta = ev.Text
			}
			lastCumulative = ev.Text
		}
		onDelta(delta)
		return nil
	})
	if err != nil {
		return "", "", err
	}
	return lastCumulative, "", nil
}

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifyFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventSafetyViolation, " "}, quietLogger())

	require.NoError(t, n.Notify(context.Background(), EventQueueSweep, "sweep", ""))
	require.NoError(t, n.Notify(context.Background(), EventSafetyViolation, "safety", ""))
	assert.Equal(t, []string{"safety"}, s.titles)
	assert.True(t, n.Enabled())
}

func TestNotifyCollectsSenderErrors(t *testing.T) {
	ok := &recordingSender{name: "ok"}
	bad := &recordingSender{name: "bad", err: errors.New("down")}
	n := NewNotifier([]Sender{bad, ok}, nil, quietLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	assert.Len(t, ok.titles, 1)
}

func TestNotifierWithoutSenders(t *testing.T) {
	n := NewNotifier(nil, nil, quietLogger())
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Notify(context.Background(), EventSettlementFailed, "t", "m"))
}

func TestDiscordSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), "Title", "body"))
	assert.Equal(t, "**Title**\nbody", got["content"])
}

func TestTelegramSendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottok/sendMessage", r.URL.Path)
		http.Error(w, "bad chat", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.baseURL = srv.URL
	err := s.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
}

func TestReconciliationMessage(t *testing.T) {
	r := domain.ReconciliationReport{
		QueueID: "q1", GameID: "g1", Outcome: "HOME",
		FailedReceipts: []domain.Receipt{{ID: "r1"}},
		TradeFailures:  []domain.TradeFailure{{TradeID: "t1"}, {TradeID: "t2"}},
	}
	title, msg := ReconciliationMessage(r, "reconciliation/2026/03/01/q1.json")
	assert.Equal(t, "Settlement needs reconciliation", title)
	assert.Contains(t, msg, "failed receipts: 1")
	assert.Contains(t, msg, "trade failures: 2")
	assert.Contains(t, msg, "report: reconciliation/2026/03/01/q1.json")
}

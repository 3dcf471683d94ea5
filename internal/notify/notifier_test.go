package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (r *recordingSender) Send(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return r.err
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

func TestNotifier_DeliversToAllSenders(t *testing.T) {
	failing := &recordingSender{err: errors.New("down")}
	ok := &recordingSender{}
	n := NewNotifier(8, zap.NewNop(), failing, ok)

	n.Publish("one")
	n.Publish("two")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Run(ctx)
	n.Wait()

	assert.Equal(t, []string{"one", "two"}, ok.messages())
	assert.Equal(t, []string{"one", "two"}, failing.messages())
}

func TestNotifier_DropsWhenFull(t *testing.T) {
	s := &recordingSender{}
	n := NewNotifier(1, zap.NewNop(), s)

	n.Publish("kept")
	n.Publish("dropped")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Run(ctx)

	assert.Equal(t, []string{"kept"}, s.messages())
}

func TestTelegramSender(t *testing.T) {
	var path string
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newTelegramSender(srv.URL, "tok", "42").Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "42", body["chat_id"])
	assert.Equal(t, "hello", body["text"])
}

func TestWebhookSender(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewWebhookSender(srv.URL).Send(context.Background(), "hi"))
	assert.Equal(t, "hi", body["text"])
	assert.Equal(t, "hi", body["content"])

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer bad.Close()
	assert.Error(t, NewWebhookSender(bad.URL).Send(context.Background(), "hi"))
}

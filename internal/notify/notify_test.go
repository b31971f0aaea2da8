package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/blackbelt-platform/core/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	err   error
	calls int
}

func (f *fakeSender) Send(_ context.Context, _, _, _ string) error {
	f.calls++
	return f.err
}

func TestWebhookSender_Delivers(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := notify.NewWebhookSender(srv.URL).Send(context.Background(), "a@example.com", "hi", "<p>x</p>")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got["to"])
	assert.Equal(t, "hi", got["subject"])
	assert.Equal(t, "<p>x</p>", got["body"])
}

func TestWebhookSender_Non2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := notify.NewWebhookSender(srv.URL).Send(context.Background(), "a@example.com", "hi", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestFanout(t *testing.T) {
	boom := errors.New("boom")

	t.Run("one channel delivers", func(t *testing.T) {
		a, b := &fakeSender{err: boom}, &fakeSender{}
		require.NoError(t, notify.Fanout{a, b}.Send(context.Background(), "x", "s", "b"))
		assert.Equal(t, 1, a.calls)
		assert.Equal(t, 1, b.calls)
	})

	t.Run("all channels fail", func(t *testing.T) {
		a, b := &fakeSender{err: boom}, &fakeSender{err: boom}
		err := notify.Fanout{a, b}.Send(context.Background(), "x", "s", "b")
		assert.ErrorIs(t, err, boom)
	})
}

func TestTemplatesEscapeInput(t *testing.T) {
	msg := notify.Reminder("https://app.example.com", "<script>", "inv-1", 2)
	assert.Contains(t, msg.Subject, "2/3")
	assert.NotContains(t, msg.Body, "<script>")
	assert.Contains(t, msg.Body, "https://app.example.com/survey/inv-1")

	reset := notify.PasswordReset("https://app.example.com", "Ana", "a+b")
	assert.True(t, strings.Contains(reset.Body, "token=a%2Bb"))
}

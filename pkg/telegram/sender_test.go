package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSendWithRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		var body sendMessageReq
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "42", body.ChatID)
		assert.Equal(t, "HTML", body.ParseMode)

		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) == 1 {
			fmt.Fprint(w, `{"ok":false,"description":"flood"}`)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	s := NewSender(srv.URL, "TOKEN", 5*time.Second, zap.NewNop())
	s.backoff = time.Millisecond

	require.NoError(t, s.SendWithRetry(context.Background(), "42", "<b>hi</b>", 2))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSendWithRetryExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":false,"description":"chat not found"}`)
	}))
	defer srv.Close()

	s := NewSender(srv.URL, "TOKEN", 5*time.Second, zap.NewNop())
	s.backoff = time.Millisecond

	err := s.SendWithRetry(context.Background(), "1", "x", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestEnabled(t *testing.T) {
	assert.False(t, NewSender("", "", time.Second, zap.NewNop()).Enabled())
	assert.True(t, NewSender("", "t", time.Second, zap.NewNop()).Enabled())
}

package bluebubbles

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/imessage-ai-bridge/internal/conversation"
	"github.com/wolfman30/imessage-ai-bridge/internal/events"
)

// fakeMessenger records every outbound call in order.
type fakeMessenger struct {
	mu      sync.Mutex
	calls   []string
	sendErr error
}

func (f *fakeMessenger) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeMessenger) SendText(_ context.Context, chatGUID, text string) error {
	f.record("send:" + chatGUID + ":" + text)
	return f.sendErr
}

func (f *fakeMessenger) SetTyping(_ context.Context, chatGUID string, typing bool) error {
	f.record(fmt.Sprintf("typing:%s:%t", chatGUID, typing))
	return nil
}

func (f *fakeMessenger) MarkChatRead(_ context.Context, chatGUID string) error {
	f.record("read:" + chatGUID)
	return nil
}

func (f *fakeMessenger) sends() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, "send:") {
			out = append(out, c)
		}
	}
	return out
}

type fakeReplier struct {
	mu    sync.Mutex
	reply string
	err   error
	count int
}

func (f *fakeReplier) Reply(context.Context, string) (string, error) {
	f.mu.Lock()
	f.count++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func newTestHandler(t *testing.T, messenger *fakeMessenger, replier *fakeReplier, env string) *WebhookHandler {
	t.Helper()
	classifier := events.NewClassifier(events.NewMemorySet(100))
	return NewWebhookHandler(classifier, messenger, replier, nil, nil, env)
}

func postWebhook(t *testing.T, h *WebhookHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/bluebubbles", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.HandleWebhook(w, req)
	return w
}

func newMessageBody(guid, chatGUID, text string, fromMe bool) string {
	return fmt.Sprintf(`{
		"type": "new-message",
		"data": {
			"guid": %q,
			"text": %q,
			"isFromMe": %t,
			"handle": {"address": "+15551234567"},
			"chats": [{"guid": %q}]
		}
	}`, guid, text, fromMe, chatGUID)
}

func TestWebhookHappyPath(t *testing.T) {
	messenger := &fakeMessenger{}
	replier := &fakeReplier{reply: "hi there"}
	h := newTestHandler(t, messenger, replier, "development")

	w := postWebhook(t, h, newMessageBody("m1", "c1", "hello", false))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, []string{
		"read:c1",
		"typing:c1:true",
		"send:c1:hi there",
		"typing:c1:false",
	}, messenger.calls)
	assert.Equal(t, 1, replier.count)
}

func TestWebhookMalformedBody(t *testing.T) {
	messenger := &fakeMessenger{}
	h := newTestHandler(t, messenger, &fakeReplier{reply: "x"}, "development")

	w := postWebhook(t, h, `{not json`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, messenger.calls)
}

func TestWebhookMissingTypeTag(t *testing.T) {
	h := newTestHandler(t, &fakeMessenger{}, &fakeReplier{reply: "x"}, "development")
	w := postWebhook(t, h, `{"data":{"guid":"m1"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookIgnoresSelfAuthored(t *testing.T) {
	messenger := &fakeMessenger{}
	replier := &fakeReplier{reply: "x"}
	h := newTestHandler(t, messenger, replier, "development")

	w := postWebhook(t, h, newMessageBody("m1", "c1", "note to self", true))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, messenger.calls)
	assert.Zero(t, replier.count)
}

func TestWebhookIgnoresTypingIndicator(t *testing.T) {
	messenger := &fakeMessenger{}
	h := newTestHandler(t, messenger, &fakeReplier{reply: "x"}, "development")

	w := postWebhook(t, h, `{"type":"typing-indicator","data":{"guid":"m1","chats":[{"guid":"c1"}]}}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, messenger.calls)
}

func TestWebhookIgnoresEmptyText(t *testing.T) {
	messenger := &fakeMessenger{}
	replier := &fakeReplier{reply: "x"}
	h := newTestHandler(t, messenger, replier, "development")

	w := postWebhook(t, h, newMessageBody("m1", "c1", "", false))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, messenger.calls)
	assert.Zero(t, replier.count)
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	messenger := &fakeMessenger{}
	replier := &fakeReplier{reply: "hi"}
	h := newTestHandler(t, messenger, replier, "development")

	first := postWebhook(t, h, newMessageBody("m1", "c1", "hello", false))
	second := postWebhook(t, h, newMessageBody("m1", "c1", "hello", false))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, 1, replier.count, "duplicate delivery must not regenerate")
	assert.Len(t, messenger.sends(), 1)
}

func TestWebhookGenerationFailure(t *testing.T) {
	messenger := &fakeMessenger{}
	replier := &fakeReplier{err: &conversation.GenerationError{Err: errors.New("model unavailable")}}
	h := newTestHandler(t, messenger, replier, "development")

	w := postWebhook(t, h, newMessageBody("m1", "c1", "hello", false))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, messenger.sends(), "no reply should be sent on generation failure")
	assert.Contains(t, messenger.calls, "typing:c1:false", "typing indicator must be cleared")
}

func TestWebhookDeliveryFailure(t *testing.T) {
	messenger := &fakeMessenger{sendErr: &DeliveryError{Op: "send text", StatusCode: 502, Err: errors.New("bad gateway")}}
	replier := &fakeReplier{reply: "hi"}
	h := newTestHandler(t, messenger, replier, "development")

	w := postWebhook(t, h, newMessageBody("m1", "c1", "hello", false))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "typing:c1:false", messenger.calls[len(messenger.calls)-1])
}

func TestWebhookControlCommandsProduction(t *testing.T) {
	messenger := &fakeMessenger{}
	replier := &fakeReplier{reply: "hi"}
	h := newTestHandler(t, messenger, replier, "production")

	w := postWebhook(t, h, newMessageBody("m1", "c1", "Alpha off", true))
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, h.Active())
	assert.Contains(t, messenger.calls, "send:c1:Alpha is now off.")

	// While paused, external messages are dropped without replies.
	w = postWebhook(t, h, newMessageBody("m2", "c1", "hello?", false))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, replier.count)

	w = postWebhook(t, h, newMessageBody("m3", "c1", "alpha on", true))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, h.Active())

	w = postWebhook(t, h, newMessageBody("m4", "c1", "hello again", false))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, replier.count)
}

func TestWebhookControlCommandsIgnoredOutsideProduction(t *testing.T) {
	messenger := &fakeMessenger{}
	replier := &fakeReplier{reply: "hi"}
	h := newTestHandler(t, messenger, replier, "development")

	w := postWebhook(t, h, newMessageBody("m1", "c1", "alpha off", true))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, h.Active(), "latch must not flip outside production")

	w = postWebhook(t, h, newMessageBody("m2", "c1", "hello", false))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, replier.count)
}

func TestWebhookMissingChat(t *testing.T) {
	messenger := &fakeMessenger{}
	h := newTestHandler(t, messenger, &fakeReplier{reply: "x"}, "development")

	w := postWebhook(t, h, `{"type":"new-message","data":{"guid":"m1","text":"hi","isFromMe":false}}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, messenger.calls)
}

type failingSet struct{}

func (failingSet) MarkIfNew(context.Context, string) (bool, error) {
	return false, errors.New("store down")
}

func TestWebhookDedupStoreFailure(t *testing.T) {
	messenger := &fakeMessenger{}
	classifier := events.NewClassifier(failingSet{})
	h := NewWebhookHandler(classifier, messenger, &fakeReplier{reply: "x"}, nil, nil, "development")

	w := postWebhook(t, h, newMessageBody("m1", "c1", "hello", false))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, messenger.sends())
}

func TestHealthCheck(t *testing.T) {
	h := newTestHandler(t, &fakeMessenger{}, &fakeReplier{reply: "x"}, "development")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.HealthCheck(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

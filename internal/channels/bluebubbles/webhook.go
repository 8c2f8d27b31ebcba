package bluebubbles

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/imessage-ai-bridge/internal/events"
	"github.com/wolfman30/imessage-ai-bridge/internal/observability/metrics"
	"github.com/wolfman30/imessage-ai-bridge/pkg/logging"
)

var webhookTracer = otel.Tracer("bridge.internal.channels.bluebubbles")

// Control phrases the owner can text to pause or resume the bridge.
const (
	controlPause  = "alpha off"
	controlResume = "alpha on"
)

// Messenger delivers replies and presence signals back to the chat.
type Messenger interface {
	SendText(ctx context.Context, chatGUID, text string) error
	SetTyping(ctx context.Context, chatGUID string, typing bool) error
	MarkChatRead(ctx context.Context, chatGUID string) error
}

// ReplyGenerator produces a reply for one inbound message.
type ReplyGenerator interface {
	Reply(ctx context.Context, message string) (string, error)
}

// WebhookHandler is the inbound edge of the bridge: it receives BlueBubbles
// webhook deliveries, classifies them, and drives reply generation and
// delivery for accepted messages. Processing is synchronous; the HTTP status
// reflects the outcome of the whole pipeline.
type WebhookHandler struct {
	classifier *events.Classifier
	messenger  Messenger
	replier    ReplyGenerator
	metrics    *metrics.BridgeMetrics
	logger     *logging.Logger
	env        string

	// active gates reply generation; control messages flip it. Starts on.
	active atomic.Bool
}

// NewWebhookHandler creates the webhook handler. metrics may be nil.
func NewWebhookHandler(classifier *events.Classifier, messenger Messenger, replier ReplyGenerator, m *metrics.BridgeMetrics, logger *logging.Logger, env string) *WebhookHandler {
	if classifier == nil {
		panic("bluebubbles: classifier cannot be nil")
	}
	if messenger == nil {
		panic("bluebubbles: messenger cannot be nil")
	}
	if replier == nil {
		panic("bluebubbles: reply generator cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	h := &WebhookHandler{
		classifier: classifier,
		messenger:  messenger,
		replier:    replier,
		metrics:    m,
		logger:     logger,
		env:        env,
	}
	h.active.Store(true)
	return h
}

// Active reports whether reply generation is currently enabled.
func (h *WebhookHandler) Active() bool {
	return h.active.Load()
}

// HandleWebhook handles POST /webhooks/bluebubbles.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := webhookTracer.Start(r.Context(), "bluebubbles.webhook")
	defer span.End()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}

	ev, err := events.ParseWebhook(body)
	if err != nil {
		h.logger.Error("failed to parse webhook", "error", err)
		h.metrics.ObserveInbound("unknown", "malformed")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	span.SetAttributes(
		attribute.String("bridge.event_type", ev.Type),
		attribute.String("bridge.message_guid", ev.MessageID),
		attribute.String("bridge.chat_guid", ev.ChatGUID),
	)

	if h.handleControl(ctx, ev) {
		h.metrics.ObserveInbound(ev.Type, "control")
		h.writeOK(w)
		return
	}

	if !h.active.Load() && !ev.IsFromMe {
		h.logger.Debug("bridge paused, ignoring message", "message_guid", ev.MessageID)
		h.metrics.ObserveInbound(ev.Type, "paused")
		h.writeOK(w)
		return
	}

	verdict, err := h.classifier.Classify(ctx, ev)
	if err != nil {
		h.logger.Error("failed to classify event", "error", err, "message_guid", ev.MessageID)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		span.RecordError(err)
		return
	}
	if !verdict.Accept {
		h.logger.Debug("event ignored", "reason", verdict.Reason, "message_guid", ev.MessageID)
		h.metrics.ObserveInbound(ev.Type, verdict.Reason)
		h.writeOK(w)
		return
	}

	h.logger.Info("handling inbound message",
		"message_guid", ev.MessageID,
		"chat_guid", ev.ChatGUID,
		"sender", ev.Sender,
	)

	// Presence signals are best effort; the reply pipeline continues
	// whether or not they land.
	if err := h.messenger.MarkChatRead(ctx, ev.ChatGUID); err != nil {
		h.logger.Warn("failed to mark chat read", "error", err, "chat_guid", ev.ChatGUID)
	}
	if err := h.messenger.SetTyping(ctx, ev.ChatGUID, true); err != nil {
		h.logger.Warn("failed to set typing indicator", "error", err, "chat_guid", ev.ChatGUID)
	}

	reply, err := h.replier.Reply(ctx, ev.Text)
	if err != nil {
		h.logger.Error("failed to generate reply", "error", err, "message_guid", ev.MessageID)
		h.clearTyping(ctx, ev.ChatGUID)
		h.metrics.ObserveInbound(ev.Type, "generation_failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		span.RecordError(err)
		return
	}

	if err := h.messenger.SendText(ctx, ev.ChatGUID, reply); err != nil {
		h.logger.Error("failed to deliver reply", "error", err, "chat_guid", ev.ChatGUID)
		h.clearTyping(ctx, ev.ChatGUID)
		h.metrics.ObserveInbound(ev.Type, "delivery_failed")
		h.metrics.ObserveOutbound("failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		span.RecordError(err)
		return
	}

	h.clearTyping(ctx, ev.ChatGUID)

	h.metrics.ObserveInbound(ev.Type, "sent")
	h.metrics.ObserveOutbound("delivered")
	h.metrics.ObserveWebhookLatency(ev.Type, time.Since(start).Seconds())
	h.logger.Info("reply delivered", "chat_guid", ev.ChatGUID, "chars", len(reply))

	h.writeOK(w)
}

// HealthCheck handles GET /health.
func (h *WebhookHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	h.writeOK(w)
}

// handleControl intercepts owner pause/resume commands. The latch only flips
// in production; elsewhere the commands are acknowledged but ignored so local
// testing cannot wedge the bridge. Reports whether the event was a command.
func (h *WebhookHandler) handleControl(ctx context.Context, ev events.InboundEvent) bool {
	if ev.Type != events.TypeNewMessage || ev.ChatGUID == "" {
		return false
	}

	var ack string
	switch strings.ToLower(strings.TrimSpace(ev.Text)) {
	case controlPause:
		if h.env == "production" {
			h.active.Store(false)
		}
		ack = "Alpha is now off."
	case controlResume:
		if h.env == "production" {
			h.active.Store(true)
		}
		ack = "Alpha is now on."
	default:
		return false
	}

	h.logger.Info("control command received", "active", h.active.Load(), "env", h.env)
	if err := h.messenger.SendText(ctx, ev.ChatGUID, ack); err != nil {
		h.logger.Warn("failed to acknowledge control command", "error", err)
	}
	return true
}

func (h *WebhookHandler) clearTyping(ctx context.Context, chatGUID string) {
	if err := h.messenger.SetTyping(ctx, chatGUID, false); err != nil {
		h.logger.Warn("failed to clear typing indicator", "error", err, "chat_guid", chatGUID)
	}
}

func (h *WebhookHandler) writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

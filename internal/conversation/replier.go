package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/imessage-ai-bridge/pkg/logging"
)

// Replier is the AI completion client: it builds the prompt context for one
// inbound message, invokes the LLM backend, and extracts the reply text.
// It does not retry; a single attempt is bounded by the configured timeout.
type Replier struct {
	llm     LLMClient
	timeout time.Duration
	logger  *logging.Logger
	now     func() time.Time
}

// NewReplier creates a Replier. A non-positive timeout disables the
// per-request deadline.
func NewReplier(llm LLMClient, timeout time.Duration, logger *logging.Logger) *Replier {
	if llm == nil {
		panic("conversation: llm client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Replier{
		llm:     llm,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Reply generates a reply for one message. All failure modes (provider
// error, timeout, empty completion) surface as *GenerationError.
func (r *Replier) Reply(ctx context.Context, message string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req := LLMRequest{
		System: SystemPrompt(r.now()),
		Messages: []ChatMessage{
			{Role: ChatRoleUser, Content: message},
		},
	}

	resp, err := r.llm.Complete(ctx, req)
	if err != nil {
		return "", &GenerationError{Err: err}
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", &GenerationError{Err: errors.New("empty completion")}
	}

	r.logger.Debug("reply generated", "chars", len(text), "stop_reason", resp.StopReason)
	return text, nil
}

package events

import (
	"context"
	"fmt"
)

// Ignore reasons returned by the classifier.
const (
	ReasonSelfAuthored = "self-authored"
	ReasonNonTextEvent = "non-text-event"
	ReasonEmptyText    = "empty-text"
	ReasonMissingChat  = "missing-chat"
	ReasonDuplicate    = "duplicate-delivery"
)

// Verdict is the classifier's decision for one inbound event.
type Verdict struct {
	Accept bool
	Reason string
}

func ignore(reason string) Verdict {
	return Verdict{Reason: reason}
}

// Classifier decides whether an inbound event is a new, externally-authored
// text message that should receive a reply. Accepting an event records its
// identifier in the processed set; the check and the record are a single
// atomic step, so a redelivered identifier can never be accepted twice even
// under concurrent webhook requests.
type Classifier struct {
	seen ProcessedSet
}

func NewClassifier(seen ProcessedSet) *Classifier {
	if seen == nil {
		panic("events: processed set required")
	}
	return &Classifier{seen: seen}
}

// Classify applies the acceptance rules in order, first match wins.
// The only side effect is the processed-set record on accept.
func (c *Classifier) Classify(ctx context.Context, ev InboundEvent) (Verdict, error) {
	if ev.IsFromMe {
		return ignore(ReasonSelfAuthored), nil
	}
	if ev.Type != TypeNewMessage {
		return ignore(ReasonNonTextEvent), nil
	}
	if ev.Text == "" {
		return ignore(ReasonEmptyText), nil
	}
	if ev.ChatGUID == "" {
		return ignore(ReasonMissingChat), nil
	}

	recorded, err := c.seen.MarkIfNew(ctx, ev.MessageID)
	if err != nil {
		return Verdict{}, fmt.Errorf("events: record message id: %w", err)
	}
	if !recorded {
		return ignore(ReasonDuplicate), nil
	}
	return Verdict{Accept: true}, nil
}

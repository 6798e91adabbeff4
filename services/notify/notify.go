// Package notify delivers signals and run results to people and systems:
// Telegram chats, Kafka topics and the append-only signal log.
package notify

import (
	"context"
	"errors"
)

type Kind string

const (
	KindSignal Kind = "signal"
	KindResult Kind = "result"
	KindText   Kind = "text"
)

// Message is one notification. Text is Telegram HTML; Payload is the
// structured form published to machine sinks.
type Message struct {
	Kind    Kind
	Symbol  string
	Text    string
	Payload any
}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Multi delivers to every sink and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Notify(context.Context, Message) error { return nil }

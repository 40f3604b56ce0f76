package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/lherron/cfgsync/internal/resource"
)

// ErrAborted is returned when the operator aborts the run from the prompt
var ErrAborted = errors.New("run aborted by operator")

// Answer is the operator's reply for one duplicate
type Answer int

const (
	AnswerSkip Answer = iota + 1
	AnswerUpdate
	AnswerAbort
)

// Question describes one duplicate awaiting a decision
type Question struct {
	Title      string
	SourceID   string
	ExistingID string
	// Incoming is the prepared payload that would be written
	Incoming *resource.Resource
}

// Prompter asks the operator about a duplicate. Implementations are called
// strictly sequentially.
type Prompter interface {
	Ask(ctx context.Context, q Question) (Answer, error)
}

// PrompterFunc adapts a function to Prompter
type PrompterFunc func(ctx context.Context, q Question) (Answer, error)

// Ask calls f
func (f PrompterFunc) Ask(ctx context.Context, q Question) (Answer, error) { return f(ctx, q) }

// Pending pairs an Ask item with its prepared payload
type Pending struct {
	Item     *Item
	Incoming *resource.Resource
}

// ResolveAsk settles every pending Ask decision one at a time, before any
// write is issued. An abort answer, a prompter error, or a cancelled context
// stops the walk; decisions already taken are kept.
func ResolveAsk(ctx context.Context, pending []Pending, p Prompter) error {
	for _, pd := range pending {
		if pd.Item.Decision.Action != ActionAsk {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		answer, err := p.Ask(ctx, Question{
			Title:      pd.Item.Source.Title,
			SourceID:   pd.Item.Source.ID,
			ExistingID: pd.Item.Decision.ExistingID,
			Incoming:   pd.Incoming,
		})
		if err != nil {
			return fmt.Errorf("prompt for %s: %w", pd.Item.Source, err)
		}
		switch answer {
		case AnswerUpdate:
			pd.Item.Decision.Action = ActionUpdate
		case AnswerSkip:
			pd.Item.Decision.Action = ActionSkip
		case AnswerAbort:
			return ErrAborted
		default:
			return fmt.Errorf("prompt for %s: unknown answer %d", pd.Item.Source, answer)
		}
	}
	return nil
}

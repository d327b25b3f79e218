package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/spigell/tg-responder/internal/model"
)

// ErrNoOperator is returned when notifications are needed but no operator is configured.
var ErrNoOperator = errors.New("operator is not configured")

type Directory interface {
	LookupIdentity(ctx context.Context, handle string) (*model.Identity, error)
}

// Operator sends notifications to the person running the bot. The operator is
// configured as a numeric id or a handle and is resolved on first use.
type Operator struct {
	ref       string
	directory Directory
	sender    Sender

	mu       sync.Mutex
	identity *model.Identity
}

func NewOperator(ref string, directory Directory, sender Sender) *Operator {
	return &Operator{
		ref:       strings.TrimPrefix(strings.TrimSpace(ref), "@"),
		directory: directory,
		sender:    sender,
	}
}

func (o *Operator) Notify(ctx context.Context, text string) error {
	to, err := o.resolve(ctx)
	if err != nil {
		return err
	}

	if err := o.sender.SendMessage(ctx, to, text); err != nil {
		return fmt.Errorf("sending to operator: %w", err)
	}
	return nil
}

func (o *Operator) resolve(ctx context.Context) (*model.Identity, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.identity != nil {
		return o.identity, nil
	}

	if o.ref == "" {
		return nil, ErrNoOperator
	}

	if id, err := strconv.ParseInt(o.ref, 10, 64); err == nil {
		o.identity = &model.Identity{ID: id}
		return o.identity, nil
	}

	identity, err := o.directory.LookupIdentity(ctx, o.ref)
	if err != nil {
		return nil, fmt.Errorf("resolving operator @%s: %w", o.ref, err)
	}

	o.identity = identity
	return identity, nil
}

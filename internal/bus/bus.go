package bus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"noprime/redirector/internal/domain/message"
)

var (
	// ErrNoRecipient is returned when nothing is subscribed at the target address
	ErrNoRecipient = errors.New("no recipient at address")

	// ErrAlreadySubscribed is returned when an address already has a subscriber
	ErrAlreadySubscribed = errors.New("address already has a subscriber")

	// ErrClosed is returned by every operation after Close
	ErrClosed = errors.New("bus is closed")
)

// CoordinatorAddress is where page controllers send detections and queries.
const CoordinatorAddress = "coordinator"

const tabAddressPrefix = "tab:"

// TabAddress is the mailbox of the page controller running in tab id.
func TabAddress(id int) string {
	return tabAddressPrefix + strconv.Itoa(id)
}

// ParseTabAddress returns the tab id of a tab address.
func ParseTabAddress(addr string) (int, bool) {
	rest, ok := strings.CutPrefix(addr, tabAddressPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(rest)
	return id, err == nil
}

// Bus delivers envelopes between the coordinator and page controllers.
// Delivery to one address is FIFO per sender; nothing stronger is promised.
type Bus interface {
	// Send delivers env to the subscriber at addr without waiting for it
	// to be handled.
	Send(ctx context.Context, addr string, env *message.Envelope) error
	// Request delivers env and waits for the subscriber's reply.
	Request(ctx context.Context, addr string, env *message.Envelope) (*message.Envelope, error)
	// Subscribe claims addr. The channel closes on Unsubscribe, Close or
	// when ctx ends.
	Subscribe(ctx context.Context, addr string) (<-chan *Delivery, error)
	Unsubscribe(addr string) error
	Close() error
}

// Delivery is one received envelope.
type Delivery struct {
	Envelope *message.Envelope

	reply func(ctx context.Context, env *message.Envelope) error
}

// ExpectsReply reports whether the sender is waiting in Request.
func (d *Delivery) ExpectsReply() bool {
	return d.Envelope.ReplyTo != "" && d.reply != nil
}

// Reply answers a Request. It is a no-op for envelopes that were sent
// with Send.
func (d *Delivery) Reply(ctx context.Context, msg message.Message) error {
	if !d.ExpectsReply() {
		return nil
	}

	env, err := message.NewEnvelope(msg, 0)
	if err != nil {
		return err
	}
	env.ReplyTo = d.Envelope.ReplyTo

	if err := d.reply(ctx, env); err != nil {
		return fmt.Errorf("failed to reply to %s: %w", d.Envelope.Type, err)
	}
	return nil
}

// Post wraps msg in an envelope from tab `from` (0 for the coordinator)
// and sends it.
func Post(ctx context.Context, b Bus, addr string, from int, msg message.Message) error {
	env, err := message.NewEnvelope(msg, from)
	if err != nil {
		return err
	}
	return b.Send(ctx, addr, env)
}

// Ask wraps msg in an envelope from tab `from` and waits for the reply.
func Ask(ctx context.Context, b Bus, addr string, from int, msg message.Message) (*message.Envelope, error) {
	env, err := message.NewEnvelope(msg, from)
	if err != nil {
		return nil, err
	}
	return b.Request(ctx, addr, env)
}

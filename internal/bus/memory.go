package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"noprime/redirector/internal/domain/message"
)

type memoryBus struct {
	mu        sync.Mutex
	mailboxes map[string]*mailbox
	pending   map[string]chan *message.Envelope
	closed    bool
}

// NewMemoryBus returns an in-process bus. Envelopes are copied through JSON
// so subscribers never share memory with senders.
func NewMemoryBus() Bus {
	return &memoryBus{
		mailboxes: make(map[string]*mailbox),
		pending:   make(map[string]chan *message.Envelope),
	}
}

func (b *memoryBus) Send(ctx context.Context, addr string, env *message.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	copied, err := copyEnvelope(env)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	mb, ok := b.mailboxes[addr]
	if !ok {
		return fmt.Errorf("failed to send %s to %s: %w", env.Type, addr, ErrNoRecipient)
	}

	mb.push(&Delivery{Envelope: copied, reply: b.deliverReply})
	log.Debugf("Sent %s to %s", env.Type, addr)
	return nil
}

func (b *memoryBus) Request(ctx context.Context, addr string, env *message.Envelope) (*message.Envelope, error) {
	replyTo := "reply:" + uuid.NewString()
	replies := make(chan *message.Envelope, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.pending[replyTo] = replies
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, replyTo)
		b.mu.Unlock()
	}()

	req := *env
	req.ReplyTo = replyTo
	if err := b.Send(ctx, addr, &req); err != nil {
		return nil, err
	}

	select {
	case reply := <-replies:
		return reply, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("no reply to %s from %s: %w", env.Type, addr, ctx.Err())
	}
}

func (b *memoryBus) deliverReply(_ context.Context, env *message.Envelope) error {
	copied, err := copyEnvelope(env)
	if err != nil {
		return err
	}

	b.mu.Lock()
	replies, ok := b.pending[env.ReplyTo]
	b.mu.Unlock()
	if !ok {
		return ErrNoRecipient
	}

	select {
	case replies <- copied:
		return nil
	default:
		// Already answered.
		return nil
	}
}

func (b *memoryBus) Subscribe(ctx context.Context, addr string) (<-chan *Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if _, ok := b.mailboxes[addr]; ok {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", addr, ErrAlreadySubscribed)
	}

	mb := newMailbox()
	b.mailboxes[addr] = mb
	go mb.pump()

	go func() {
		select {
		case <-ctx.Done():
			b.remove(addr, mb)
		case <-mb.done:
		}
	}()

	log.Debugf("Subscribed to %s", addr)
	return mb.out, nil
}

func (b *memoryBus) Unsubscribe(addr string) error {
	b.mu.Lock()
	mb, ok := b.mailboxes[addr]
	b.mu.Unlock()
	if !ok {
		return nil
	}

	b.remove(addr, mb)
	return nil
}

// remove drops mb if it is still the subscriber at addr.
func (b *memoryBus) remove(addr string, mb *mailbox) {
	b.mu.Lock()
	if current, ok := b.mailboxes[addr]; ok && current == mb {
		delete(b.mailboxes, addr)
	}
	b.mu.Unlock()

	mb.stop()
	log.Debugf("Unsubscribed from %s", addr)
}

func (b *memoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	mailboxes := b.mailboxes
	b.mailboxes = make(map[string]*mailbox)
	b.mu.Unlock()

	for _, mb := range mailboxes {
		mb.stop()
	}
	return nil
}

// mailbox is an unbounded FIFO drained into out by pump.
type mailbox struct {
	mu     sync.Mutex
	queue  []*Delivery
	signal chan struct{}
	out    chan *Delivery
	done   chan struct{}
	once   sync.Once
}

func newMailbox() *mailbox {
	return &mailbox{
		signal: make(chan struct{}, 1),
		out:    make(chan *Delivery),
		done:   make(chan struct{}),
	}
}

func (m *mailbox) push(d *Delivery) {
	m.mu.Lock()
	m.queue = append(m.queue, d)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) pump() {
	defer close(m.out)

	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			select {
			case <-m.signal:
				continue
			case <-m.done:
				return
			}
		}
		next := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		m.mu.Unlock()

		select {
		case m.out <- next:
		case <-m.done:
			return
		}
	}
}

func (m *mailbox) stop() {
	m.once.Do(func() { close(m.done) })
}

func copyEnvelope(env *message.Envelope) (*message.Envelope, error) {
	if env == nil {
		return nil, fmt.Errorf("nil envelope")
	}
	data, err := env.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize envelope: %w", err)
	}
	return message.UnmarshalEnvelope(data)
}

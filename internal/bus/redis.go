package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"noprime/redirector/internal/config"
	"noprime/redirector/internal/domain/message"
)

const (
	envelopeField  = "envelope"
	replyStreamTTL = time.Minute
)

type RedisBus struct {
	redisClient  *redis.Client
	streamPrefix string
	groupName    string
	consumerName string
	blockTime    time.Duration
	minIdleTime  time.Duration

	mu      sync.Mutex
	readers map[string]*streamReader
	closed  bool
	wg      sync.WaitGroup
}

type streamReader struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisBus returns a bus with one Redis stream per address, read through
// a consumer group so unacknowledged envelopes survive a subscriber restart.
func NewRedisBus(redisClient *redis.Client, cfg config.BusConfig) Bus {
	blockTime := cfg.BlockTime
	if blockTime <= 0 {
		blockTime = 2 * time.Second
	}

	return &RedisBus{
		redisClient:  redisClient,
		streamPrefix: "noprime:stream:",
		groupName:    cfg.ConsumerGroup,
		consumerName: "consumer-" + uuid.NewString(),
		blockTime:    blockTime,
		minIdleTime:  cfg.MinIdleTime,
		readers:      make(map[string]*streamReader),
	}
}

func (b *RedisBus) streamName(addr string) string {
	return b.streamPrefix + addr
}

func (b *RedisBus) Send(ctx context.Context, addr string, env *message.Envelope) error {
	if b.isClosed() {
		return ErrClosed
	}
	return b.add(ctx, b.streamName(addr), env, true)
}

// add appends env to stream. With mustExist a missing stream means nobody
// is subscribed and yields ErrNoRecipient.
func (b *RedisBus) add(ctx context.Context, stream string, env *message.Envelope, mustExist bool) error {
	data, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("failed to serialize envelope: %w", err)
	}

	messageID, err := b.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream:     stream,
		NoMkStream: mustExist,
		Values: map[string]interface{}{
			"type":        env.Type,
			envelopeField: string(data),
		},
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to send %s to %s: %w", env.Type, stream, ErrNoRecipient)
		}
		return fmt.Errorf("failed to add %s to Redis stream %s: %w", env.Type, stream, err)
	}

	log.Debugf("Added %s to stream %s with message ID: %s", env.Type, stream, messageID)
	return nil
}

func (b *RedisBus) Request(ctx context.Context, addr string, env *message.Envelope) (*message.Envelope, error) {
	replyTo := "reply:" + uuid.NewString()
	replyStream := b.streamName(replyTo)
	defer func() {
		if err := b.redisClient.Del(context.Background(), replyStream).Err(); err != nil {
			log.Warnf("⚠️ Failed to delete reply stream %s: %v", replyStream, err)
		}
	}()

	req := *env
	req.ReplyTo = replyTo
	if err := b.Send(ctx, addr, &req); err != nil {
		return nil, err
	}

	for {
		result, err := b.redisClient.XRead(ctx, &redis.XReadArgs{
			Streams: []string{replyStream, "0"},
			Count:   1,
			Block:   b.blockTime,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("no reply to %s from %s: %w", env.Type, addr, ctx.Err())
			}
			return nil, fmt.Errorf("failed to read reply stream %s: %w", replyStream, err)
		}

		if len(result) == 0 || len(result[0].Messages) == 0 {
			continue
		}
		return decodeMessage(result[0].Messages[0])
	}
}

func (b *RedisBus) reply(ctx context.Context, env *message.Envelope) error {
	stream := b.streamName(env.ReplyTo)
	if err := b.add(ctx, stream, env, false); err != nil {
		return err
	}
	return b.redisClient.Expire(ctx, stream, replyStreamTTL).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, addr string) (<-chan *Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if _, ok := b.readers[addr]; ok {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", addr, ErrAlreadySubscribed)
	}

	stream := b.streamName(addr)
	if err := b.createGroup(ctx, stream); err != nil {
		return nil, fmt.Errorf("failed to create consumer group for %s: %w", stream, err)
	}

	readCtx, cancel := context.WithCancel(ctx)
	reader := &streamReader{cancel: cancel, done: make(chan struct{})}
	b.readers[addr] = reader

	out := make(chan *Delivery)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer close(reader.done)
		defer b.drop(addr, reader)
		defer close(out)

		b.read(readCtx, stream, out)
	}()

	log.Infof("✅ Stream %s and consumer group %s ready", stream, b.groupName)
	return out, nil
}

func (b *RedisBus) createGroup(ctx context.Context, stream string) error {
	err := b.redisClient.XGroupCreateMkStream(ctx, stream, b.groupName, "0").Err()
	if err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP") {
		log.Debugf("Group %s already exists for stream %s", b.groupName, stream)
		return nil
	}
	return err
}

// read hands stream entries to out in order, first any entries another
// consumer left pending for longer than minIdleTime.
func (b *RedisBus) read(ctx context.Context, stream string, out chan<- *Delivery) {
	if b.minIdleTime > 0 {
		claimed, _, err := b.redisClient.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    b.groupName,
			Consumer: b.consumerName,
			MinIdle:  b.minIdleTime,
			Start:    "0-0",
			Count:    100,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			log.Warnf("⚠️ Failed to claim pending messages from %s: %v", stream, err)
		}
		for _, msg := range claimed {
			if !b.dispatch(ctx, stream, msg, out) {
				return
			}
		}
	}

	for ctx.Err() == nil {
		result, err := b.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.groupName,
			Consumer: b.consumerName,
			Streams:  []string{stream, ">"},
			Count:    16,
			Block:    b.blockTime,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			log.Warnf("⚠️ Failed to read from Redis stream %s: %v", stream, err)
			select {
			case <-time.After(b.blockTime):
			case <-ctx.Done():
			}
			continue
		}

		for _, res := range result {
			for _, msg := range res.Messages {
				if !b.dispatch(ctx, stream, msg, out) {
					return
				}
			}
		}
	}
}

func (b *RedisBus) dispatch(ctx context.Context, stream string, msg redis.XMessage, out chan<- *Delivery) bool {
	env, err := decodeMessage(msg)
	if err != nil {
		log.Warnf("⚠️ Dropping malformed message %s on %s: %v", msg.ID, stream, err)
		b.ack(stream, msg.ID)
		return true
	}

	select {
	case out <- &Delivery{Envelope: env, reply: b.reply}:
	case <-ctx.Done():
		return false
	}

	b.ack(stream, msg.ID)
	return true
}

func (b *RedisBus) ack(stream, msgID string) {
	if err := b.redisClient.XAck(context.Background(), stream, b.groupName, msgID).Err(); err != nil {
		log.Warnf("⚠️ Failed to ack %s on %s: %v", msgID, stream, err)
	}
}

// drop forgets reader and removes its stream so later sends to addr fail
// with ErrNoRecipient.
func (b *RedisBus) drop(addr string, reader *streamReader) {
	b.mu.Lock()
	if current, ok := b.readers[addr]; ok && current == reader {
		delete(b.readers, addr)
	}
	b.mu.Unlock()

	stream := b.streamName(addr)
	if err := b.redisClient.Del(context.Background(), stream).Err(); err != nil {
		log.Warnf("⚠️ Failed to delete stream %s: %v", stream, err)
	} else {
		log.Debugf("🗑️ Removed stream %s", stream)
	}
}

func (b *RedisBus) Unsubscribe(addr string) error {
	b.mu.Lock()
	reader, ok := b.readers[addr]
	b.mu.Unlock()
	if !ok {
		return nil
	}

	reader.cancel()
	<-reader.done
	return nil
}

func (b *RedisBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close stops every reader. The Redis client is owned by the caller.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, reader := range b.readers {
		reader.cancel()
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

func decodeMessage(msg redis.XMessage) (*message.Envelope, error) {
	raw, ok := msg.Values[envelopeField].(string)
	if !ok {
		return nil, fmt.Errorf("message %s has no %s field", msg.ID, envelopeField)
	}
	return message.UnmarshalEnvelope([]byte(raw))
}

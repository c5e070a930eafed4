package events

import (
	"context"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type natsInst struct {
	nc      *nats.Conn
	subject string
}

type NatsOptions struct {
	URI string
	// SubjectPrefix defaults to "gateway.events".
	SubjectPrefix string
}

// NewNats returns a bus backed by core NATS subjects. Core NATS matches the
// bus contract exactly: at-most-once, no replay for late subscribers.
func NewNats(ctx context.Context, opt NatsOptions) (Instance, error) {
	prefix := opt.SubjectPrefix
	if prefix == "" {
		prefix = "gateway.events"
	}

	nc, err := nats.Connect(opt.URI)
	if err != nil {
		return nil, err
	}

	go func() {
		<-ctx.Done()
		nc.Close()
	}()

	return &natsInst{nc: nc, subject: prefix}, nil
}

func (b *natsInst) subjectFor(topic string) string {
	// Topic keys use ":" separators; NATS subjects use ".".
	return b.subject + "." + strings.ReplaceAll(topic, ":", ".")
}

func (b *natsInst) Publish(_ context.Context, topic string, payload Payload) error {
	j, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return b.nc.Publish(b.subjectFor(topic), j)
}

func (b *natsInst) Subscribe(_ context.Context, topic string, handler Handler) (func(), error) {
	sub, err := b.nc.Subscribe(b.subjectFor(topic), func(msg *nats.Msg) {
		var payload Payload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			zap.S().Errorw("events, dropped malformed bus payload",
				"topic", topic,
				"error", err,
			)

			return
		}

		handler(payload)
	})
	if err != nil {
		return nil, err
	}

	return func() {
		_ = sub.Unsubscribe()
	}, nil
}

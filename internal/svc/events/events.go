package events

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"github.com/wavechat/gateway/internal/structures"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Instance is the fanout bus relaying dispatch events between gateway
// instances that do not share socket tables. Delivery is fire-and-forget,
// at-most-once, unordered across topics and not durable: if no instance is
// subscribed at publish time the event is lost. Durable records (mention
// notifications) are the store's responsibility, never the bus's.
//
// Subscribers receive every payload published after subscription, including
// payloads published by their own instance; room membership, not bus
// delivery, is the final broadcast gate.
type Instance interface {
	Publish(ctx context.Context, topic string, payload Payload) error
	// Subscribe registers a handler for a topic. The returned cancel func
	// stops delivery.
	Subscribe(ctx context.Context, topic string, handler Handler) (func(), error)
}

type Handler func(payload Payload)

// Payload is the bus envelope: a dispatch event name plus its raw body.
type Payload struct {
	Type string              `json:"t"`
	Data jsoniter.RawMessage `json:"d"`
}

func NewPayload(eventType string, data any) (Payload, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return Payload{}, err
	}

	return Payload{Type: eventType, Data: b}, nil
}

// Topic keys. Every dispatch event is published under exactly one of these.
func ChannelTopic(id structures.ID) string { return "channel:" + id.String() }
func GuildTopic(id structures.ID) string   { return "guild:" + id.String() }
func UserTopic(id structures.ID) string    { return "user:" + id.String() }

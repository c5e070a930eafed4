package gateway

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/wavechat/gateway/internal/structures"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Opcode discriminates the control purpose of a wire frame.
type Opcode int

const (
	OpcodeDispatch       Opcode = 0
	OpcodeHeartbeat      Opcode = 1
	OpcodeIdentify       Opcode = 2
	OpcodePresenceUpdate Opcode = 3
	OpcodeVoiceState     Opcode = 4
	OpcodeResume         Opcode = 6
	OpcodeReconnect      Opcode = 7
	OpcodeInvalidSession Opcode = 9
	OpcodeHello          Opcode = 10
	OpcodeHeartbeatAck   Opcode = 11
)

// Close codes. 4003, 4004 and 4009 are the only codes the server closes
// with on its own initiative.
const (
	CloseCodeUnknownError     = 4000
	CloseCodeUnknownOpcode    = 4001
	CloseCodeDecodeError      = 4002
	CloseCodeNotAuthenticated = 4003
	CloseCodeAuthFailed       = 4004
	CloseCodeInvalidSequence  = 4007
	CloseCodeRateLimited      = 4008
	CloseCodeSessionTimedOut  = 4009
)

// Envelope is the wire frame: {op, d?, s?, t?}. The sequence number is set
// only on outbound dispatch frames.
type Envelope struct {
	Op   Opcode              `json:"op"`
	Data jsoniter.RawMessage `json:"d,omitempty"`
	Seq  *int64              `json:"s,omitempty"`
	Type string              `json:"t,omitempty"`
}

// Dispatch event names.
const (
	EventReady              = "READY"
	EventMessageCreate      = "MESSAGE_CREATE"
	EventMessageAck         = "MESSAGE_ACK"
	EventMessageError       = "MESSAGE_ERROR"
	EventTypingStart        = "TYPING_START"
	EventPresenceUpdate     = "PRESENCE_UPDATE"
	EventVoiceStateUpdate   = "VOICE_STATE_UPDATE"
	EventVoiceServerUpdate  = "VOICE_SERVER_UPDATE"
	EventMessageReactionAdd = "MESSAGE_REACTION_ADD"
	EventNotificationCreate = "NOTIFICATION_CREATE"
	EventReactionAdd        = "REACTION_ADD"
	EventError              = "ERROR"
)

// Inbound payloads, decoded at the protocol boundary into closed variants.

type IdentifyPayload struct {
	Token string `json:"token"`
}

type HeartbeatPayload struct{}

type PresenceUpdatePayload struct {
	Status       structures.PresenceStatus `json:"status"`
	CustomStatus string                    `json:"custom_status,omitempty"`
}

type MessageCreatePayload struct {
	ChannelID   structures.ID           `json:"channel_id"`
	Content     string                  `json:"content,omitempty"`
	Nonce       string                  `json:"nonce"`
	ReplyTo     structures.ID           `json:"reply_to,omitempty"`
	Attachments []structures.Attachment `json:"attachments,omitempty"`
	Mentions    []structures.ID         `json:"mentions,omitempty"`
}

type TypingStartPayload struct {
	ChannelID structures.ID `json:"channel_id"`
}

type VoiceStatePayload struct {
	GuildID   structures.ID `json:"guild_id,omitempty"`
	ChannelID structures.ID `json:"channel_id,omitempty"`
	SelfMute  bool          `json:"self_mute"`
	SelfDeaf  bool          `json:"self_deaf"`
	SelfVideo bool          `json:"self_video"`
}

type ReactionAddPayload struct {
	ChannelID structures.ID `json:"channel_id"`
	MessageID structures.ID `json:"message_id"`
	Emoji     string        `json:"emoji"`
}

// Outbound payloads.

type HelloPayload struct {
	HeartbeatInterval int64  `json:"heartbeat_interval"`
	SessionID         string `json:"session_id"`
}

type ReadyPayload struct {
	User      structures.User `json:"user"`
	SessionID string          `json:"session_id"`
}

type MessageAckPayload struct {
	Nonce     string        `json:"nonce"`
	MessageID structures.ID `json:"message_id"`
}

type MessageErrorPayload struct {
	Nonce string `json:"nonce"`
	Error string `json:"error"`
}

type TypingStartDispatch struct {
	ChannelID structures.ID `json:"channel_id"`
	UserID    structures.ID `json:"user_id"`
	Timestamp int64         `json:"timestamp"`
}

type PresenceUpdateDispatch struct {
	UserID       structures.ID             `json:"user_id"`
	Status       structures.PresenceStatus `json:"status"`
	CustomStatus string                    `json:"custom_status,omitempty"`
	LastSeenAt   int64                     `json:"last_seen_at"`
}

type VoiceServerUpdatePayload struct {
	Token    string `json:"token"`
	Endpoint string `json:"endpoint"`
}

// ErrorPayload answers a rejected frame without closing the connection. The
// nonce is echoed when the triggering event carried one.
type ErrorPayload struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Nonce      string `json:"nonce,omitempty"`
	RetryAfter int64  `json:"retry_after,omitempty"`
}

const (
	errCodeValidation    = 1000
	errCodeAuthorization = 1001
	errCodeRateLimit     = 1002
	errCodeInternal      = 1003
	errCodeUnknownOp     = 1004
	errCodeDecode        = 1005
)

package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/wavechat/gateway/internal/errors"
	"github.com/wavechat/gateway/internal/structures"
	"github.com/wavechat/gateway/internal/svc/auth"
	"github.com/wavechat/gateway/internal/svc/events"
	"go.uber.org/zap"
)

type connState int

const (
	stateConnected connState = iota
	stateIdentified
)

const (
	inboxSize = 32

	// sendBuffer bounds how far a reader may fall behind before the
	// connection is dropped as a slow consumer.
	sendBuffer = 128
)

// Connection is the per-socket state machine: Connected (unauthenticated),
// then Identified, until the done channel marks it torn down. All inbound
// frames are funneled through a bounded inbox and handled one at a time, so
// two frames from the same connection are never processed concurrently.
type Connection struct {
	srv       *Server
	transport Transport

	socketID  structures.ID
	sessionID string

	inbox    chan Envelope
	readDone chan struct{}

	// send feeds the write pump. Writers never block on the transport;
	// a full buffer means the peer stopped reading and gets disconnected.
	send chan []byte

	// state is owned by the run loop.
	state  connState
	user   structures.User
	claims auth.Claims
	topics []string

	seqMx sync.Mutex
	seq   int64

	dispatchMx sync.RWMutex
	accepting  bool
	identified bool

	heartbeatTimeout time.Duration
	heartbeatTimer   *time.Timer
	identifyTimer    *time.Timer

	closeOnce sync.Once
	done      chan struct{}
}

func newSessionID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)

	return hex.EncodeToString(buf)
}

func (s *Server) newConnection(transport Transport) (*Connection, error) {
	socketID, err := s.gCtx.Inst().Snowflake.Generate()
	if err != nil {
		return nil, err
	}

	interval := time.Duration(s.heartbeatIntervalMs) * time.Millisecond

	conn := &Connection{
		srv:              s,
		transport:        transport,
		socketID:         socketID,
		sessionID:        newSessionID(),
		inbox:            make(chan Envelope, inboxSize),
		readDone:         make(chan struct{}),
		send:             make(chan []byte, sendBuffer),
		heartbeatTimeout: interval * 2,
		done:             make(chan struct{}),
	}

	return conn, nil
}

// Serve runs the connection to completion. It returns once the connection
// has been torn down.
func (c *Connection) Serve() {
	s := c.srv

	s.gCtx.Inst().Prometheus.ConnectionsOpen().Inc()
	defer s.gCtx.Inst().Prometheus.ConnectionsOpen().Dec()

	go c.writePump()

	if err := c.sendOp(OpcodeHello, HelloPayload{
		HeartbeatInterval: int64(s.heartbeatIntervalMs),
		SessionID:         c.sessionID,
	}); err != nil {
		c.close(CloseCodeUnknownError, "hello failed")

		return
	}

	c.heartbeatTimer = time.NewTimer(c.heartbeatTimeout)
	defer c.heartbeatTimer.Stop()

	c.identifyTimer = time.NewTimer(time.Duration(s.identifyTimeoutMs) * time.Millisecond)
	defer c.identifyTimer.Stop()

	go c.readLoop()

	for {
		select {
		case env, ok := <-c.inbox:
			if !ok {
				c.close(CloseCodeUnknownError, "read error")

				return
			}

			// The write side may have torn the connection down already.
			select {
			case <-c.done:
				return
			default:
			}

			c.handleFrame(env)

			select {
			case <-c.done:
				return
			default:
			}

		case <-c.heartbeatTimer.C:
			c.close(CloseCodeSessionTimedOut, "heartbeat timed out")

			return

		case <-c.identifyTimer.C:
			if c.state == stateConnected {
				c.close(CloseCodeNotAuthenticated, "identify timed out")

				return
			}

		case <-s.gCtx.Done():
			c.close(CloseCodeUnknownError, "server shutting down")

			return
		}
	}
}

// readLoop decodes frames off the transport into the inbox. Malformed JSON is
// answered without entering the state machine; it is a non-fatal decode
// error.
func (c *Connection) readLoop() {
	defer close(c.readDone)

	for {
		data, err := c.transport.ReadMessage()
		if err != nil {
			close(c.inbox)

			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			_ = c.sendError(ErrorPayload{
				Code:    errCodeDecode,
				Message: "malformed frame",
			})

			continue
		}

		select {
		case c.inbox <- env:
		case <-c.done:
			return
		}
	}
}

func (c *Connection) handleFrame(env Envelope) {
	switch c.state {
	case stateConnected:
		c.handleConnected(env)
	case stateIdentified:
		c.handleIdentified(env)
	}
}

// handleConnected accepts only heartbeats and IDENTIFY. Anything else is
// rejected without a fatal disconnect.
func (c *Connection) handleConnected(env Envelope) {
	switch env.Op {
	case OpcodeHeartbeat:
		c.handleHeartbeat()

	case OpcodeIdentify:
		var payload IdentifyPayload
		if err := json.Unmarshal(orEmptyObject(env.Data), &payload); err != nil || payload.Token == "" {
			c.invalidSession("missing token")

			return
		}

		c.handleIdentify(payload)

	case OpcodeResume:
		// Sessions are not resumable; the client must re-identify.
		_ = c.sendOp(OpcodeInvalidSession, false)

	default:
		_ = c.sendError(ErrorPayload{
			Code:    errCodeUnknownOp,
			Message: errors.ErrUnauthenticated.Error(),
		})
	}
}

func (c *Connection) handleIdentified(env Envelope) {
	switch env.Op {
	case OpcodeHeartbeat:
		c.handleHeartbeat()

	case OpcodeIdentify:
		_ = c.sendError(ErrorPayload{
			Code:    errCodeValidation,
			Message: "already authenticated",
		})

	case OpcodePresenceUpdate:
		c.handlePresenceUpdate(env)

	case OpcodeVoiceState:
		c.handleVoiceStateUpdate(env)

	case OpcodeResume:
		_ = c.sendOp(OpcodeInvalidSession, false)

	case OpcodeDispatch:
		switch env.Type {
		case EventMessageCreate:
			c.handleMessageCreate(env)
		case EventTypingStart:
			c.handleTypingStart(env)
		case EventReactionAdd:
			c.handleReactionAdd(env)
		default:
			_ = c.sendError(ErrorPayload{
				Code:    errCodeValidation,
				Message: "unknown event type",
			})
		}

	default:
		_ = c.sendError(ErrorPayload{
			Code:    errCodeUnknownOp,
			Message: errors.ErrUnknownOpcode.Error(),
		})
	}
}

func (c *Connection) handleHeartbeat() {
	if !c.heartbeatTimer.Stop() {
		select {
		case <-c.heartbeatTimer.C:
		default:
		}
	}
	c.heartbeatTimer.Reset(c.heartbeatTimeout)

	_ = c.sendOp(OpcodeHeartbeatAck, nil)
}

// handleIdentify performs the transition to Identified: verify the token,
// confirm the session is live, load identity, register the socket, mark
// presence online, join rooms, then READY. Every awaited step completes
// before the next relies on it.
func (c *Connection) handleIdentify(payload IdentifyPayload) {
	s := c.srv
	inst := s.gCtx.Inst()

	ctx, cancel := context.WithTimeout(s.gCtx, 10*time.Second)
	defer cancel()

	claims, err := inst.Auth.VerifyAccessToken(ctx, payload.Token)
	if err != nil {
		c.invalidSession(err.Error())

		return
	}

	user, err := inst.Store.UserByID(ctx, claims.UserID)
	if err != nil {
		c.invalidSession("unknown user")

		return
	}

	if err := inst.Presences.RegisterSocket(ctx, user.ID, c.sessionID, c.socketID.String()); err != nil {
		c.infraFailure("register socket", err)

		return
	}

	if err := inst.Presences.SetPresence(ctx, user.ID, structures.PresenceStatusOnline, ""); err != nil {
		// Give the registration back, or the user is stuck with a phantom
		// socket that keeps them permanently online.
		if _, uerr := inst.Presences.UnregisterSocket(ctx, user.ID, c.sessionID, c.socketID.String()); uerr != nil {
			zap.S().Errorw("failed to unregister socket after presence failure",
				"user_id", user.ID,
				"error", uerr,
			)
		}

		c.infraFailure("set presence", err)

		return
	}

	inst.Prometheus.PresenceWrites().Inc()

	c.user = user
	c.claims = claims
	c.state = stateIdentified
	c.identifyTimer.Stop()

	c.dispatchMx.Lock()
	c.accepting = true
	c.identified = true
	c.dispatchMx.Unlock()

	c.joinRooms(ctx)

	inst.Prometheus.IdentifiedSessions().Inc()

	_ = c.Dispatch(EventReady, ReadyPayload{
		User:      user,
		SessionID: c.sessionID,
	})

	// Peers learn the user is online. Published after the presence write is
	// durable.
	s.broadcastPresence(ctx, c.topics, PresenceUpdateDispatch{
		UserID:     user.ID,
		Status:     structures.PresenceStatusOnline,
		LastSeenAt: time.Now().UnixMilli(),
	})

	zap.S().Debugw("session identified",
		"user_id", user.ID,
		"session_id", c.sessionID,
	)
}

// joinRooms subscribes the connection to its logical rooms: the user's own
// topic, one per guild, one per DM channel.
func (c *Connection) joinRooms(ctx context.Context) {
	s := c.srv
	inst := s.gCtx.Inst()

	topics := []string{events.UserTopic(c.user.ID)}

	if guilds, err := inst.Store.GuildsOfUser(ctx, c.user.ID); err == nil {
		for _, id := range guilds {
			topics = append(topics, events.GuildTopic(id))
		}
	} else {
		zap.S().Errorw("failed to load guild memberships",
			"user_id", c.user.ID,
			"error", err,
		)
	}

	if dms, err := inst.Store.DMChannelsOfUser(ctx, c.user.ID); err == nil {
		for _, id := range dms {
			topics = append(topics, events.ChannelTopic(id))
		}
	} else {
		zap.S().Errorw("failed to load dm channels",
			"user_id", c.user.ID,
			"error", err,
		)
	}

	joined := make([]string, 0, len(topics))

	for _, topic := range topics {
		if err := s.rooms.Join(s.gCtx, c, topic); err != nil {
			zap.S().Errorw("failed to join room",
				"topic", topic,
				"error", err,
			)

			continue
		}

		joined = append(joined, topic)
	}

	// Published under the dispatch lock; close reads it from whichever
	// goroutine tears the connection down.
	c.dispatchMx.Lock()
	c.topics = joined
	c.dispatchMx.Unlock()
}

// invalidSession is the fatal authentication path: INVALID_SESSION then close
// 4004.
func (c *Connection) invalidSession(reason string) {
	_ = c.sendOp(OpcodeInvalidSession, false)

	c.close(CloseCodeAuthFailed, reason)
}

func (c *Connection) infraFailure(op string, err error) {
	zap.S().Errorw("gateway infrastructure failure",
		"op", op,
		"error", err,
	)

	_ = c.sendError(ErrorPayload{
		Code:    errCodeInternal,
		Message: errors.ErrInternal.Error(),
	})
}

// Dispatch writes a dispatch frame with the next sequence number. Safe for
// concurrent use; bus relay goroutines call it directly.
func (c *Connection) Dispatch(eventType string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return c.DispatchRaw(eventType, b)
}

func (c *Connection) DispatchRaw(eventType string, data jsoniter.RawMessage) error {
	c.dispatchMx.RLock()
	ok := c.accepting
	c.dispatchMx.RUnlock()

	if !ok {
		return nil
	}

	c.seqMx.Lock()
	c.seq++
	seq := c.seq
	c.seqMx.Unlock()

	c.srv.gCtx.Inst().Prometheus.EventsDispatched().Inc()

	return c.writeEnvelope(Envelope{
		Op:   OpcodeDispatch,
		Data: data,
		Seq:  &seq,
		Type: eventType,
	})
}

func (c *Connection) sendOp(op Opcode, data any) error {
	env := Envelope{Op: op}

	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}

		env.Data = b
	}

	return c.writeEnvelope(env)
}

func (c *Connection) sendError(payload ErrorPayload) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return c.writeEnvelope(Envelope{
		Op:   OpcodeDispatch,
		Data: b,
		Type: EventError,
	})
}

// writeEnvelope queues a frame for the write pump. It never waits on the
// transport, so one stalled reader cannot hold up frames bound for its
// roommates. A connection whose buffer is full is torn down as a slow
// consumer.
func (c *Connection) writeEnvelope(env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}

	select {
	case c.send <- b:
		return nil
	case <-c.done:
		return errors.ErrConnectionClosed
	default:
	}

	go c.close(CloseCodeUnknownError, "send buffer overflow")

	return errors.ErrConnectionClosed
}

// writePump is the only goroutine that touches the transport's write side.
func (c *Connection) writePump() {
	for {
		select {
		case b := <-c.send:
			if err := c.transport.WriteMessage(b); err != nil {
				go c.close(CloseCodeUnknownError, "write failed")

				return
			}

		case <-c.done:
			return
		}
	}
}

// close transitions to Closed exactly once and releases everything the
// connection holds: rooms, socket registration, presence and voice state.
// Results of calls still in flight when this runs are discarded by the
// accepting gate.
func (c *Connection) close(code int, reason string) {
	c.closeOnce.Do(func() {
		// close may run off the connection's own goroutine, so everything it
		// reads lives under the dispatch lock rather than in run-loop state.
		c.dispatchMx.Lock()
		wasIdentified := c.identified
		c.accepting = false
		topics := c.topics
		c.dispatchMx.Unlock()

		// Give the write pump a moment to flush frames already queued, so a
		// final INVALID_SESSION or ERROR reaches the client before the close
		// frame.
		deadline := time.Now().Add(closeGracePeriod)
		for len(c.send) > 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}

		close(c.done)

		_ = c.transport.Close(code, reason)

		// The connection context may already be gone; cleanup gets its own
		// deadline.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		s := c.srv
		inst := s.gCtx.Inst()

		s.rooms.LeaveAll(c, topics)

		if !wasIdentified {
			return
		}

		inst.Prometheus.IdentifiedSessions().Dec()

		if state, ok, err := inst.Voice.Clear(ctx, c.user.ID); err == nil && ok {
			left := state
			left.ChannelID = structures.NilID

			// DM voice states broadcast on the channel topic, not a guild.
			s.publish(ctx, voiceTopic(state), EventVoiceStateUpdate, left)
		}

		last, err := inst.Presences.UnregisterSocket(ctx, c.user.ID, c.sessionID, c.socketID.String())
		if err != nil {
			zap.S().Errorw("failed to unregister socket",
				"user_id", c.user.ID,
				"error", err,
			)

			return
		}

		if last {
			// Only the last socket's departure turns the user offline, and
			// it broadcasts exactly once.
			if err := inst.Presences.SetPresence(ctx, c.user.ID, structures.PresenceStatusOffline, ""); err != nil {
				zap.S().Errorw("failed to set presence offline",
					"user_id", c.user.ID,
					"error", err,
				)

				return
			}

			inst.Prometheus.PresenceWrites().Inc()

			s.broadcastPresence(ctx, topics, PresenceUpdateDispatch{
				UserID:     c.user.ID,
				Status:     structures.PresenceStatusOffline,
				LastSeenAt: time.Now().UnixMilli(),
			})
		}
	})
}

func orEmptyObject(data jsoniter.RawMessage) jsoniter.RawMessage {
	if len(data) == 0 {
		return jsoniter.RawMessage("{}")
	}

	return data
}

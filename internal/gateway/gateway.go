package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/fasthttp/router"
	"github.com/fasthttp/websocket"
	cache "github.com/patrickmn/go-cache"
	"github.com/valyala/fasthttp"
	"github.com/wavechat/gateway/internal/global"
	"github.com/wavechat/gateway/internal/svc/events"
	"go.uber.org/zap"
)

const (
	defaultHeartbeatIntervalMs = 41250
	defaultIdentifyTimeoutMs   = 30000

	defaultMessageLimit  = 30
	defaultMessageWindow = 60 * time.Second
	defaultTypingLimit   = 5
	defaultTypingWindow  = 5 * time.Second
)

// Server owns the websocket listener, the local room registry and the fanout
// relay for one gateway instance.
type Server struct {
	gCtx global.Context

	rooms *roomRegistry
	cache *cache.Cache

	heartbeatIntervalMs int
	identifyTimeoutMs   int

	messageLimit  int64
	messageWindow time.Duration
	typingLimit   int64
	typingWindow  time.Duration

	voiceEndpoint string

	upgrader websocket.FastHTTPUpgrader

	wg sync.WaitGroup
}

func NewServer(gCtx global.Context) *Server {
	cfg := gCtx.Config()

	s := &Server{
		gCtx:                gCtx,
		cache:               newPermCache(),
		heartbeatIntervalMs: cfg.Gateway.HeartbeatIntervalMs,
		identifyTimeoutMs:   cfg.Gateway.IdentifyTimeoutMs,
		messageLimit:        cfg.Limits.Buckets.MessageCreate[0],
		typingLimit:         cfg.Limits.Buckets.TypingStart[0],
		voiceEndpoint:       cfg.Gateway.Voice.Endpoint,
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(_ *fasthttp.RequestCtx) bool { return true },
		},
	}

	if s.heartbeatIntervalMs <= 0 {
		s.heartbeatIntervalMs = defaultHeartbeatIntervalMs
	}

	if s.identifyTimeoutMs <= 0 {
		s.identifyTimeoutMs = defaultIdentifyTimeoutMs
	}

	if s.messageLimit <= 0 {
		s.messageLimit = defaultMessageLimit
	}

	s.messageWindow = time.Duration(cfg.Limits.Buckets.MessageCreate[1]) * time.Second
	if s.messageWindow <= 0 {
		s.messageWindow = defaultMessageWindow
	}

	if s.typingLimit <= 0 {
		s.typingLimit = defaultTypingLimit
	}

	s.typingWindow = time.Duration(cfg.Limits.Buckets.TypingStart[1]) * time.Second
	if s.typingWindow <= 0 {
		s.typingWindow = defaultTypingWindow
	}

	s.rooms = newRoomRegistry(gCtx.Inst().Events, s.relay)

	return s
}

// New starts the gateway listener. The returned channel closes once the
// server has shut down.
func New(gCtx global.Context) <-chan struct{} {
	s := NewServer(gCtx)

	r := router.New()
	r.GET("/gateway", s.handleUpgrade)

	srv := fasthttp.Server{
		Handler: r.Handler,
		Name:    "wavechat-gateway",
	}

	done := make(chan struct{})

	go func() {
		defer close(done)

		zap.S().Infow("Gateway enabled",
			"bind", gCtx.Config().Gateway.Bind,
		)

		if err := srv.ListenAndServe(gCtx.Config().Gateway.Bind); err != nil {
			zap.S().Fatalw("failed to bind gateway",
				"error", err,
			)
		}
	}()

	go func() {
		<-gCtx.Done()

		_ = srv.Shutdown()

		s.Shutdown()
	}()

	return done
}

func (s *Server) handleUpgrade(ctx *fasthttp.RequestCtx) {
	err := s.upgrader.Upgrade(ctx, func(ws *websocket.Conn) {
		s.Accept(newWSTransport(ws))
	})
	if err != nil {
		zap.S().Errorw("websocket upgrade failed",
			"error", err,
		)
	}
}

// Accept runs a connection over the given transport until it closes.
func (s *Server) Accept(transport Transport) {
	conn, err := s.newConnection(transport)
	if err != nil {
		zap.S().Errorw("failed to create connection",
			"error", err,
		)

		_ = transport.Close(CloseCodeUnknownError, "internal error")

		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	conn.Serve()
}

// AcceptAsync is Accept on a fresh goroutine; test harnesses use it.
func (s *Server) AcceptAsync(transport Transport) {
	go s.Accept(transport)
}

// relay delivers a bus payload to every local member of the room. Room
// membership is the final broadcast gate; whether the payload originated on
// this instance or a peer is irrelevant here.
func (s *Server) relay(topic string, payload events.Payload) {
	s.gCtx.Inst().Prometheus.FanoutReceived().Inc()

	for _, conn := range s.rooms.Members(topic) {
		if err := conn.DispatchRaw(payload.Type, payload.Data); err != nil {
			zap.S().Debugw("failed to relay event",
				"topic", topic,
				"type", payload.Type,
				"error", err,
			)
		}
	}
}

// publish puts a dispatch event on the fanout bus. Local sockets receive it
// through this instance's own subscription; there is no separate local
// broadcast to deduplicate against.
func (s *Server) publish(ctx context.Context, topic string, eventType string, data any) {
	payload, err := events.NewPayload(eventType, data)
	if err != nil {
		zap.S().Errorw("failed to encode event",
			"type", eventType,
			"error", err,
		)

		return
	}

	if err := s.gCtx.Inst().Events.Publish(ctx, topic, payload); err != nil {
		zap.S().Errorw("failed to publish event",
			"topic", topic,
			"type", eventType,
			"error", err,
		)

		return
	}

	s.gCtx.Inst().Prometheus.FanoutPublished().Inc()
}

// broadcastPresence fans a presence change out to every room the user's
// connection belongs to.
func (s *Server) broadcastPresence(ctx context.Context, topics []string, update PresenceUpdateDispatch) {
	for _, topic := range topics {
		s.publish(ctx, topic, EventPresenceUpdate, update)
	}
}

// Shutdown closes the room registry and waits for in-flight connections.
func (s *Server) Shutdown() {
	s.rooms.Shutdown()
	s.wg.Wait()
}

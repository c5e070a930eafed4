package gateway

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wavechat/gateway/internal/configure"
	"github.com/wavechat/gateway/internal/global"
	"github.com/wavechat/gateway/internal/structures"
	"github.com/wavechat/gateway/internal/svc/auth"
	"github.com/wavechat/gateway/internal/svc/events"
	"github.com/wavechat/gateway/internal/svc/limiter"
	"github.com/wavechat/gateway/internal/svc/presences"
	"github.com/wavechat/gateway/internal/svc/prometheus"
	"github.com/wavechat/gateway/internal/svc/snowflake"
	"github.com/wavechat/gateway/internal/svc/store"
	"github.com/wavechat/gateway/internal/svc/voice"
)

const recvTimeout = 2 * time.Second

// pipeTransport is an in-memory frame pipe driving the connection state
// machine without a network.
type pipeTransport struct {
	in  chan []byte
	out chan []byte

	once      sync.Once
	closed    chan struct{}
	closeCode int
}

func newPipeTransport() *pipeTransport {
	return &pipeTransport{
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (p *pipeTransport) ReadMessage() ([]byte, error) {
	// Frames queued before the close are still delivered.
	select {
	case data := <-p.in:
		return data, nil
	default:
	}

	select {
	case data := <-p.in:
		return data, nil
	case <-p.closed:
		return nil, context.Canceled
	}
}

func (p *pipeTransport) WriteMessage(data []byte) error {
	select {
	case p.out <- data:
		return nil
	default:
	}

	select {
	case p.out <- data:
		return nil
	case <-p.closed:
		return context.Canceled
	}
}

func (p *pipeTransport) Close(code int, _ string) error {
	p.once.Do(func() {
		p.closeCode = code
		close(p.closed)
	})

	return nil
}

// clientClose simulates the peer dropping the connection.
func (p *pipeTransport) clientClose() {
	p.once.Do(func() {
		p.closeCode = -1
		close(p.closed)
	})
}

type testEnv struct {
	t *testing.T

	gCtx   global.Context
	cancel context.CancelFunc

	cfg   *configure.Config
	store *store.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	cfg := &configure.Config{}
	cfg.Gateway.HeartbeatIntervalMs = 60000
	cfg.Gateway.JWTSecret = "gateway-test"
	cfg.Gateway.Voice.Endpoint = "voice.test:443"

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	gCtx := global.New(ctx, cfg)

	st := seedStore()

	inst := gCtx.Inst()
	inst.Store = st
	inst.Events = events.NewMemory()
	inst.Presences = presences.NewMemory(presences.MemoryOptions{})
	inst.Voice = voice.NewMemory()
	inst.Limiter = limiter.NewMemory(limiter.MemoryOptions{})
	inst.Auth = auth.New(auth.Options{
		JWTSecret: cfg.Gateway.JWTSecret,
		Sessions:  auth.NewMemorySessionStore(),
	})
	inst.Prometheus = prometheus.New(prometheus.Options{})

	gen, err := snowflake.New(snowflake.Options{Datacenter: 1, Worker: 1})
	if err != nil {
		t.Fatal(err)
	}
	inst.Snowflake = gen

	return &testEnv{
		t:      t,
		gCtx:   gCtx,
		cancel: cancel,
		cfg:    cfg,
		store:  st,
	}
}

// Fixture ids. The everyone role shares the guild's id.
const (
	fixtureGuild       structures.ID = 500
	fixtureTextChannel structures.ID = 600
	fixtureVoiceChan   structures.ID = 601
	fixtureVoiceChan2  structures.ID = 602
	fixtureDMChannel   structures.ID = 700

	userAlice structures.ID = 1
	userBob   structures.ID = 2
	userCarol structures.ID = 3
)

func seedStore() *store.Memory {
	st := store.NewMemory()

	st.Users[userAlice] = structures.User{ID: userAlice, Username: "alice", Discriminator: "0001"}
	st.Users[userBob] = structures.User{ID: userBob, Username: "bob", Discriminator: "0002"}
	st.Users[userCarol] = structures.User{ID: userCarol, Username: "carol", Discriminator: "0003"}

	st.Guilds[fixtureGuild] = structures.Guild{ID: fixtureGuild, Name: "testing", OwnerID: userAlice}

	st.Roles[fixtureGuild] = []structures.Role{{
		ID:       fixtureGuild,
		GuildID:  fixtureGuild,
		Name:     "everyone",
		Position: 0,
		Permissions: structures.PermissionViewChannel |
			structures.PermissionSendMessages |
			structures.PermissionAddReactions |
			structures.PermissionVoiceConnect,
	}}

	st.Members[fixtureGuild] = []structures.Member{
		{UserID: userAlice, GuildID: fixtureGuild, RoleIDs: []structures.ID{fixtureGuild}},
		{UserID: userBob, GuildID: fixtureGuild, RoleIDs: []structures.ID{fixtureGuild}},
		{UserID: userCarol, GuildID: fixtureGuild, RoleIDs: []structures.ID{fixtureGuild}},
	}

	st.Channels[fixtureTextChannel] = structures.Channel{
		ID:      fixtureTextChannel,
		GuildID: fixtureGuild,
		Type:    structures.ChannelTypeGuildText,
		Name:    "general",
		Overwrites: []structures.Overwrite{{
			TargetID:   userCarol,
			TargetKind: structures.OverwriteTargetMember,
			Deny:       structures.PermissionSendMessages | structures.PermissionAddReactions,
		}},
	}

	st.Channels[fixtureVoiceChan] = structures.Channel{
		ID:      fixtureVoiceChan,
		GuildID: fixtureGuild,
		Type:    structures.ChannelTypeGuildVoice,
		Name:    "lounge",
	}

	st.Channels[fixtureVoiceChan2] = structures.Channel{
		ID:      fixtureVoiceChan2,
		GuildID: fixtureGuild,
		Type:    structures.ChannelTypeGuildVoice,
		Name:    "afk",
	}

	st.Channels[fixtureDMChannel] = structures.Channel{
		ID:           fixtureDMChannel,
		Type:         structures.ChannelTypeDM,
		RecipientIDs: []structures.ID{userAlice, userBob},
	}

	return st
}

func (env *testEnv) newServer() *Server {
	return NewServer(env.gCtx)
}

func (env *testEnv) token(userID structures.ID) string {
	token, _, err := env.gCtx.Inst().Auth.SignAccessToken(userID, "login-"+userID.String(), time.Hour)
	if err != nil {
		env.t.Fatal(err)
	}

	return token
}

type testClient struct {
	t  *testing.T
	tr *pipeTransport
}

func dial(t *testing.T, s *Server) *testClient {
	tr := newPipeTransport()
	s.AcceptAsync(tr)

	return &testClient{t: t, tr: tr}
}

func (c *testClient) send(op Opcode, eventType string, data any) {
	c.t.Helper()

	env := Envelope{Op: op, Type: eventType}

	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			c.t.Fatal(err)
		}

		env.Data = b
	}

	b, err := json.Marshal(env)
	if err != nil {
		c.t.Fatal(err)
	}

	select {
	case c.tr.in <- b:
	case <-time.After(recvTimeout):
		c.t.Fatal("send timed out")
	}
}

func (c *testClient) sendRaw(data string) {
	c.t.Helper()

	select {
	case c.tr.in <- []byte(data):
	case <-time.After(recvTimeout):
		c.t.Fatal("send timed out")
	}
}

func (c *testClient) recv() Envelope {
	c.t.Helper()

	data, ok := c.nextFrame(time.After(recvTimeout), "frame")
	if !ok {
		return Envelope{}
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.t.Fatalf("malformed frame: %v", err)
	}

	return env
}

// nextFrame reads one raw frame. A frame already in flight when the close
// lands still counts; the writer flushes before closing and the test should
// see what it flushed.
func (c *testClient) nextFrame(deadline <-chan time.Time, what string) ([]byte, bool) {
	c.t.Helper()

	select {
	case data := <-c.tr.out:
		return data, true
	default:
	}

	select {
	case data := <-c.tr.out:
		return data, true
	case <-deadline:
		c.t.Fatalf("timed out awaiting %s", what)
	case <-c.tr.closed:
		select {
		case data := <-c.tr.out:
			return data, true
		case <-time.After(50 * time.Millisecond):
			c.t.Fatalf("connection closed while awaiting %s", what)
		}
	}

	return nil, false
}

func (c *testClient) expectOp(op Opcode) Envelope {
	c.t.Helper()

	env := c.recv()
	if env.Op != op {
		c.t.Fatalf("expected opcode %d got %d (t=%s)", op, env.Op, env.Type)
	}

	return env
}

// awaitOp scans past dispatch frames until a control frame with the given
// opcode arrives.
func (c *testClient) awaitOp(op Opcode) Envelope {
	c.t.Helper()

	deadline := time.After(recvTimeout)

	for {
		data, ok := c.nextFrame(deadline, fmt.Sprintf("opcode %d", op))
		if !ok {
			return Envelope{}
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.t.Fatalf("malformed frame: %v", err)
		}

		if env.Op == OpcodeDispatch {
			continue
		}

		if env.Op != op {
			c.t.Fatalf("expected opcode %d got %d", op, env.Op)
		}

		return env
	}
}

// awaitDispatch scans past unrelated dispatches until one of the given type
// arrives.
func (c *testClient) awaitDispatch(eventType string) Envelope {
	c.t.Helper()

	deadline := time.After(recvTimeout)

	for {
		data, ok := c.nextFrame(deadline, eventType)
		if !ok {
			return Envelope{}
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.t.Fatalf("malformed frame: %v", err)
		}

		if env.Op == OpcodeDispatch && env.Type == eventType {
			return env
		}
	}
}

// expectNoDispatch asserts no dispatch of the given type arrives within the
// window.
func (c *testClient) expectNoDispatch(eventType string, window time.Duration) {
	c.t.Helper()

	deadline := time.After(window)

	for {
		select {
		case data := <-c.tr.out:
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				continue
			}

			if env.Op == OpcodeDispatch && env.Type == eventType {
				c.t.Fatalf("unexpected %s dispatch", eventType)
			}
		case <-deadline:
			return
		case <-c.tr.closed:
			return
		}
	}
}

// awaitPresence scans dispatches for a presence update matching user and
// broadcast status.
func (c *testClient) awaitPresence(userID structures.ID, status structures.PresenceStatus) PresenceUpdateDispatch {
	c.t.Helper()

	deadline := time.After(recvTimeout)

	for {
		select {
		case data := <-c.tr.out:
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				continue
			}

			if env.Op != OpcodeDispatch || env.Type != EventPresenceUpdate {
				continue
			}

			var p PresenceUpdateDispatch
			if err := json.Unmarshal(env.Data, &p); err != nil {
				continue
			}

			if p.UserID == userID && p.Status == status {
				return p
			}
		case <-deadline:
			c.t.Fatalf("timed out awaiting presence %s for user %s", status, userID)
		case <-c.tr.closed:
			c.t.Fatal("connection closed while awaiting presence update")
		}
	}
}

// countPresence counts matching presence dispatches arriving within the
// window.
func (c *testClient) countPresence(userID structures.ID, status structures.PresenceStatus, window time.Duration) int {
	c.t.Helper()

	deadline := time.After(window)
	count := 0

	for {
		select {
		case data := <-c.tr.out:
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				continue
			}

			if env.Op != OpcodeDispatch || env.Type != EventPresenceUpdate {
				continue
			}

			var p PresenceUpdateDispatch
			if err := json.Unmarshal(env.Data, &p); err != nil {
				continue
			}

			if p.UserID == userID && p.Status == status {
				count++
			}
		case <-deadline:
			return count
		case <-c.tr.closed:
			return count
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(recvTimeout)

	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Fatal("condition not met before deadline")
}

func (c *testClient) expectClosed(code int) {
	c.t.Helper()

	select {
	case <-c.tr.closed:
		if c.tr.closeCode != code {
			c.t.Fatalf("expected close code %d got %d", code, c.tr.closeCode)
		}
	case <-time.After(recvTimeout):
		c.t.Fatalf("connection not closed, expected code %d", code)
	}
}

func decode[T any](t *testing.T, env Envelope) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("failed to decode %s payload: %v", env.Type, err)
	}

	return v
}

// connect dials and runs the full handshake for a user, consuming HELLO and
// READY.
func connect(t *testing.T, env *testEnv, s *Server, userID structures.ID) (*testClient, ReadyPayload) {
	t.Helper()

	c := dial(t, s)

	hello := decode[HelloPayload](t, c.expectOp(OpcodeHello))
	if hello.SessionID == "" || hello.HeartbeatInterval <= 0 {
		t.Fatal("invalid hello payload")
	}

	c.send(OpcodeIdentify, "", IdentifyPayload{Token: env.token(userID)})

	ready := decode[ReadyPayload](t, c.awaitDispatch(EventReady))

	return c, ready
}

package server

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/sparkmatch/sparkd/internal/config"
	"github.com/sparkmatch/sparkd/internal/database"
	"github.com/sparkmatch/sparkd/internal/stats"
	"github.com/sparkmatch/sparkd/internal/testutil"
	"github.com/sparkmatch/sparkd/internal/types"
)

// newTestGateway creates a Gateway for testing purposes. Intervals are long
// enough that no timer fires unless a test asks for it.
func newTestGateway(t *testing.T, db database.SparkRepository, su *stats.MockStatsUpdater) *Gateway {
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(6)

	cfg := &config.Config{
		HeartbeatInterval: time.Minute,
		SweepInterval:     time.Minute,
		TypingTimeout:     time.Minute,
	}

	logger := testutil.TestLogger(t)
	g, err := NewGateway(logger, db, su, cfg)
	if err != nil {
		t.Fatalf("failed to create test Gateway: %v", err)
	}
	return g
}

// newTestClient builds a client that is not bound to a websocket; handlers
// only touch the send buffer, which tests drain directly.
func newTestClient(id string, user types.User) *Client {
	c := &Client{
		id:   id,
		user: user,
		log:  log.New(io.Discard, "", 0),
		send: make(chan *ServerMessage, 256),
		stop: make(chan struct{}),
	}
	c.touch()
	return c
}

// recvMessage pops one queued outbound message or fails the test. Handlers
// run synchronously, so anything queued is already in the buffer.
func recvMessage(t *testing.T, c *Client) *ServerMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	default:
		t.Fatalf("expected a queued message on connection %s", c.id)
		return nil
	}
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("expected no queued message on connection %s, got %+v", c.id, msg)
	default:
	}
}

func TestNewGateway(t *testing.T) {
	db := &database.MockSparkRepository{}
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(6)

	logger := testutil.TestLogger(t)
	cfg := &config.Config{
		HeartbeatInterval: config.DefaultHeartbeatInterval,
		SweepInterval:     config.DefaultSweepInterval,
		TypingTimeout:     config.DefaultTypingTimeout,
	}

	g, err := NewGateway(logger, db, su, cfg)
	assert.NoError(t, err, "expected no error creating Gateway")
	assert.NotNil(t, g, "expected Gateway to be non-nil")
	assert.Equal(t, logger, g.log, "expected logger to be set")
	assert.Equal(t, db, g.db, "expected database repository to be set")
	assert.NotNil(t, g.registry, "expected registry to be initialized")
	assert.NotNil(t, g.rooms, "expected room table to be initialized")
	assert.NotNil(t, g.timers, "expected timer store to be initialized")
	assert.NotNil(t, g.stop, "expected stop channel to be initialized")
	assert.Equal(t, config.DefaultHeartbeatInterval, g.heartbeatInterval, "expected heartbeat interval from config")
}

func TestResetPresence(t *testing.T) {
	t.Run("resets all users offline", func(t *testing.T) {
		db := &database.MockSparkRepository{}
		defer db.AssertExpectations(t)
		db.On("ResetAllOffline").Return(nil).Once()

		g := newTestGateway(t, db, &stats.MockStatsUpdater{})
		assert.NoError(t, g.ResetPresence(), "expected no error resetting presence")
	})

	t.Run("propagates storage failure", func(t *testing.T) {
		db := &database.MockSparkRepository{}
		defer db.AssertExpectations(t)
		db.On("ResetAllOffline").Return(assert.AnError).Once()

		g := newTestGateway(t, db, &stats.MockStatsUpdater{})
		assert.ErrorIs(t, g.ResetPresence(), assert.AnError, "expected storage error to surface")
	})
}

func TestGatewayShutdown(t *testing.T) {
	t.Run("successful shutdown with no connections", func(t *testing.T) {
		g := newTestGateway(t, &database.MockSparkRepository{}, &stats.MockStatsUpdater{})
		go g.Run()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := g.Shutdown(ctx)
		assert.NoError(t, err, "expected successful shutdown without error")
	})

	t.Run("fails with context deadline exceeded when run loop never started", func(t *testing.T) {
		g := newTestGateway(t, &database.MockSparkRepository{}, &stats.MockStatsUpdater{})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := g.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded, "expected context deadline exceeded error, got %v", err)
	})
}

func Test_dispatch(t *testing.T) {
	t.Run("rejects invalid message", func(t *testing.T) {
		g := newTestGateway(t, &database.MockSparkRepository{}, &stats.MockStatsUpdater{})
		c := newTestClient("c1", types.User{Id: 1, Username: "alice"})

		g.dispatch(c, &ClientMessage{BaseMessage: BaseMessage{Id: 7}})

		resp := recvMessage(t, c)
		assert.NotNil(t, resp.Response, "expected a response message")
		assert.Equal(t, CodeInvalidMessage, resp.Response.Code, "expected invalid message code")
		assert.Equal(t, 7, resp.Id, "expected response to echo message id")
	})

	t.Run("rejects message with multiple variants", func(t *testing.T) {
		g := newTestGateway(t, &database.MockSparkRepository{}, &stats.MockStatsUpdater{})
		c := newTestClient("c1", types.User{Id: 1, Username: "alice"})

		g.dispatch(c, &ClientMessage{
			Join: &JoinConversation{ReceiverId: 2},
			Send: &SendMessage{ReceiverId: 2, Content: "hi"},
		})

		resp := recvMessage(t, c)
		assert.Equal(t, CodeInvalidMessage, resp.Response.Code, "expected invalid message code")
	})

	t.Run("recovers from handler panic", func(t *testing.T) {
		db := &database.MockSparkRepository{}
		db.On("CanChat", 1, 2).Run(func(mock.Arguments) {
			panic("boom")
		}).Return(false, nil).Once()

		g := newTestGateway(t, db, &stats.MockStatsUpdater{})
		c := newTestClient("c1", types.User{Id: 1, Username: "alice"})

		assert.NotPanics(t, func() {
			g.dispatch(c, &ClientMessage{Join: &JoinConversation{ReceiverId: 2}})
		}, "expected panic to be contained in dispatch")

		resp := recvMessage(t, c)
		assert.Equal(t, CodeInternalError, resp.Response.Code, "expected internal error code after panic")
	})

	t.Run("heartbeat ack is a no-op", func(t *testing.T) {
		g := newTestGateway(t, &database.MockSparkRepository{}, &stats.MockStatsUpdater{})
		c := newTestClient("c1", types.User{Id: 1, Username: "alice"})

		g.dispatch(c, &ClientMessage{HeartbeatAck: &HeartbeatAck{}})
		assertNoMessage(t, c)
	})
}

func Test_broadcastAll(t *testing.T) {
	g := newTestGateway(t, &database.MockSparkRepository{}, &stats.MockStatsUpdater{})
	c1 := newTestClient("c1", types.User{Id: 1, Username: "alice"})
	c2 := newTestClient("c2", types.User{Id: 2, Username: "bob"})
	g.registry.add(c1)
	g.registry.add(c2)

	g.broadcastAll(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Presence:    &Presence{UserId: 1, Online: true},
		SkipClient:  c1,
	})

	assertNoMessage(t, c1)
	msg := recvMessage(t, c2)
	assert.NotNil(t, msg.Presence, "expected presence broadcast")
	assert.Equal(t, 1, msg.Presence.UserId, "expected presence for user 1")
}

package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sparkmatch/sparkd/internal/config"
	"github.com/sparkmatch/sparkd/internal/database"
	"github.com/sparkmatch/sparkd/internal/stats"
)

const (
	metricActiveConnections    = "NumActiveConnections"
	metricOnlineUsers          = "NumOnlineUsers"
	metricOpenConversations    = "NumOpenConversations"
	metricMessagesDelivered    = "NumMessagesDelivered"
	metricNotificationsCreated = "NumNotificationsCreated"
	metricSweeperReaps         = "NumSweeperReaps"
)

// Gateway is the event dispatch gateway: it admits authenticated
// connections, owns the connection registry, conversation rooms and timer
// store, and routes every inbound event to its handler. Collaborators that
// need to emit realtime events hold an injected *Gateway, there is no
// process-wide singleton.
type Gateway struct {
	log      *log.Logger
	db       database.SparkRepository
	stats    stats.StatsProvider
	registry *connRegistry
	rooms    *roomTable
	timers   *TimerStore

	heartbeatInterval time.Duration
	sweepInterval     time.Duration
	typingTimeout     time.Duration

	stop chan struct{}
	done chan struct{}
}

func NewGateway(logger *log.Logger, db database.SparkRepository, su stats.StatsProvider, cfg *config.Config) (*Gateway, error) {
	g := &Gateway{
		log:               logger,
		db:                db,
		stats:             su,
		registry:          newConnRegistry(),
		rooms:             newRoomTable(),
		timers:            NewTimerStore(logger),
		heartbeatInterval: cfg.HeartbeatInterval,
		sweepInterval:     cfg.SweepInterval,
		typingTimeout:     cfg.TypingTimeout,
		stop:              make(chan struct{}),
		done:              make(chan struct{}),
	}

	for _, name := range []string{
		metricActiveConnections,
		metricOnlineUsers,
		metricOpenConversations,
		metricMessagesDelivered,
		metricNotificationsCreated,
		metricSweeperReaps,
	} {
		su.RegisterMetric(name)
	}

	return g, nil
}

// ResetPresence unconditionally marks every user offline in storage. It runs
// at startup before any connection is admitted, so storage never disagrees
// with the empty in-memory registry.
func (g *Gateway) ResetPresence() error {
	if err := g.db.ResetAllOffline(); err != nil {
		return fmt.Errorf("reset presence state: %w", err)
	}

	return nil
}

// Run blocks running the liveness sweeper until Shutdown.
func (g *Gateway) Run() {
	g.sweepLoop()
	close(g.done)
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	g.log.Println("shutting down gateway")
	for _, c := range g.registry.allClients() {
		c.teardown()
	}
	g.timers.StopAll()
	close(g.stop)

	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch routes one validated inbound event to its handler. Handlers are
// fault-isolated: a panic is logged and answered with an error event, it
// never terminates the connection or affects other handlers.
func (g *Gateway) dispatch(c *Client, msg *ClientMessage) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Printf("handler panic on connection %s: %v", c.id, r)
			c.queueMessage(ErrInternalError(msg.Id, ""))
		}
	}()

	if err := msg.validate(); err != nil {
		g.log.Printf("invalid message from %q: %v", c.user.Username, err)
		c.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	switch {
	case msg.Join != nil:
		g.handleJoinConversation(c, msg)
	case msg.Send != nil:
		g.handleSendMessage(c, msg)
	case msg.Read != nil:
		g.handleMessageRead(c, msg)
	case msg.TypingStart != nil:
		g.handleTypingStart(c, msg)
	case msg.TypingStop != nil:
		g.handleTypingStop(c, msg)
	case msg.NotifRead != nil:
		g.handleNotificationRead(c, msg)
	case msg.NotifReadAll != nil:
		g.handleNotificationReadAll(c, msg)
	case msg.Disconnect != nil:
		g.handleClientDisconnect(c)
	case msg.OnlineUpdate != nil:
		g.handleOnlineUpdate(c)
	case msg.OfflineForce != nil:
		g.ForceOffline(c.user.Id)
	case msg.HeartbeatAck != nil:
		// liveness signal for the transport layer, no application state
	}
}

// broadcastAll fans an event out to every live connection, best effort.
func (g *Gateway) broadcastAll(msg *ServerMessage) {
	for _, c := range g.registry.allClients() {
		if c == msg.SkipClient {
			continue
		}
		c.queueMessage(msg)
	}
}

// deliverToUser fans an event out to all of one user's connections.
func (g *Gateway) deliverToUser(userId int, msg *ServerMessage) {
	for _, c := range g.registry.connectionsOf(userId) {
		if c == msg.SkipClient {
			continue
		}
		c.queueMessage(msg)
	}
}

func (g *Gateway) IsOnline(userId int) bool {
	return g.registry.isOnline(userId)
}

func (g *Gateway) OnlineCount() int {
	return g.registry.onlineCount()
}

func (g *Gateway) OnlineUserIds() []int {
	return g.registry.onlineUserIds()
}

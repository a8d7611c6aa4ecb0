package server

import (
	"github.com/sparkmatch/sparkd/internal/database"
	"github.com/sparkmatch/sparkd/internal/types"
)

// RegisterClient admits a freshly upgraded connection into the gateway.
func (g *Gateway) RegisterClient(c *Client) {
	g.admitClient(c)
}

// admitClient binds an authenticated connection into the registry, starts
// its heartbeat probe, persists the online transition and broadcasts it.
// Presence persistence failures are logged and swallowed: they must never
// block admission or message delivery.
func (g *Gateway) admitClient(c *Client) {
	cameOnline := g.registry.add(c)
	g.stats.Incr(metricActiveConnections)
	if cameOnline {
		g.stats.Incr(metricOnlineUsers)
	}

	if err := g.db.TouchOnline(c.user.Id); err != nil {
		g.log.Printf("touch online for user %d: %v", c.user.Id, err)
	}

	g.broadcastAll(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Presence:    &Presence{UserId: c.user.Id, Online: true},
	})

	g.timers.StartHeartbeat(c.id, g.heartbeatInterval, func() bool {
		if !c.alive() {
			return false
		}
		c.queueMessage(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Heartbeat:   &Heartbeat{},
		})
		return true
	})

	g.log.Printf("admitted connection %s for user %q", c.id, c.user.Username)
}

// dropConnection removes one connection from the registry and, when it was
// the user's last, runs the offline transition. Every teardown path (read
// pump exit, explicit disconnect event, sweeper reap) converges here.
func (g *Gateway) dropConnection(c *Client) {
	g.timers.CancelHeartbeat(c.id)
	g.leaveAllRooms(c)

	removed, wentOffline := g.registry.remove(c.user.Id, c.id)
	if !removed {
		return
	}

	g.stats.Decr(metricActiveConnections)
	if wentOffline {
		g.setUserOffline(c.user.Id)
	}
}

// setUserOffline persists and broadcasts the 1→0 presence transition.
func (g *Gateway) setUserOffline(userId int) {
	g.stats.Decr(metricOnlineUsers)

	if err := g.db.SetOffline(userId); err != nil {
		g.log.Printf("set offline for user %d: %v", userId, err)
	}

	g.broadcastAll(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Presence:    &Presence{UserId: userId, Online: false},
	})
}

// ForceOffline marks a user offline immediately, for logout flows that must
// not wait for transport-level disconnect detection. It always wins: any
// registry entries still present are evicted and their connections closed.
func (g *Gateway) ForceOffline(userId int) {
	evicted := g.registry.removeAll(userId)
	for _, c := range evicted {
		g.stats.Decr(metricActiveConnections)
		g.timers.CancelHeartbeat(c.id)
		g.leaveAllRooms(c)
		c.stopClient()
	}

	if len(evicted) > 0 {
		g.setUserOffline(userId)
		return
	}

	// no live connections; still persist and broadcast so stale state clears
	if err := g.db.SetOffline(userId); err != nil {
		g.log.Printf("set offline for user %d: %v", userId, err)
	}
	g.broadcastAll(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Presence:    &Presence{UserId: userId, Online: false},
	})
}

// handleClientDisconnect is the application-level logout event; it converges
// on the same idempotent teardown as a transport disconnect.
func (g *Gateway) handleClientDisconnect(c *Client) {
	c.teardown()
	c.stopClient()
}

// handleOnlineUpdate is an explicit presence override: re-persist and
// re-broadcast the online state of an already-admitted connection.
func (g *Gateway) handleOnlineUpdate(c *Client) {
	if err := g.db.TouchOnline(c.user.Id); err != nil {
		g.log.Printf("touch online for user %d: %v", c.user.Id, err)
	}

	g.broadcastAll(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Presence:    &Presence{UserId: c.user.Id, Online: true},
	})
}

// PushNotification lets collaborators (like the HTTP like/match endpoints)
// deliver a realtime notification to all of a user's connections.
func (g *Gateway) PushNotification(userId int, n types.Notification) {
	g.deliverToUser(userId, &ServerMessage{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		Notification: &n,
	})
	g.pushUnreadCounts(userId)
}

// NotifyUser persists a notification and pushes it to the recipient's live
// connections along with fresh unread counters.
func (g *Gateway) NotifyUser(params database.CreateNotificationParams) error {
	n, err := g.db.CreateNotification(params)
	if err != nil {
		return err
	}

	g.stats.Incr(metricNotificationsCreated)
	g.PushNotification(params.UserId, notificationFromDB(n))

	return nil
}

// pushUnreadCounts sends fresh unread counters to a user's connections.
// Failures are swallowed; counts are advisory.
func (g *Gateway) pushUnreadCounts(userId int) {
	if !g.registry.isOnline(userId) {
		return
	}

	msgs, err := g.db.CountUnreadMessages(userId)
	if err != nil {
		g.log.Printf("count unread messages for user %d: %v", userId, err)
		return
	}
	notifs, err := g.db.CountUnreadNotifications(userId)
	if err != nil {
		g.log.Printf("count unread notifications for user %d: %v", userId, err)
		return
	}

	g.deliverToUser(userId, &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		UnreadCount: &UnreadCount{Messages: msgs, Notifications: notifs},
	})
}

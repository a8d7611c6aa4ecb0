package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/sparkmatch/sparkd/internal/database"
	"github.com/sparkmatch/sparkd/internal/stats"
	"github.com/sparkmatch/sparkd/internal/types"
)

func TestRegisterClient(t *testing.T) {
	t.Run("first connection brings user online", func(t *testing.T) {
		db := &database.MockSparkRepository{}
		defer db.AssertExpectations(t)
		db.On("TouchOnline", 1).Return(nil).Once()

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)
		su.On("Incr", "NumActiveConnections").Once()
		su.On("Incr", "NumOnlineUsers").Once()

		g := newTestGateway(t, db, su)
		defer g.timers.StopAll()

		c := newTestClient("c1", types.User{Id: 1, Username: "alice"})
		g.RegisterClient(c)

		assert.True(t, g.IsOnline(1), "expected user 1 online after registration")
		assert.Equal(t, 1, g.timers.HeartbeatCount(), "expected a heartbeat probe for the connection")

		msg := recvMessage(t, c)
		assert.NotNil(t, msg.Presence, "expected online broadcast")
		assert.True(t, msg.Presence.Online, "expected presence to report online")
	})

	t.Run("second connection does not re-report online", func(t *testing.T) {
		db := &database.MockSparkRepository{}
		db.On("TouchOnline", 1).Return(nil).Twice()

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)
		su.On("Incr", "NumActiveConnections").Twice()
		su.On("Incr", "NumOnlineUsers").Once()

		g := newTestGateway(t, db, su)
		defer g.timers.StopAll()

		g.RegisterClient(newTestClient("c1", types.User{Id: 1, Username: "alice"}))
		g.RegisterClient(newTestClient("c2", types.User{Id: 1, Username: "alice"}))

		assert.Equal(t, 1, g.OnlineCount(), "expected one online user with two connections")
	})

	t.Run("admission survives presence persistence failure", func(t *testing.T) {
		db := &database.MockSparkRepository{}
		db.On("TouchOnline", 1).Return(assert.AnError).Once()

		su := &stats.MockStatsUpdater{}
		su.On("Incr", "NumActiveConnections").Once()
		su.On("Incr", "NumOnlineUsers").Once()

		g := newTestGateway(t, db, su)
		defer g.timers.StopAll()

		c := newTestClient("c1", types.User{Id: 1, Username: "alice"})
		g.RegisterClient(c)

		assert.True(t, g.IsOnline(1), "expected user online despite storage failure")
	})
}

func Test_dropConnection(t *testing.T) {
	t.Run("last connection takes user offline exactly once", func(t *testing.T) {
		db := &database.MockSparkRepository{}
		defer db.AssertExpectations(t)
		db.On("TouchOnline", 1).Return(nil).Once()
		db.On("SetOffline", 1).Return(nil).Once()

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)
		su.On("Incr", "NumActiveConnections").Once()
		su.On("Incr", "NumOnlineUsers").Once()
		su.On("Decr", "NumActiveConnections").Once()
		su.On("Decr", "NumOnlineUsers").Once()

		g := newTestGateway(t, db, su)
		c := newTestClient("c1", types.User{Id: 1, Username: "alice"})
		c.gw = g
		g.RegisterClient(c)

		c.teardown()
		c.teardown() // duplicate disconnect signal

		assert.False(t, g.IsOnline(1), "expected user offline after last drop")
		assert.Equal(t, 0, g.timers.HeartbeatCount(), "expected heartbeat cancelled on drop")
	})

	t.Run("drop with remaining connection keeps user online", func(t *testing.T) {
		db := &database.MockSparkRepository{}
		defer db.AssertExpectations(t)
		db.On("TouchOnline", 1).Return(nil).Twice()

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)
		su.On("Incr", "NumActiveConnections").Twice()
		su.On("Incr", "NumOnlineUsers").Once()
		su.On("Decr", "NumActiveConnections").Once()

		g := newTestGateway(t, db, su)
		defer g.timers.StopAll()

		c1 := newTestClient("c1", types.User{Id: 1, Username: "alice"})
		c1.gw = g
		c2 := newTestClient("c2", types.User{Id: 1, Username: "alice"})
		c2.gw = g
		g.RegisterClient(c1)
		g.RegisterClient(c2)

		c1.teardown()

		assert.True(t, g.IsOnline(1), "expected user still online with one connection")
	})
}

func TestForceOffline(t *testing.T) {
	t.Run("evicts live connections and persists offline", func(t *testing.T) {
		db := &database.MockSparkRepository{}
		defer db.AssertExpectations(t)
		db.On("TouchOnline", 1).Return(nil).Twice()
		db.On("SetOffline", 1).Return(nil).Once()

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)
		su.On("Incr", "NumActiveConnections").Twice()
		su.On("Incr", "NumOnlineUsers").Once()
		su.On("Decr", "NumActiveConnections").Twice()
		su.On("Decr", "NumOnlineUsers").Once()

		g := newTestGateway(t, db, su)
		c1 := newTestClient("c1", types.User{Id: 1, Username: "alice"})
		c2 := newTestClient("c2", types.User{Id: 1, Username: "alice"})
		g.RegisterClient(c1)
		g.RegisterClient(c2)

		g.ForceOffline(1)

		assert.False(t, g.IsOnline(1), "expected user offline after forced logout")
		assert.Equal(t, 0, g.timers.HeartbeatCount(), "expected all heartbeats cancelled")

		select {
		case <-c1.stop:
		default:
			t.Error("expected evicted connection c1 to be stopped")
		}
	})

	t.Run("clears stale state when no connections exist", func(t *testing.T) {
		db := &database.MockSparkRepository{}
		defer db.AssertExpectations(t)
		db.On("SetOffline", 1).Return(nil).Once()

		g := newTestGateway(t, db, &stats.MockStatsUpdater{})
		g.ForceOffline(1)
	})
}

func Test_pushUnreadCounts(t *testing.T) {
	t.Run("delivers counters to an online user", func(t *testing.T) {
		db := &database.MockSparkRepository{}
		defer db.AssertExpectations(t)
		db.On("CountUnreadMessages", 1).Return(3, nil).Once()
		db.On("CountUnreadNotifications", 1).Return(2, nil).Once()

		g := newTestGateway(t, db, &stats.MockStatsUpdater{})
		c := newTestClient("c1", types.User{Id: 1, Username: "alice"})
		g.registry.add(c)

		g.pushUnreadCounts(1)

		msg := recvMessage(t, c)
		assert.NotNil(t, msg.UnreadCount, "expected an unread count update")
		assert.Equal(t, 3, msg.UnreadCount.Messages, "expected unread message count")
		assert.Equal(t, 2, msg.UnreadCount.Notifications, "expected unread notification count")
	})

	t.Run("skips offline users without touching storage", func(t *testing.T) {
		db := &database.MockSparkRepository{}
		defer db.AssertExpectations(t)

		g := newTestGateway(t, db, &stats.MockStatsUpdater{})
		g.pushUnreadCounts(1)
	})
}

func TestNotifyUser(t *testing.T) {
	t.Run("persists and pushes to live connections", func(t *testing.T) {
		db := &database.MockSparkRepository{}
		defer db.AssertExpectations(t)
		db.On("CreateNotification", database.CreateNotificationParams{
			UserId:  1,
			Kind:    types.NotificationLike,
			ActorId: 2,
		}).Return(database.Notification{
			Id:            5,
			UserId:        1,
			Kind:          types.NotificationLike,
			ActorId:       2,
			ActorUsername: "bob",
		}, nil).Once()
		db.On("CountUnreadMessages", 1).Return(0, nil).Once()
		db.On("CountUnreadNotifications", 1).Return(1, nil).Once()

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)
		su.On("Incr", "NumNotificationsCreated").Once()

		g := newTestGateway(t, db, su)
		c := newTestClient("c1", types.User{Id: 1, Username: "alice"})
		g.registry.add(c)

		err := g.NotifyUser(database.CreateNotificationParams{
			UserId:  1,
			Kind:    types.NotificationLike,
			ActorId: 2,
		})
		assert.NoError(t, err, "expected notification to be created")

		msg := recvMessage(t, c)
		assert.NotNil(t, msg.Notification, "expected notification push")
		assert.Equal(t, types.NotificationLike, msg.Notification.Kind, "expected like notification")
		assert.Equal(t, "bob", msg.Notification.ActorUsername, "expected actor username snapshot")
	})

	t.Run("returns storage error", func(t *testing.T) {
		db := &database.MockSparkRepository{}
		db.On("CreateNotification", mock.Anything).Return(database.Notification{}, assert.AnError).Once()

		g := newTestGateway(t, db, &stats.MockStatsUpdater{})
		err := g.NotifyUser(database.CreateNotificationParams{UserId: 1, Kind: types.NotificationLike, ActorId: 2})
		assert.ErrorIs(t, err, assert.AnError, "expected storage error to surface")
	})
}

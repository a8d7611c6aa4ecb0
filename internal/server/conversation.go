package server

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/sparkmatch/sparkd/internal/database"
	"github.com/sparkmatch/sparkd/internal/types"
)

// conversationKey derives the canonical room identifier for a pair of users:
// smaller id first, so both participants and the router agree on the key
// regardless of who initiated.
func conversationKey(a, b int) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// roomTable groups connections by conversation key with a reverse index per
// connection, so leaveAll on disconnect is proportional to the rooms the
// connection actually joined.
type roomTable struct {
	mu          sync.RWMutex
	rooms       map[string]map[*Client]struct{}
	memberships map[*Client]map[string]struct{}
}

func newRoomTable() *roomTable {
	return &roomTable{
		rooms:       make(map[string]map[*Client]struct{}),
		memberships: make(map[*Client]map[string]struct{}),
	}
}

// join adds a connection to a room, reporting whether the room was created.
func (rt *roomTable) join(key string, c *Client) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	created := false
	if rt.rooms[key] == nil {
		rt.rooms[key] = make(map[*Client]struct{})
		created = true
	}
	rt.rooms[key][c] = struct{}{}

	if rt.memberships[c] == nil {
		rt.memberships[c] = make(map[string]struct{})
	}
	rt.memberships[c][key] = struct{}{}

	return created
}

// leave removes a connection from a room, reporting whether the room emptied.
func (rt *roomTable) leave(key string, c *Client) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.leaveLocked(key, c)
}

func (rt *roomTable) leaveLocked(key string, c *Client) bool {
	occupants, ok := rt.rooms[key]
	if !ok {
		return false
	}
	if _, ok := occupants[c]; !ok {
		return false
	}

	delete(occupants, c)
	if keys, ok := rt.memberships[c]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(rt.memberships, c)
		}
	}

	if len(occupants) == 0 {
		delete(rt.rooms, key)
		return true
	}
	return false
}

// leaveAll removes a connection from every room it joined, returning how
// many rooms emptied as a result.
func (rt *roomTable) leaveAll(c *Client) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	emptied := 0
	for key := range rt.memberships[c] {
		if rt.leaveLocked(key, c) {
			emptied++
		}
	}
	return emptied
}

func (rt *roomTable) occupants(key string) []*Client {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	occupants := rt.rooms[key]
	if len(occupants) == 0 {
		return nil
	}

	out := make([]*Client, 0, len(occupants))
	for c := range occupants {
		out = append(out, c)
	}
	return out
}

func (rt *roomTable) contains(key string, c *Client) bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	_, ok := rt.rooms[key][c]
	return ok
}

func (rt *roomTable) count() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return len(rt.rooms)
}

func (g *Gateway) joinRoom(key string, c *Client) {
	if g.rooms.join(key, c) {
		g.stats.Incr(metricOpenConversations)
	}
}

func (g *Gateway) leaveAllRooms(c *Client) {
	for i := g.rooms.leaveAll(c); i > 0; i-- {
		g.stats.Decr(metricOpenConversations)
	}
}

// canChat is the send-eligibility check: self-pairs never chat, everyone
// else needs a mutual match.
func (g *Gateway) canChat(a, b int) (bool, error) {
	if a == b {
		return false, nil
	}
	return g.db.CanChat(a, b)
}

func (g *Gateway) handleJoinConversation(c *Client, msg *ClientMessage) {
	receiverId := msg.Join.ReceiverId

	ok, err := g.canChat(c.user.Id, receiverId)
	if err != nil {
		g.log.Printf("eligibility check %d/%d: %v", c.user.Id, receiverId, err)
		c.queueMessage(ErrInternalError(msg.Id, ""))
		return
	}
	if !ok {
		c.queueMessage(ErrNotMatched(msg.Id, ""))
		return
	}

	key := conversationKey(c.user.Id, receiverId)
	g.joinRoom(key, c)

	c.queueMessage(NoErrOK(msg.Id, map[string]any{"conversation_key": key}))
}

func (g *Gateway) handleSendMessage(c *Client, msg *ClientMessage) {
	send := msg.Send

	ok, err := g.canChat(c.user.Id, send.ReceiverId)
	if err != nil {
		g.log.Printf("eligibility check %d/%d: %v", c.user.Id, send.ReceiverId, err)
		c.queueMessage(ErrInternalError(msg.Id, send.TempId))
		return
	}
	if !ok {
		c.queueMessage(ErrNotMatched(msg.Id, send.TempId))
		return
	}

	dbMsg, err := g.db.CreateMessage(c.user.Id, send.ReceiverId, send.Content)
	if err != nil {
		g.log.Printf("create message: %v", err)
		c.queueMessage(ErrInternalError(msg.Id, send.TempId))
		return
	}

	message := messageFromDB(dbMsg)
	key := conversationKey(c.user.Id, send.ReceiverId)

	// a delivered message ends any live typing indicator for the pair
	if g.timers.CancelTyping(key) {
		g.broadcastTyping(key, c.user.Id, send.ReceiverId, false)
	}

	// confirmation to the originating connection, echoing the client's temp
	// id so it can reconcile its optimistic insert
	c.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{Id: msg.Id, Timestamp: message.SentAt},
		MessageSent: &MessageSent{Message: message, TempId: send.TempId},
	})

	newMsg := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: message.SentAt},
		Message:     &message,
	}

	// room broadcast: every connection currently viewing the conversation
	for _, occupant := range g.rooms.occupants(key) {
		if occupant == c {
			continue
		}
		occupant.queueMessage(newMsg)
	}

	// direct fan-out to the receiver's remaining connections; the registry
	// is re-read here since connections may have died during persistence
	receiverHasRoomOpen := false
	for _, rc := range g.registry.connectionsOf(send.ReceiverId) {
		if g.rooms.contains(key, rc) {
			receiverHasRoomOpen = true
			continue
		}
		rc.queueMessage(newMsg)
	}
	g.stats.Incr(metricMessagesDelivered)

	// best-effort notification, suppressed while the receiver has the
	// conversation open on any connection
	if !receiverHasRoomOpen {
		g.createMessageNotification(send.ReceiverId, c.user.Id)
	}

	g.pushUnreadCounts(send.ReceiverId)

	if err := g.db.RecomputeFame(send.ReceiverId); err != nil {
		g.log.Printf("recompute fame for user %d: %v", send.ReceiverId, err)
	}
}

func (g *Gateway) createMessageNotification(receiverId, senderId int) {
	n, err := g.db.CreateNotification(database.CreateNotificationParams{
		UserId:  receiverId,
		Kind:    types.NotificationMessage,
		ActorId: senderId,
	})
	if err != nil {
		g.log.Printf("create message notification for user %d: %v", receiverId, err)
		return
	}

	g.stats.Incr(metricNotificationsCreated)

	notification := notificationFromDB(n)
	g.deliverToUser(receiverId, &ServerMessage{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		Notification: &notification,
	})
}

func (g *Gateway) handleMessageRead(c *Client, msg *ClientMessage) {
	dbMsg, err := g.db.MarkMessageRead(msg.Read.MessageId, c.user.Id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.queueMessage(ErrNotFound(msg.Id))
			return
		}
		g.log.Printf("mark message %d read: %v", msg.Read.MessageId, err)
		c.queueMessage(ErrInternalError(msg.Id, ""))
		return
	}

	c.queueMessage(NoErrOK(msg.Id, nil))

	// read receipt to the original sender's connections
	g.deliverToUser(dbMsg.SenderId, &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		ReadReceipt: &ReadReceipt{MessageId: dbMsg.Id, ReadBy: c.user.Id},
	})

	g.pushUnreadCounts(c.user.Id)
}

func (g *Gateway) handleTypingStart(c *Client, msg *ClientMessage) {
	receiverId := msg.TypingStart.ReceiverId
	typistId := c.user.Id
	key := conversationKey(typistId, receiverId)

	g.broadcastTyping(key, typistId, receiverId, true)

	g.timers.StartTyping(key, g.typingTimeout, func() {
		g.broadcastTyping(key, typistId, receiverId, false)
	})
}

func (g *Gateway) handleTypingStop(c *Client, msg *ClientMessage) {
	receiverId := msg.TypingStop.ReceiverId
	key := conversationKey(c.user.Id, receiverId)

	g.timers.CancelTyping(key)
	g.broadcastTyping(key, c.user.Id, receiverId, false)
}

// broadcastTyping fans a typing indicator out to the conversation's room and
// directly to the other participant's connections outside it.
func (g *Gateway) broadcastTyping(key string, typistId, receiverId int, isTyping bool) {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Typing: &TypingIndicator{
			UserId:          typistId,
			ConversationKey: key,
			IsTyping:        isTyping,
		},
	}

	for _, occupant := range g.rooms.occupants(key) {
		if occupant.user.Id == typistId {
			continue
		}
		occupant.queueMessage(msg)
	}

	for _, rc := range g.registry.connectionsOf(receiverId) {
		if g.rooms.contains(key, rc) {
			continue
		}
		rc.queueMessage(msg)
	}
}

func (g *Gateway) handleNotificationRead(c *Client, msg *ClientMessage) {
	if err := g.db.MarkNotificationRead(msg.NotifRead.NotificationId, c.user.Id); err != nil {
		g.log.Printf("mark notification %d read: %v", msg.NotifRead.NotificationId, err)
		c.queueMessage(ErrNotFound(msg.Id))
		return
	}

	c.queueMessage(NoErrOK(msg.Id, nil))
	g.pushUnreadCounts(c.user.Id)
}

func (g *Gateway) handleNotificationReadAll(c *Client, msg *ClientMessage) {
	if err := g.db.MarkAllNotificationsRead(c.user.Id); err != nil {
		g.log.Printf("mark all notifications read for user %d: %v", c.user.Id, err)
		c.queueMessage(ErrInternalError(msg.Id, ""))
		return
	}

	c.queueMessage(NoErrOK(msg.Id, nil))
	g.pushUnreadCounts(c.user.Id)
}

func messageFromDB(m database.Message) types.Message {
	return types.Message{
		Id:         m.Id,
		SenderId:   m.SenderId,
		ReceiverId: m.ReceiverId,
		Content:    m.Content,
		Read:       m.Read,
		SentAt:     m.SentAt,
	}
}

func notificationFromDB(n database.Notification) types.Notification {
	return types.Notification{
		Id:            n.Id,
		UserId:        n.UserId,
		Kind:          n.Kind,
		ActorId:       n.ActorId,
		ActorUsername: n.ActorUsername,
		Read:          n.Read,
		CreatedAt:     n.CreatedAt,
	}
}

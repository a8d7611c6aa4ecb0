package server

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"

	"github.com/sparkmatch/sparkd/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096

	// a connection silent for longer than this is considered gone even if
	// the transport never reported a disconnect
	livenessTimeout = pongWait + writeWait
)

// Client is one live bidirectional connection bound to a verified user. A
// user may hold several of these at once (devices, tabs); each carries its
// own id for registry and timer bookkeeping.
type Client struct {
	id         string
	conn       *websocket.Conn
	gw         *Gateway
	log        *log.Logger
	user       types.User
	send       chan *ServerMessage
	stop       chan struct{}
	stopOnce   sync.Once
	downOnce   sync.Once
	dead       atomic.Bool
	lastActive atomic.Int64
}

func NewClient(user types.User, conn *websocket.Conn, gw *Gateway, l *log.Logger) (*Client, error) {
	id, err := shortid.Generate()
	if err != nil {
		return nil, err
	}

	c := &Client{
		id:   id,
		conn: conn,
		gw:   gw,
		log:  l,
		user: user,
		send: make(chan *ServerMessage, 256),
		stop: make(chan struct{}),
	}
	c.touch()

	return c, nil
}

// touch records transport activity so the sweeper can tell a quiet-but-live
// connection from one whose peer vanished without a close frame.
func (c *Client) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// Id returns the connection identifier.
func (c *Client) Id() string {
	return c.id
}

// alive reports whether the transport session is still considered live; the
// sweeper and heartbeat probes consult this.
func (c *Client) alive() bool {
	if c.dead.Load() {
		return false
	}

	idle := time.Since(time.Unix(0, c.lastActive.Load()))
	return idle < livenessTimeout
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.teardown()
		c.stopClient()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error {
		c.touch()
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}
		c.touch()

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.client = c
		msg.UserId = c.user.Id
		msg.Timestamp = Now()

		// events on one connection are handled in arrival order
		c.gw.dispatch(c, &msg)
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("send buffer full on connection %s, dropping message", c.id)
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// teardown releases everything this connection holds. Transport layers fire
// duplicate disconnect signals, so it is safe to call any number of times;
// only the first invocation reaches the gateway.
func (c *Client) teardown() {
	c.downOnce.Do(func() {
		c.dead.Store(true)
		c.gw.dropConnection(c)
	})
}

package ws

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	drepo "KlineStream/internal/domain/repository"
)

// TransportConfig tunes one websocket connection.
type TransportConfig struct {
	PingInterval time.Duration
	PongWait     time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
	Buffer       int
}

func (c TransportConfig) withDefaults() TransportConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongWait <= c.PingInterval {
		c.PongWait = 2 * c.PingInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 4096
	}
	if c.Buffer <= 0 {
		c.Buffer = 16
	}
	return c
}

// conn adapts a gorilla connection to drepo.Transport. A reader goroutine
// turns inbound text frames into events; a ping goroutine keeps the peer
// alive. Writes are serialized by writeMu.
type conn struct {
	ws     *websocket.Conn
	cfg    TransportConfig
	events chan drepo.TransportEvent

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newConn(ws *websocket.Conn, cfg TransportConfig) *conn {
	cfg = cfg.withDefaults()
	c := &conn{
		ws:     ws,
		cfg:    cfg,
		events: make(chan drepo.TransportEvent, cfg.Buffer),
		done:   make(chan struct{}),
	}

	ws.SetReadLimit(cfg.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()
	return c
}

func (c *conn) Events() <-chan drepo.TransportEvent { return c.events }

// WriteText writes one text frame. The deadline is the earlier of ctx's and
// the configured write timeout.
func (c *conn) WriteText(ctx context.Context, msg []byte) error {
	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

// Close sends a normal close frame, tears down the connection and waits for
// the reader and pinger to exit.
func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
		c.wg.Wait()
	})
	return err
}

func (c *conn) readLoop() {
	defer c.wg.Done()
	defer close(c.events)

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			c.emit(closeEvent(err))
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if !c.emit(drepo.TransportEvent{Text: string(data)}) {
			return
		}
	}
}

func (c *conn) emit(ev drepo.TransportEvent) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *conn) pingLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

// closeEvent maps a read error to a transport event. Orderly closes by the
// peer are not errors.
func closeEvent(err error) drepo.TransportEvent {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
		errors.Is(err, net.ErrClosed) {
		return drepo.TransportEvent{Closed: true}
	}
	return drepo.TransportEvent{Err: err}
}

package websocket

import (
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rostrumapp/rostrum/pkg/logger"
)

const (
	maxMessageSize = 64 * 1024
	pingTime       = pongTime * 9 / 10
	pongTime       = 60 * time.Second
	writeWait      = 10 * time.Second

	// sendBuffer bounds the per-connection outgoing queue, so one slow
	// consumer never stalls a room broadcast.
	sendBuffer = 256
)

type WS struct {
	conn     deadlinedConn
	send     chan []byte
	closing  chan struct{}
	stop     chan struct{}
	once     sync.Once
	stopOnce sync.Once
	log      *logger.Logger

	// OnMessage is called for every read message (or terminal read
	// error) in the reader goroutine, serialized.
	OnMessage MessageHandler

	pingPong bool
	server   bool

	shutdown sync.WaitGroup
	Done     chan struct{}
}

type MessageHandler func(message []byte, err error)

type Upgrader struct {
	websocket.Upgrader
}

var DefaultUpgrader = Upgrader{
	Upgrader: websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		WriteBufferPool: &sync.Pool{},
	},
}

// NewUpgrader creates an upgrader with an origin allow-list.
// An empty list allows any origin.
func NewUpgrader(origins ...string) *Upgrader {
	u := Upgrader{
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			WriteBufferPool: &sync.Pool{},
		},
	}
	if len(origins) > 0 {
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			allowed[o] = struct{}{}
		}
		u.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		}
	}
	return &u
}

var errNotInitialized = errors.New("socket is not initialized")

// NewServerWithConn wraps an already upgraded server connection.
func NewServerWithConn(conn *websocket.Conn, log *logger.Logger) (*WS, error) {
	if conn == nil {
		return nil, errNotInitialized
	}
	return newSocket(conn, true, log), nil
}

func NewClient(address url.URL, log *logger.Logger) (*WS, error) {
	conn, _, err := websocket.DefaultDialer.Dial(address.String(), nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, false, log), nil
}

func newSocket(conn *websocket.Conn, server bool, log *logger.Logger) *WS {
	safeConn := deadlinedConn{sock: conn, wt: writeWait}
	return &WS{
		conn:     safeConn,
		send:     make(chan []byte, sendBuffer),
		closing:  make(chan struct{}),
		stop:     make(chan struct{}),
		pingPong: server,
		server:   server,
		log:      log,
		Done:     make(chan struct{}, 1),
	}
}

func (ws *WS) IsServer() bool { return ws.server }

// Listen starts the read/write pumps. Idempotent.
func (ws *WS) Listen() chan struct{} {
	ws.once.Do(func() {
		ws.shutdown.Add(2)
		go ws.writer()
		go ws.reader()
	})
	return ws.Done
}

// Write queues a message for sending. Messages to a dead connection or
// over a full queue are dropped.
func (ws *WS) Write(data []byte) {
	select {
	case <-ws.closing:
	case ws.send <- data:
	default:
		ws.log.Warn().Msg("send queue overflow, message dropped")
	}
}

// Close asks the writer pump to flush the queue, emit a close frame,
// and tear the connection down. The writer owns all conn writes, so
// Close is safe to call while messages are still being queued.
func (ws *WS) Close() {
	ws.stopOnce.Do(func() { close(ws.stop) })
}

// reader pumps messages from the websocket connection to the OnMessage callback.
// Blocking, must be called as goroutine. Serializes all websocket reads.
func (ws *WS) reader() {
	defer func() {
		close(ws.closing)
		ws.shutdown.Done()
		ws.finish()
	}()
	ws.conn.setup(func(conn *websocket.Conn) {
		conn.SetReadLimit(maxMessageSize)
		if ws.pingPong {
			_ = conn.SetReadDeadline(time.Now().Add(pongTime))
			conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(pongTime)); return nil })
		}
	})
	for {
		message, err := ws.conn.read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.log.Debug().Err(err).Msg("read fail")
			}
			if ws.OnMessage != nil {
				ws.OnMessage(nil, err)
			}
			break
		}
		if ws.OnMessage != nil {
			ws.OnMessage(message, nil)
		}
	}
}

// writer pumps messages from the send channel to the websocket connection.
// Blocking, must be called as goroutine. Serializes all websocket writes.
func (ws *WS) writer() {
	var ticker *time.Ticker
	if ws.pingPong {
		ticker = time.NewTicker(pingTime)
	}
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		ws.shutdown.Done()
		ws.finish()
	}()
	for {
		if ws.pingPong {
			select {
			case <-ws.closing:
				_ = ws.conn.write(websocket.CloseMessage, []byte{})
				return
			case <-ws.stop:
				ws.flushClose()
				return
			case message := <-ws.send:
				if err := ws.conn.write(websocket.TextMessage, message); err != nil {
					return
				}
			case <-ticker.C:
				if err := ws.conn.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		} else {
			select {
			case <-ws.closing:
				_ = ws.conn.write(websocket.CloseMessage, []byte{})
				return
			case <-ws.stop:
				ws.flushClose()
				return
			case message := <-ws.send:
				if err := ws.conn.write(websocket.TextMessage, message); err != nil {
					return
				}
			}
		}
	}
}

// flushClose writes out everything queued before the stop signal,
// then the close frame.
func (ws *WS) flushClose() {
	for {
		select {
		case message := <-ws.send:
			if err := ws.conn.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			_ = ws.conn.write(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// IsGracefulClose tells a received close frame apart from an abrupt
// transport failure.
func IsGracefulClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

func (ws *WS) finish() {
	_ = ws.conn.close()
	ws.shutdown.Wait()
	select {
	case ws.Done <- struct{}{}:
	default:
	}
}

package com

import (
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/rostrumapp/rostrum/pkg/api"
	"github.com/rostrumapp/rostrum/pkg/logger"
	"github.com/rostrumapp/rostrum/pkg/network"
	"github.com/rostrumapp/rostrum/pkg/network/websocket"
)

type (
	Connector struct {
		tag string
		wu  *websocket.Upgrader
	}
	// Client is one bidirectional signaling channel with optional
	// request/response call tracking over async packets.
	Client struct {
		conn     *websocket.WS
		queue    map[network.Uid]*call
		onPacket func(packet api.In)
		err      error
		mu       sync.Mutex
		log      *logger.Logger
	}
	call struct {
		done     chan struct{}
		err      error
		Response api.In
	}
	Option = func(c *Connector)
)

var (
	errConnClosed = errors.New("connection closed")
	errTimeout    = errors.New("timeout")
)

const callTimeout = 5 * time.Second

func WithOrigins(origins []string) Option {
	return func(c *Connector) { c.wu = websocket.NewUpgrader(origins...) }
}
func WithTag(tag string) Option { return func(c *Connector) { c.tag = tag } }

func NewConnector(opts ...Option) *Connector {
	c := &Connector{}
	for _, opt := range opts {
		opt(c)
	}
	if c.wu == nil {
		c.wu = &websocket.DefaultUpgrader
	}
	return c
}

// NewServer upgrades an incoming HTTP request to a signaling channel.
func (co *Connector) NewServer(w http.ResponseWriter, r *http.Request, log *logger.Logger) (*Client, error) {
	ws, err := co.wu.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	conn, err := websocket.NewServerWithConn(ws, log)
	return connect(conn, err, co.tag, log)
}

func (co *Connector) NewClient(address url.URL, log *logger.Logger) (*Client, error) {
	conn, err := websocket.NewClient(address, log)
	return connect(conn, err, co.tag, log)
}

func connect(conn *websocket.WS, err error, tag string, log *logger.Logger) (*Client, error) {
	if err != nil {
		return nil, err
	}
	if tag != "" {
		log = log.Extend(log.With().Str("m", tag))
	}
	client := &Client{conn: conn, queue: make(map[network.Uid]*call, 1), log: log}
	client.conn.OnMessage = client.handleMessage
	return client, nil
}

func (c *Client) IsServer() bool { return c.conn.IsServer() }

func (c *Client) OnPacket(fn func(packet api.In)) { c.mu.Lock(); c.onPacket = fn; c.mu.Unlock() }

func (c *Client) Listen() chan struct{} { return c.conn.Listen() }

func (c *Client) Close() {
	c.conn.Close()
	c.drain(errConnClosed)
}

// Call makes a blocking request and waits for the response with the
// same packet id or a timeout.
func (c *Client) Call(type_ api.PT, payload any) ([]byte, error) {
	id := network.NewUid()
	rq := api.Out{Id: id.String(), T: uint8(type_), Payload: payload}
	r, err := json.Marshal(&rq)
	if err != nil {
		return nil, err
	}

	task := &call{done: make(chan struct{})}
	c.mu.Lock()
	c.queue[id] = task
	c.mu.Unlock()
	c.conn.Write(r)
	select {
	case <-task.done:
	case <-time.After(callTimeout):
		task.err = errTimeout
	}
	return task.Response.Payload, task.err
}

// Notify just sends a message and goes further.
func (c *Client) Notify(type_ api.PT, payload any) {
	_ = c.SendPacket(api.Out{T: uint8(type_), Payload: payload})
}

// Route replies to the in packet preserving its tracking id.
func (c *Client) Route(in api.In, type_ api.PT, payload any) {
	_ = c.SendPacket(api.Out{Id: in.Id.String(), T: uint8(type_), Payload: payload})
}

func (c *Client) SendPacket(packet api.Out) error {
	r, err := json.Marshal(&packet)
	if err != nil {
		return err
	}
	c.conn.Write(r)
	return nil
}

// Error returns the terminal read error of the socket, if any.
func (c *Client) Error() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) handleMessage(message []byte, err error) {
	if err != nil {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		c.drain(err)
		return
	}

	var res api.In
	if err = json.Unmarshal(message, &res); err != nil {
		c.log.Warn().Err(err).Msg("malformed packet dropped")
		return
	}

	// empty id implies that we won't track (wait) the response
	if res.Id != network.EmptyUid {
		if task := c.pop(res.Id); task != nil {
			task.Response = res
			close(task.done)
			return
		}
	}
	c.mu.Lock()
	fn := c.onPacket
	c.mu.Unlock()
	if fn != nil {
		fn(res)
	}
}

// pop extracts and removes a task from the queue by its id.
func (c *Client) pop(id network.Uid) *call {
	c.mu.Lock()
	task := c.queue[id]
	delete(c.queue, id)
	c.mu.Unlock()
	return task
}

// drain cancels all what's left in the task queue.
func (c *Client) drain(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, task := range c.queue {
		if task.err == nil {
			task.err = err
		}
		close(task.done)
		delete(c.queue, id)
	}
}

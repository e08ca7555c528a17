package session

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"go.uber.org/zap"
)

// Conn is the underlying duplex channel abstraction. Exactly one session
// owns a Conn at a time; during reconnection the session swaps in a fresh
// Conn without invalidating itself.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens a new Conn. The context carries the connect timeout.
type Dialer func(ctx context.Context) (Conn, error)

// wsConn adapts a gorilla websocket connection to the Conn interface.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// WebSocketDialer returns a Dialer that connects to the given URL.
func WebSocketDialer(url string) Dialer {
	return func(ctx context.Context) (Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return &wsConn{conn: conn}, nil
	}
}

// ConnPool holds multiple named connections owned by one session, e.g. one
// per spectated match. All entries are closed together when the owning
// session closes.
type ConnPool struct {
	mu     sync.Mutex
	conns  map[string]Conn
	logger *zap.Logger
}

// NewConnPool creates an empty pool.
func NewConnPool(logger *zap.Logger) *ConnPool {
	return &ConnPool{
		conns:  make(map[string]Conn),
		logger: logger,
	}
}

// Put stores a connection under a name, closing any previous holder of the
// same name.
func (p *ConnPool) Put(name string, c Conn) {
	p.mu.Lock()
	prev, existed := p.conns[name]
	p.conns[name] = c
	p.mu.Unlock()
	if existed {
		if err := prev.Close(); err != nil {
			p.logger.Debug("closing replaced pool connection", zap.String("name", name), zap.Error(err))
		}
	}
}

// Get returns the connection stored under name.
func (p *ConnPool) Get(name string) (Conn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.conns[name]
	return c, ok
}

// Remove closes and forgets a single entry.
func (p *ConnPool) Remove(name string) {
	p.mu.Lock()
	c, ok := p.conns[name]
	delete(p.conns, name)
	p.mu.Unlock()
	if ok {
		_ = c.Close()
	}
}

// Len returns the number of pooled connections.
func (p *ConnPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// CloseAll closes and removes every entry.
func (p *ConnPool) CloseAll() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]Conn)
	p.mu.Unlock()
	for name, c := range conns {
		if err := c.Close(); err != nil {
			p.logger.Debug("closing pooled connection", zap.String("name", name), zap.Error(err))
		}
	}
}

package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"PipeKit/internal/domain/models"
	"PipeKit/pkg/logger"
)

const maxBuffered = 1024

type wsTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type wsMessage struct {
	Type string    `json:"type"`
	Data []wsTrade `json:"data"`
}

// WebsocketPoller keeps a streaming subscription open and buffers trades per symbol
// between polls. A read failure is reported by the next Poll, which then reconnects.
type WebsocketPoller struct {
	url          string
	apiKey       string
	symbols      []string
	pingInterval time.Duration
	log          *logger.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	buf     map[string]models.Batch
	readErr error
}

// NewWebsocketPoller creates a poller; the connection is opened on the first Poll.
func NewWebsocketPoller(url, apiKey string, symbols []string, pingInterval time.Duration, lgr *logger.Logger) *WebsocketPoller {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &WebsocketPoller{
		url:          url,
		apiKey:       apiKey,
		symbols:      symbols,
		pingInterval: pingInterval,
		log:          lgr.Named("poller.websocket"),
		buf:          make(map[string]models.Batch),
	}
}

func (p *WebsocketPoller) Poll(ctx context.Context, symbol string) (models.Batch, error) {
	p.mu.Lock()
	if err := p.readErr; err != nil {
		p.readErr = nil
		p.mu.Unlock()
		_ = p.Close()
		return nil, err
	}
	connected := p.conn != nil
	p.mu.Unlock()

	if !connected {
		if err := p.connect(ctx); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	batch := p.buf[symbol]
	delete(p.buf, symbol)
	return batch, nil
}

func (p *WebsocketPoller) connect(ctx context.Context) error {
	u := p.url
	if p.apiKey != "" {
		u = fmt.Sprintf("%s?token=%s", p.url, p.apiKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}
	for _, s := range p.symbols {
		if err := conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": s}); err != nil {
			_ = conn.Close()
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	p.log.Info("websocket connected", logger.Strings("symbols", p.symbols))

	loopCtx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.conn = conn
	p.cancel = cancel
	p.mu.Unlock()

	var writeMu sync.Mutex
	if p.pingInterval > 0 {
		go p.pingLoop(loopCtx, conn, &writeMu)
	}
	go p.readLoop(loopCtx, conn)
	return nil
}

func (p *WebsocketPoller) pingLoop(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex) {
	ticker := time.NewTicker(p.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeMu.Lock()
			_ = conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
		}
	}
}

func (p *WebsocketPoller) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				p.mu.Lock()
				p.readErr = fmt.Errorf("websocket read: %w", err)
				p.mu.Unlock()
			}
			return
		}
		var m wsMessage
		if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
			// pings and status frames
			continue
		}
		p.mu.Lock()
		for _, d := range m.Data {
			if len(p.buf[d.S]) >= maxBuffered {
				continue
			}
			p.buf[d.S] = append(p.buf[d.S], models.Record{
				"symbol":    d.S,
				"price":     d.P,
				"volume":    d.V,
				"timestamp": d.T / 1000,
			})
		}
		p.mu.Unlock()
	}
}

// Close drops the connection. A later Poll reconnects.
func (p *WebsocketPoller) Close() error {
	p.mu.Lock()
	conn, cancel := p.conn, p.cancel
	p.conn, p.cancel = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

package orca

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/juant72/sniperforge/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// QuoteHandler receives stream-derived quotes.
type QuoteHandler func(domain.Quote)

// priceMessage is the wire shape of one pool price update.
type priceMessage struct {
	Event     string `json:"event"`
	Whirlpool string `json:"whirlpool"`
	TokenIn   string `json:"tokenIn"`
	TokenOut  string `json:"tokenOut"`
	// Rate is output base units per 1e9 input base units.
	Rate      string `json:"rate"`
	Liquidity string `json:"liquidity"`
	FeeBps    int64  `json:"feeBps"`
	Timestamp string `json:"timestamp"`
}

// Stream consumes the Orca pool price feed over a websocket and converts
// updates into quotes sized at the configured probe amount. It reconnects
// with capped exponential backoff until the context is cancelled. Quotes
// produced here pre-warm the shared quote cache between poll cycles; the
// aggregator still stamps staleness deadlines.
type Stream struct {
	wsURL       string
	probeAmount int64
	handler     QuoteHandler
	logger      *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewStream creates a price stream. The handler is called on the read
// goroutine and must not block.
func NewStream(wsURL string, probeAmount int64, handler QuoteHandler, logger *slog.Logger) *Stream {
	return &Stream{
		wsURL:       wsURL,
		probeAmount: probeAmount,
		handler:     handler,
		logger:      logger.With(slog.String("component", "orca_stream")),
	}
}

// Run connects and reads until the context is cancelled, reconnecting on
// failure. It returns the context's error on shutdown.
func (s *Stream) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		if err := s.connectAndRead(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("stream disconnected, reconnecting",
				slog.String("error", err.Error()),
				slog.Duration("delay", delay),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (s *Stream) connectAndRead(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("orca/ws: connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	go s.pingLoop(ctx, conn, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("orca/ws: read: %w", err)
		}
		s.handleMessage(data)
	}
}

func (s *Stream) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Stream) handleMessage(data []byte) {
	var msg priceMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Debug("discarding malformed message", slog.String("error", err.Error()))
		return
	}
	if msg.Event != "price" || msg.TokenIn == "" || msg.TokenOut == "" {
		return
	}

	rate, err := strconv.ParseInt(msg.Rate, 10, 64)
	if err != nil || rate <= 0 {
		return
	}
	liquidity, _ := strconv.ParseInt(msg.Liquidity, 10, 64)

	// Scale the published per-1e9 rate to the probe size.
	outAmount := int64(float64(s.probeAmount) / 1e9 * float64(rate))
	if outAmount <= 0 {
		return
	}

	observed := time.Now().UTC()
	if msg.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, msg.Timestamp); err == nil {
			observed = t
		}
	}

	s.handler(domain.Quote{
		Pair:           domain.TokenPair{In: domain.Asset(msg.TokenIn), Out: domain.Asset(msg.TokenOut), Venue: venueID},
		InAmount:       s.probeAmount,
		OutAmount:      outAmount,
		PriceImpactBps: approxImpactBps(s.probeAmount, liquidity),
		FeeBps:         msg.FeeBps,
		LiquidityUnits: liquidity,
		RouteHint:      msg.Whirlpool,
		ObservedAt:     observed,
	})
}

package feeds

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantarch/medusa/metrics"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BINANCE STREAM - WebSocket mini-ticker updates
// ═══════════════════════════════════════════════════════════════════════════════
//
// Lower latency than the REST poll; both write to the same PriceStore
// so the stream simply keeps prices fresher between polls. Reconnects
// forever with a fixed delay.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	binanceStreamURL = "wss://stream.binance.com:9443/stream"
	reconnectDelay   = 5 * time.Second
	pingInterval     = 30 * time.Second
)

// BinanceStream maintains the websocket subscription.
type BinanceStream struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	running bool
	stopCh  chan struct{}

	store *PriceStore

	// exchange symbol (lowercase) -> canonical asset
	assets map[string]string
}

// NewBinanceStream subscribes to mini-tickers for the symbol map
// (canonical -> exchange symbol, same shape as the REST feed).
func NewBinanceStream(store *PriceStore, symbols map[string]string) *BinanceStream {
	assets := make(map[string]string, len(symbols))
	for asset, symbol := range symbols {
		assets[strings.ToLower(symbol)] = asset
	}
	return &BinanceStream{
		stopCh: make(chan struct{}),
		store:  store,
		assets: assets,
	}
}

// Start launches the connection loop.
func (s *BinanceStream) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.connectionLoop()
	log.Info().Int("symbols", len(s.assets)).Msg("🔌 Binance stream started")
}

// Stop closes the stream.
func (s *BinanceStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	if s.conn != nil {
		s.conn.Close()
	}
	log.Info().Msg("Binance stream stopped")
}

func (s *BinanceStream) connectionLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if err := s.connect(); err != nil {
			metrics.FeedErrors.WithLabelValues("binance_ws").Inc()
			log.Warn().Err(err).Dur("retry_in", reconnectDelay).Msg("Binance stream connect failed")
			select {
			case <-s.stopCh:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		s.readLoop() // blocks until the connection dies

		select {
		case <-s.stopCh:
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *BinanceStream) connect() error {
	streams := make([]string, 0, len(s.assets))
	for symbol := range s.assets {
		streams = append(streams, symbol+"@miniTicker")
	}
	url := binanceStreamURL + "?streams=" + strings.Join(streams, "/")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	go s.pingLoop(conn)
	return nil
}

func (s *BinanceStream) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

type streamEnvelope struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string `json:"s"`
		Close  string `json:"c"`
	} `json:"data"`
}

func (s *BinanceStream) readLoop() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
			default:
				log.Warn().Err(err).Msg("Binance stream read error, reconnecting")
			}
			return
		}

		var msg streamEnvelope
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		asset, ok := s.assets[strings.ToLower(msg.Data.Symbol)]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(msg.Data.Close)
		if err != nil {
			continue
		}
		s.store.Update(asset, price)
	}
}

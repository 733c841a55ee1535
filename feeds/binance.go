package feeds

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantarch/medusa/metrics"
	"github.com/quantarch/medusa/signal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BINANCE FEED - Crypto spot prices + derivatives-derived signals
// ═══════════════════════════════════════════════════════════════════════════════
//
// Two jobs:
//   - Poll spot prices into the PriceStore
//   - Poll funding rate and open interest, turn extremes into signals
//     for the aggregator (crowded positioning, liquidation pressure)
//
// Every request carries a timeout. A slow or dead upstream makes data
// unavailable; it never stalls the cycle.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	binanceSpotURL    = "https://api.binance.com/api/v3/ticker/price"
	binancePremiumURL = "https://fapi.binance.com/fapi/v1/premiumIndex"
	binanceOIURL      = "https://fapi.binance.com/fapi/v1/openInterest"

	binancePriceInterval = 15 * time.Second
	binanceDerivInterval = 60 * time.Second

	// Funding at ±0.10% per interval reads as maximum crowding.
	fundingExtreme = 0.001
	// Open interest swinging 5% between polls reads as maximum strength.
	oiExtreme = 0.05

	sourceFunding      = "binance_funding"
	sourceOpenInterest = "binance_open_interest"
)

// BinanceFeed polls Binance REST endpoints.
type BinanceFeed struct {
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}

	store  *PriceStore
	agg    *signal.Aggregator
	client *http.Client

	// canonical symbol -> exchange symbol (BTC -> BTCUSDT)
	symbols map[string]string

	// previous open interest per exchange symbol, for delta
	lastOI map[string]float64
}

// NewBinanceFeed polls prices for the given symbol map and writes
// derivative signals into the aggregator.
func NewBinanceFeed(store *PriceStore, agg *signal.Aggregator, symbols map[string]string) *BinanceFeed {
	return &BinanceFeed{
		stopCh:  make(chan struct{}),
		store:   store,
		agg:     agg,
		client:  &http.Client{Timeout: 5 * time.Second},
		symbols: symbols,
		lastOI:  make(map[string]float64),
	}
}

// Start begins the polling loops.
func (f *BinanceFeed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.priceLoop()
	go f.derivativesLoop()
	log.Info().Int("symbols", len(f.symbols)).Msg("📈 Binance feed started")
}

// Stop stops all polling.
func (f *BinanceFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return
	}
	f.running = false
	close(f.stopCh)
	log.Info().Msg("Binance feed stopped")
}

func (f *BinanceFeed) priceLoop() {
	ticker := time.NewTicker(binancePriceInterval)
	defer ticker.Stop()

	f.fetchPrices()
	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.fetchPrices()
		}
	}
}

func (f *BinanceFeed) derivativesLoop() {
	ticker := time.NewTicker(binanceDerivInterval)
	defer ticker.Stop()

	f.fetchDerivatives()
	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.fetchDerivatives()
		}
	}
}

func (f *BinanceFeed) fetchPrices() {
	for asset, symbol := range f.symbols {
		price, err := f.fetchSpot(symbol)
		if err != nil {
			metrics.FeedErrors.WithLabelValues("binance").Inc()
			log.Debug().Err(err).Str("symbol", symbol).Msg("Binance price fetch failed")
			continue
		}
		f.store.Update(asset, price)
	}
}

func (f *BinanceFeed) fetchSpot(symbol string) (decimal.Decimal, error) {
	body, err := f.get(fmt.Sprintf("%s?symbol=%s", binanceSpotURL, symbol))
	if err != nil {
		return decimal.Zero, err
	}
	var result struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Zero, fmt.Errorf("decode ticker: %w", err)
	}
	return decimal.NewFromString(result.Price)
}

// fetchDerivatives reads funding and open interest for each perp and
// emits signals when positioning looks stretched.
func (f *BinanceFeed) fetchDerivatives() {
	now := time.Now().UTC()
	for asset, symbol := range f.symbols {
		f.fetchFunding(asset, symbol, now)
		f.fetchOpenInterest(asset, symbol, now)
	}
}

func (f *BinanceFeed) fetchFunding(asset, symbol string, now time.Time) {
	body, err := f.get(fmt.Sprintf("%s?symbol=%s", binancePremiumURL, symbol))
	if err != nil {
		metrics.FeedErrors.WithLabelValues("binance").Inc()
		return
	}
	var result struct {
		LastFundingRate string `json:"lastFundingRate"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return
	}
	rate, err := strconv.ParseFloat(result.LastFundingRate, 64)
	if err != nil {
		return
	}

	strength := math.Min(math.Abs(rate)/fundingExtreme, 1)
	if strength < 0.2 {
		return // unremarkable funding, no signal
	}
	// Rich funding = crowded longs paying shorts; fade the crowd.
	direction := -1.0
	if rate < 0 {
		direction = 1.0
	}
	f.agg.Ingest(signal.Signal{
		SourceID:    sourceFunding,
		Asset:       asset,
		Direction:   direction,
		Strength:    strength,
		Reliability: 0.7,
		Timestamp:   now,
		HalfLife:    4 * time.Hour,
	})
	metrics.SignalsIngested.WithLabelValues(sourceFunding).Inc()
}

func (f *BinanceFeed) fetchOpenInterest(asset, symbol string, now time.Time) {
	body, err := f.get(fmt.Sprintf("%s?symbol=%s", binanceOIURL, symbol))
	if err != nil {
		metrics.FeedErrors.WithLabelValues("binance").Inc()
		return
	}
	var result struct {
		OpenInterest string `json:"openInterest"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return
	}
	oi, err := strconv.ParseFloat(result.OpenInterest, 64)
	if err != nil || oi <= 0 {
		return
	}

	f.mu.Lock()
	prev := f.lastOI[symbol]
	f.lastOI[symbol] = oi
	f.mu.Unlock()
	if prev <= 0 {
		return // first observation, no delta yet
	}

	change := (oi - prev) / prev
	strength := math.Min(math.Abs(change)/oiExtreme, 1)
	if strength < 0.2 {
		return
	}

	// Collapsing open interest alongside falling prices is forced
	// unwinding; follow it. Rising OI follows the price trend.
	direction := momentumSign(f.store.History(asset, 6))
	if change < 0 {
		direction = -1
	}
	if direction == 0 {
		return
	}
	f.agg.Ingest(signal.Signal{
		SourceID:    sourceOpenInterest,
		Asset:       asset,
		Direction:   direction,
		Strength:    strength,
		Reliability: 0.6,
		Timestamp:   now,
		HalfLife:    time.Hour,
	})
	metrics.SignalsIngested.WithLabelValues(sourceOpenInterest).Inc()
}

func (f *BinanceFeed) get(url string) ([]byte, error) {
	resp, err := f.client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// momentumSign reduces a short price history to -1, 0 or +1.
func momentumSign(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	first, last := prices[0], prices[len(prices)-1]
	switch {
	case last > first:
		return 1
	case last < first:
		return -1
	default:
		return 0
	}
}

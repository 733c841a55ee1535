package feeds

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantarch/medusa/metrics"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EQUITIES FEED - ETF and single-name quotes via Stooq CSV
// ═══════════════════════════════════════════════════════════════════════════════
//
// Stooq serves delayed quotes and full daily history as plain CSV with
// no API key. On start the feed backfills daily closes so the regime
// detector has usable history from the first cycle, then polls quotes.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	stooqQuoteURL   = "https://stooq.com/q/l/?s=%s&f=sd2t2ohlcv&h&e=csv"
	stooqHistoryURL = "https://stooq.com/q/d/l/?s=%s&i=d"

	equitiesInterval = 60 * time.Second
	backfillBars     = 250
)

// EquitiesFeed polls Stooq for the configured symbols.
type EquitiesFeed struct {
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}

	store  *PriceStore
	client *http.Client

	// canonical symbol -> stooq symbol (SPY -> spy.us)
	symbols map[string]string
}

// NewEquitiesFeed creates the feed for the given symbol map.
func NewEquitiesFeed(store *PriceStore, symbols map[string]string) *EquitiesFeed {
	return &EquitiesFeed{
		stopCh:  make(chan struct{}),
		store:   store,
		client:  &http.Client{Timeout: 10 * time.Second},
		symbols: symbols,
	}
}

// DefaultEquitySymbols maps every equity the built-in strategies
// reference onto its Stooq ticker.
func DefaultEquitySymbols() map[string]string {
	out := make(map[string]string)
	for _, s := range []string{"SPY", "TLT", "GLD", "SLV", "IGV", "MSFT", "CRM", "ADBE", "SHOP"} {
		out[s] = stooqSymbol(s)
	}
	return out
}

// Start backfills history then begins polling quotes.
func (f *EquitiesFeed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go func() {
		f.backfillAll()
		f.pollLoop()
	}()
	log.Info().Int("symbols", len(f.symbols)).Msg("📊 Equities feed started")
}

// Stop stops polling.
func (f *EquitiesFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return
	}
	f.running = false
	close(f.stopCh)
	log.Info().Msg("Equities feed stopped")
}

func (f *EquitiesFeed) pollLoop() {
	ticker := time.NewTicker(equitiesInterval)
	defer ticker.Stop()

	f.fetchQuotes()
	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.fetchQuotes()
		}
	}
}

func (f *EquitiesFeed) backfillAll() {
	for asset, symbol := range f.symbols {
		closes, err := f.fetchHistory(symbol)
		if err != nil {
			metrics.FeedErrors.WithLabelValues("stooq").Inc()
			log.Warn().Err(err).Str("asset", asset).Msg("History backfill failed")
			continue
		}
		f.store.Backfill(asset, closes)
		log.Debug().Str("asset", asset).Int("bars", len(closes)).Msg("History backfilled")
	}
}

func (f *EquitiesFeed) fetchQuotes() {
	for asset, symbol := range f.symbols {
		price, err := f.fetchQuote(symbol)
		if err != nil {
			metrics.FeedErrors.WithLabelValues("stooq").Inc()
			log.Debug().Err(err).Str("asset", asset).Msg("Quote fetch failed")
			continue
		}
		f.store.Update(asset, price)
	}
}

// fetchQuote parses the single-line quote CSV. Columns:
// Symbol,Date,Time,Open,High,Low,Close,Volume
func (f *EquitiesFeed) fetchQuote(symbol string) (decimal.Decimal, error) {
	rows, err := f.getCSV(fmt.Sprintf(stooqQuoteURL, symbol))
	if err != nil {
		return decimal.Zero, err
	}
	if len(rows) < 2 || len(rows[1]) < 7 {
		return decimal.Zero, fmt.Errorf("malformed quote for %s", symbol)
	}
	closeField := rows[1][6]
	if closeField == "N/D" {
		return decimal.Zero, fmt.Errorf("no data for %s", symbol)
	}
	return decimal.NewFromString(closeField)
}

// fetchHistory parses the daily history CSV. Columns:
// Date,Open,High,Low,Close,Volume
func (f *EquitiesFeed) fetchHistory(symbol string) ([]float64, error) {
	rows, err := f.getCSV(fmt.Sprintf(stooqHistoryURL, symbol))
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("empty history for %s", symbol)
	}

	closes := make([]float64, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < 5 {
			continue
		}
		c, err := strconv.ParseFloat(row[4], 64)
		if err != nil || c <= 0 {
			continue
		}
		closes = append(closes, c)
	}
	if len(closes) > backfillBars {
		closes = closes[len(closes)-backfillBars:]
	}
	return closes, nil
}

func (f *EquitiesFeed) getCSV(url string) ([][]string, error) {
	resp, err := f.client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stooq status %d", resp.StatusCode)
	}

	reader := csv.NewReader(resp.Body)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return rows, nil
}

// stooqSymbol normalizes a canonical symbol to Stooq's format.
func stooqSymbol(symbol string) string {
	return strings.ToLower(symbol) + ".us"
}

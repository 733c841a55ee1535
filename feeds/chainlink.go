package feeds

import (
	"context"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantarch/medusa/metrics"
	"github.com/quantarch/medusa/signal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CHAINLINK FEED - On-chain oracle cross-check
// ═══════════════════════════════════════════════════════════════════════════════
//
// Reads latestAnswer() from Chainlink aggregator contracts over
// JSON-RPC. The oracle lags the exchange tape; when the two diverge
// hard, the exchange price is moving faster than consensus and that
// divergence itself is a signal. Also fills the store for any asset no
// other feed prices.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	chainlinkInterval = 60 * time.Second
	chainlinkTimeout  = 8 * time.Second

	// Divergence of 0.5% between oracle and tape is fully stretched.
	divergenceExtreme = 0.005

	sourceDivergence = "chainlink_divergence"
)

// latestAnswerSelector is the 4-byte selector of latestAnswer().
var latestAnswerSelector = common.Hex2Bytes("50d25bcd")

// ChainlinkFeed polls aggregator contracts over one RPC endpoint.
type ChainlinkFeed struct {
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}

	store  *PriceStore
	agg    *signal.Aggregator
	client *ethclient.Client
	rpcURL string

	// canonical symbol -> aggregator contract address
	feedAddrs map[string]common.Address
}

// DefaultFeedAddresses are the Ethereum mainnet USD aggregators for
// the crypto assets the strategies trade.
func DefaultFeedAddresses() map[string]common.Address {
	return map[string]common.Address{
		"BTC": common.HexToAddress("0xF4030086522a5bEEa4988F8cA5B36dbC97BcE88C"),
		"ETH": common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"),
	}
}

// NewChainlinkFeed creates the feed; the RPC connection is established
// lazily on Start so a dead endpoint does not block construction.
func NewChainlinkFeed(rpcURL string, store *PriceStore, agg *signal.Aggregator, feedAddrs map[string]common.Address) *ChainlinkFeed {
	return &ChainlinkFeed{
		stopCh:    make(chan struct{}),
		store:     store,
		agg:       agg,
		rpcURL:    rpcURL,
		feedAddrs: feedAddrs,
	}
}

// Start begins polling the aggregators.
func (f *ChainlinkFeed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.pollLoop()
	log.Info().Int("feeds", len(f.feedAddrs)).Msg("⛓️ Chainlink feed started")
}

// Stop stops polling and closes the RPC connection.
func (f *ChainlinkFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return
	}
	f.running = false
	close(f.stopCh)
	if f.client != nil {
		f.client.Close()
	}
	log.Info().Msg("Chainlink feed stopped")
}

func (f *ChainlinkFeed) pollLoop() {
	ticker := time.NewTicker(chainlinkInterval)
	defer ticker.Stop()

	f.poll()
	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.poll()
		}
	}
}

func (f *ChainlinkFeed) poll() {
	client, err := f.ensureClient()
	if err != nil {
		metrics.FeedErrors.WithLabelValues("chainlink").Inc()
		log.Debug().Err(err).Msg("Chainlink RPC unavailable")
		return
	}

	now := time.Now().UTC()
	for asset, addr := range f.feedAddrs {
		price, err := f.readAnswer(client, addr)
		if err != nil {
			metrics.FeedErrors.WithLabelValues("chainlink").Inc()
			log.Debug().Err(err).Str("asset", asset).Msg("Oracle read failed")
			continue
		}
		f.observe(asset, price, now)
	}
}

// observe compares the oracle price to the live tape and emits a
// divergence signal when they disagree hard.
func (f *ChainlinkFeed) observe(asset string, oracle decimal.Decimal, now time.Time) {
	tape, ok := f.store.Price(asset)
	if !ok {
		// No faster source; the oracle is the price.
		f.store.Update(asset, oracle)
		return
	}

	diff, _ := tape.Sub(oracle).Div(oracle).Float64()
	strength := math.Min(math.Abs(diff)/divergenceExtreme, 1)
	if strength < 0.3 {
		return
	}

	// Tape above the lagging oracle = tape is running up, and inversely.
	direction := 1.0
	if diff < 0 {
		direction = -1.0
	}
	f.agg.Ingest(signal.Signal{
		SourceID:    sourceDivergence,
		Asset:       asset,
		Direction:   direction,
		Strength:    strength,
		Reliability: 0.5,
		Timestamp:   now,
		HalfLife:    30 * time.Minute,
	})
	metrics.SignalsIngested.WithLabelValues(sourceDivergence).Inc()
}

// readAnswer calls latestAnswer() and scales the 8-decimal answer.
func (f *ChainlinkFeed) readAnswer(client *ethclient.Client, addr common.Address) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(context.Background(), chainlinkTimeout)
	defer cancel()

	out, err := client.CallContract(ctx, ethereum.CallMsg{
		To:   &addr,
		Data: latestAnswerSelector,
	}, nil)
	if err != nil {
		return decimal.Zero, err
	}
	answer := new(big.Int).SetBytes(out)
	return decimal.NewFromBigInt(answer, -8), nil
}

func (f *ChainlinkFeed) ensureClient() (*ethclient.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client != nil {
		return f.client, nil
	}
	client, err := ethclient.Dial(f.rpcURL)
	if err != nil {
		return nil, err
	}
	f.client = client
	return client, nil
}

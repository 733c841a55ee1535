package broker

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantarch/medusa/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BROKER CLIENT - Order submission
// ═══════════════════════════════════════════════════════════════════════════════
//
// Orders are signed twice: an ECDSA signature over the keccak hash of
// the canonical order payload, and an HMAC-SHA256 over the request for
// API authentication. Dry-run mode fills everything locally at the
// requested price.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Config holds broker credentials and mode.
type Config struct {
	BaseURL       string
	APIKey        string
	APISecret     string
	Passphrase    string
	ETHPrivateKey string // hex, optional in dry-run
	DryRun        bool
}

type Client struct {
	baseURL    string
	privateKey *ecdsa.PrivateKey
	address    string
	apiKey     string
	apiSecret  string
	passphrase string
	dryRun     bool
	httpClient *http.Client
}

// NewClient builds the client; live mode requires a signing key.
func NewClient(cfg Config) (*Client, error) {
	c := &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		passphrase: cfg.Passphrase,
		dryRun:     cfg.DryRun,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	if cfg.ETHPrivateKey != "" {
		pk, err := crypto.HexToECDSA(cfg.ETHPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		c.privateKey = pk
		c.address = crypto.PubkeyToAddress(pk.PublicKey).Hex()
	}
	if !cfg.DryRun && c.privateKey == nil {
		return nil, fmt.Errorf("live mode requires a signing key")
	}

	mode := "DRY RUN"
	if !cfg.DryRun {
		mode = "LIVE"
	}
	log.Info().
		Str("mode", mode).
		Str("address", c.address).
		Msg("🚀 Broker client initialized")
	return c, nil
}

// IsDryRun reports whether fills are simulated.
func (c *Client) IsDryRun() bool { return c.dryRun }

// Submit places the order and returns the fill. An error means nothing
// was filled and the caller must release any reserved exposure.
func (c *Client) Submit(order types.Order) (types.Fill, error) {
	if c.dryRun {
		log.Info().
			Str("order_id", order.ID).
			Str("asset", order.Asset).
			Str("direction", order.Direction.String()).
			Str("price", order.Price.StringFixed(2)).
			Str("notional", order.Notional.StringFixed(2)).
			Msg("📝 DRY RUN: order filled locally")
		return types.Fill{
			OrderID:  order.ID,
			Price:    order.Price,
			Notional: order.Notional,
			FilledAt: time.Now().UTC(),
		}, nil
	}

	payload := map[string]interface{}{
		"client_order_id": order.ID,
		"asset":           order.Asset,
		"side":            order.Direction.String(),
		"price":           order.Price.String(),
		"notional":        order.Notional.String(),
		"strategy":        order.Strategy,
		"nonce":           time.Now().UnixNano(),
		"expiration":      time.Now().Add(time.Minute).Unix(),
	}

	signature, err := c.signPayload(payload)
	if err != nil {
		return types.Fill{}, fmt.Errorf("signing failed: %w", err)
	}
	payload["signature"] = signature

	resp, err := c.post("/v1/orders", payload)
	if err != nil {
		return types.Fill{}, err
	}

	var result struct {
		OrderID        string `json:"order_id"`
		Status         string `json:"status"`
		FilledPrice    string `json:"filled_price"`
		FilledNotional string `json:"filled_notional"`
		Error          string `json:"error"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return types.Fill{}, fmt.Errorf("parse response: %w", err)
	}
	if result.Error != "" {
		return types.Fill{}, fmt.Errorf("broker rejected order: %s", result.Error)
	}
	if result.Status == "REJECTED" {
		return types.Fill{}, fmt.Errorf("broker rejected order %s", order.ID)
	}

	price, err := decimal.NewFromString(result.FilledPrice)
	if err != nil {
		price = order.Price
	}
	notional, err := decimal.NewFromString(result.FilledNotional)
	if err != nil {
		notional = decimal.Zero
	}

	log.Info().
		Str("order_id", result.OrderID).
		Str("status", result.Status).
		Str("filled_price", price.StringFixed(2)).
		Msg("✅ Order placed")

	return types.Fill{
		OrderID:  result.OrderID,
		Price:    price,
		Notional: notional,
		FilledAt: time.Now().UTC(),
	}, nil
}

// Cancel cancels a resting order.
func (c *Client) Cancel(orderID string) error {
	if c.dryRun {
		log.Info().Str("order_id", orderID).Msg("📝 DRY RUN: order cancelled")
		return nil
	}
	_, err := c.delete("/v1/orders/" + orderID)
	return err
}

// Balance returns the account's cash balance.
func (c *Client) Balance() (decimal.Decimal, error) {
	if c.dryRun {
		return decimal.NewFromInt(100000), nil
	}

	resp, err := c.get("/v1/balance")
	if err != nil {
		return decimal.Zero, err
	}
	var result struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(result.Balance)
}

// ═══════════════════════════════════════════════════════════════════════════════
// HTTP HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (c *Client) get(path string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.addHeaders(req)
	return c.doRequest(req)
}

func (c *Client) post(path string, body interface{}) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req)
	return c.doRequest(req)
}

func (c *Client) delete(path string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.addHeaders(req)
	return c.doRequest(req)
}

func (c *Client) addHeaders(req *http.Request) {
	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("X-TIMESTAMP", timestamp)
	req.Header.Set("X-PASSPHRASE", c.passphrase)

	if c.apiSecret != "" {
		message := timestamp + req.Method + req.URL.Path
		req.Header.Set("X-SIGNATURE", c.hmacSign(message))
	}
}

func (c *Client) doRequest(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// SIGNING
// ═══════════════════════════════════════════════════════════════════════════════

func (c *Client) signPayload(payload map[string]interface{}) (string, error) {
	if c.privateKey == nil {
		return "", fmt.Errorf("private key not loaded")
	}
	canonical, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	hash := crypto.Keccak256(canonical)
	sig, err := crypto.Sign(hash, c.privateKey)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

func (c *Client) hmacSign(message string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(message))
	return hexutil.Encode(mac.Sum(nil))
}

package bot

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantarch/medusa/risk"
	"github.com/quantarch/medusa/storage"
	"github.com/quantarch/medusa/strategy"
	"github.com/quantarch/medusa/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM BOT - Pipeline notifications & read-only control surface
// ═══════════════════════════════════════════════════════════════════════════════
//
// Events:
//   ✅ Proposal approved and filled
//   🚫 Proposal rejected (with the typed reason)
//   🚨 Kill switch tripped
//   📊 Position closed with realized P&L
//   ⚠️ Position unpriceable
//
// Every notification goes through a buffered outbox; a slow or dead
// Telegram API drops messages rather than stalling the engine.
//
// ═══════════════════════════════════════════════════════════════════════════════

// StatusProvider is what the /status and /positions commands read.
// Satisfied by the engine.
type StatusProvider interface {
	RiskState() risk.State
	OpenPositions() []types.PositionRecord
	Capital() decimal.Decimal
}

const outboxSize = 64

// TelegramBot manages the Telegram interface.
type TelegramBot struct {
	mu      sync.Mutex
	api     *tgbotapi.BotAPI
	chatID  int64
	running bool
	stopCh  chan struct{}
	outbox  chan string

	status StatusProvider
	db     *storage.Database // optional, for /trades
}

// NewTelegramBot creates the bot. db may be nil; /trades degrades.
func NewTelegramBot(token string, chatID int64, status StatusProvider, db *storage.Database) (*TelegramBot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	b := &TelegramBot{
		api:    api,
		chatID: chatID,
		stopCh: make(chan struct{}),
		outbox: make(chan string, outboxSize),
		status: status,
		db:     db,
	}
	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot initialized")
	return b, nil
}

// Start launches the command listener and the outbox sender.
func (b *TelegramBot) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	go b.sendLoop()
	go b.commandLoop()
	log.Info().Msg("📱 Telegram bot started")
}

// Stop stops the bot.
func (b *TelegramBot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}
	b.running = false
	close(b.stopCh)
	log.Info().Msg("Telegram bot stopped")
}

// ═══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS (engine-facing, never block)
// ═══════════════════════════════════════════════════════════════════════════════

// NotifyApproved reports a filled trade.
func (b *TelegramBot) NotifyApproved(p strategy.Proposal, sized decimal.Decimal) {
	emoji := "🟢"
	if p.Direction == types.Short {
		emoji = "🔴"
	}
	b.enqueue(fmt.Sprintf(`%s *TRADE OPENED*

📊 *%s* — %s (%s)
━━━━━━━━━━━━━━━━
💵 Entry: *$%s*
🎯 Target: *$%s*
🛑 Stop: *$%s*
📦 Notional: *$%s*`,
		emoji,
		p.Asset, p.Direction.String(), p.StrategyID,
		p.Entry.StringFixed(2),
		p.Target.StringFixed(2),
		p.Stop.StringFixed(2),
		sized.StringFixed(2),
	))
}

// NotifyRejected reports a risk rejection with its typed reason.
func (b *TelegramBot) NotifyRejected(p strategy.Proposal, reason, detail string) {
	b.enqueue(fmt.Sprintf(`🚫 *PROPOSAL REJECTED*

📊 %s %s (%s)
❗ Reason: *%s*
📝 %s`,
		p.Asset, p.Direction.String(), p.StrategyID,
		reason, detail,
	))
}

// NotifyKillSwitch reports the daily-loss halt.
func (b *TelegramBot) NotifyKillSwitch(dailyPnL decimal.Decimal) {
	b.enqueue(fmt.Sprintf(`🚨 *KILL SWITCH TRIPPED*

📉 Daily P&L: *$%s*

No new trades until the next trading day.`,
		dailyPnL.StringFixed(2),
	))
}

// NotifyClosed reports a realized outcome.
func (b *TelegramBot) NotifyClosed(o types.Outcome, pos types.Position) {
	emoji := "📈"
	sign := "+"
	if o.PnL.IsNegative() {
		emoji = "📉"
		sign = ""
	}
	b.enqueue(fmt.Sprintf(`%s *POSITION CLOSED* — %s

📊 %s %s (%s)
💵 P&L: *%s$%s* (%.2fR)`,
		emoji, o.Reason,
		pos.Asset, pos.Direction.String(), pos.StrategyID,
		sign, o.PnL.StringFixed(2), o.RMultiple,
	))
}

// NotifyUnpriceable flags a position the feed could not price.
func (b *TelegramBot) NotifyUnpriceable(pos types.Position) {
	b.enqueue(fmt.Sprintf(`⚠️ *POSITION UNPRICEABLE*

📊 %s (%s)
The feed has no price; the position stays open. Check the data source.`,
		pos.Asset, pos.StrategyID,
	))
}

// enqueue drops the message when the outbox is full. The engine must
// never wait on Telegram.
func (b *TelegramBot) enqueue(msg string) {
	select {
	case b.outbox <- msg:
	default:
		log.Warn().Msg("Telegram outbox full, notification dropped")
	}
}

func (b *TelegramBot) sendLoop() {
	for {
		select {
		case <-b.stopCh:
			return
		case msg := <-b.outbox:
			b.sendMarkdown(msg)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-b.stopCh:
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if update.Message.Chat.ID != b.chatID {
				continue
			}
			b.handleCommand(update.Message)
		}
	}
}

func (b *TelegramBot) handleCommand(msg *tgbotapi.Message) {
	switch strings.ToLower(msg.Command()) {
	case "start", "help":
		b.cmdHelp()
	case "status":
		b.cmdStatus()
	case "risk":
		b.cmdRisk()
	case "positions":
		b.cmdPositions()
	case "trades":
		b.cmdTrades()
	case "ping":
		b.send("🏓 Pong!")
	default:
		b.send("❓ Unknown command. Use /help")
	}
}

func (b *TelegramBot) cmdHelp() {
	b.sendMarkdown(`🤖 *MEDUSA COMMANDS*
━━━━━━━━━━━━━━━━━━━━

📊 /status — Engine status
🛡️ /risk — Risk ledger
💼 /positions — Open positions
📜 /trades — Last 10 journal rows
🏓 /ping — Test connection`)
}

func (b *TelegramBot) cmdStatus() {
	if b.status == nil {
		b.send("❌ Status not available")
		return
	}
	st := b.status.RiskState()
	positions := b.status.OpenPositions()

	b.sendMarkdown(fmt.Sprintf(`📊 *ENGINE STATUS*
━━━━━━━━━━━━━━━━━━━━

🟢 RUNNING
💰 Capital: *$%s*
💼 Open positions: *%d*
📦 Open exposure: *$%s*
📈 Daily P&L: *$%s*
🔢 Trades today: *%d*`,
		st.Capital.StringFixed(2),
		len(positions),
		st.OpenExposureTotal.StringFixed(2),
		st.DailyRealizedPnL.StringFixed(2),
		st.TradesToday,
	))
}

func (b *TelegramBot) cmdRisk() {
	if b.status == nil {
		b.send("❌ Risk state not available")
		return
	}
	st := b.status.RiskState()

	cooldown := "none"
	if st.CooldownUntil.After(time.Now().UTC()) {
		cooldown = "until " + st.CooldownUntil.Format("15:04 MST")
	}

	msg := fmt.Sprintf(`🛡️ *RISK LEDGER*
━━━━━━━━━━━━━━━━━━━━

💰 Capital: *$%s*
🏔️ Equity HWM: *$%s*
📈 Daily P&L: *$%s*
📦 Total exposure: *$%s*
❌ Consecutive losses: *%d*
⏳ Cooldown: *%s*
🔢 Trades today: *%d*`,
		st.Capital.StringFixed(2),
		st.EquityHighWaterMark.StringFixed(2),
		st.DailyRealizedPnL.StringFixed(2),
		st.OpenExposureTotal.StringFixed(2),
		st.ConsecutiveLosses,
		cooldown,
		st.TradesToday,
	)

	if len(st.OpenExposureByAsset) > 0 {
		msg += "\n\n*By asset:*"
		for asset, exp := range st.OpenExposureByAsset {
			if exp.IsPositive() {
				msg += fmt.Sprintf("\n  %s: $%s", asset, exp.StringFixed(2))
			}
		}
	}
	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdPositions() {
	if b.status == nil {
		b.send("❌ Positions not available")
		return
	}
	positions := b.status.OpenPositions()
	if len(positions) == 0 {
		b.send("📭 No open positions")
		return
	}

	msg := "💼 *OPEN POSITIONS*\n━━━━━━━━━━━━━━━━━━━━\n\n"
	for i, pos := range positions {
		emoji := "🟢"
		if pos.Direction == types.Short.String() {
			emoji = "🔴"
		}
		duration := time.Since(pos.OpenedAt).Round(time.Minute)

		msg += fmt.Sprintf(`%s *%s* — %s
💵 Entry: $%s | Notional: $%s
🎯 Target: $%s | 🛑 Stop: $%s
⏱️ Open: %v

`,
			emoji, pos.Asset, pos.Direction,
			pos.EntryPrice.StringFixed(2),
			pos.Notional.StringFixed(2),
			pos.Target.StringFixed(2),
			pos.Stop.StringFixed(2),
			duration,
		)
		if i >= 4 && len(positions) > 5 {
			msg += fmt.Sprintf("_... and %d more_", len(positions)-5)
			break
		}
	}
	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdTrades() {
	if b.db == nil {
		b.send("❌ Trade history not available")
		return
	}
	trades, err := b.db.RecentTrades(10)
	if err != nil {
		b.send("❌ Failed to fetch trades")
		return
	}
	if len(trades) == 0 {
		b.send("📭 No trade history yet")
		return
	}

	msg := "📜 *LAST 10 TRADES*\n━━━━━━━━━━━━━━━━━━━━\n\n"
	for _, t := range trades {
		emoji := "📌"
		switch t.Action {
		case "OPEN":
			emoji = "✅"
		case "TARGET":
			emoji = "💰"
		case "STOP":
			emoji = "🛑"
		case "MANUAL":
			emoji = "📊"
		}

		pnlStr := ""
		if !t.PnL.IsZero() {
			sign := "+"
			if t.PnL.IsNegative() {
				sign = ""
			}
			pnlStr = fmt.Sprintf(" | P&L: %s$%s", sign, t.PnL.StringFixed(2))
		}

		msg += fmt.Sprintf("%s %s %s %s @ $%s%s\n   _%s · %s_\n\n",
			emoji, t.Action, t.Asset, t.Direction,
			t.Price.StringFixed(2), pnlStr,
			t.Strategy, t.CreatedAt.Format("Jan 2 15:04"),
		)
	}
	b.sendMarkdown(msg)
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) send(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func (b *TelegramBot) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/quantarch/medusa/risk"
	"github.com/quantarch/medusa/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DATABASE - Trade journal and risk state persistence
// ═══════════════════════════════════════════════════════════════════════════════
//
// Postgres in production, SQLite for local runs, chosen by the DSN
// prefix. The journal is append-only for trades; risk state is a
// single upserted row so a restart resumes with yesterday's ledger.
//
// ═══════════════════════════════════════════════════════════════════════════════

type Database struct {
	db *gorm.DB
}

// Models

// Trade is one journal row, written on open and on close.
type Trade struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	PositionID string `gorm:"index"`
	Asset      string `gorm:"index"`
	Direction  string
	Action     string // OPEN, TARGET, STOP, MANUAL
	Strategy   string `gorm:"index"`
	Price      decimal.Decimal `gorm:"type:decimal(20,6)"`
	Notional   decimal.Decimal `gorm:"type:decimal(20,2)"`
	PnL        decimal.Decimal `gorm:"type:decimal(20,2)"`
	RMultiple  float64
	CreatedAt  time.Time
}

// ClosedPosition captures the full lifecycle of a finished position.
type ClosedPosition struct {
	ID         string `gorm:"primaryKey"`
	Asset      string `gorm:"index"`
	Direction  string
	Strategy   string `gorm:"index"`
	EntryPrice decimal.Decimal `gorm:"type:decimal(20,6)"`
	Stop       decimal.Decimal `gorm:"type:decimal(20,6)"`
	Target     decimal.Decimal `gorm:"type:decimal(20,6)"`
	Notional   decimal.Decimal `gorm:"type:decimal(20,2)"`
	PnL        decimal.Decimal `gorm:"type:decimal(20,2)"`
	RMultiple  float64
	Win        bool
	Reason     string
	OpenedAt   time.Time
	ClosedAt   time.Time
	CreatedAt  time.Time
}

// RiskLedger is the single persisted risk state row.
type RiskLedger struct {
	ID                  uint `gorm:"primaryKey"`
	Capital             decimal.Decimal `gorm:"type:decimal(20,2)"`
	EquityHighWaterMark decimal.Decimal `gorm:"type:decimal(20,2)"`
	DailyRealizedPnL    decimal.Decimal `gorm:"type:decimal(20,2)"`
	OpenExposureTotal   decimal.Decimal `gorm:"type:decimal(20,2)"`
	ConsecutiveLosses   int
	TradesToday         int
	CooldownUntil       time.Time
	UpdatedAt           time.Time
}

// New opens the database at the DSN: postgres:// selects Postgres,
// anything else is treated as a SQLite file path.
func New(dsn string) (*Database, error) {
	var db *gorm.DB
	var err error

	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		log.Info().Msg("💾 Database connected (PostgreSQL)")
	} else {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		db, err = gorm.Open(sqlite.Open(dsn), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		log.Info().Str("path", dsn).Msg("💾 Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&Trade{}, &ClosedPosition{}, &RiskLedger{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Database{db: db}, nil
}

// RecordOpen journals a freshly opened position.
func (d *Database) RecordOpen(pos types.Position) error {
	return d.db.Create(&Trade{
		PositionID: pos.ID,
		Asset:      pos.Asset,
		Direction:  pos.Direction.String(),
		Action:     "OPEN",
		Strategy:   pos.StrategyID,
		Price:      pos.EntryPrice,
		Notional:   pos.Notional,
	}).Error
}

// RecordClose journals the closing trade and the full position record.
func (d *Database) RecordClose(o types.Outcome, pos types.Position) error {
	err := d.db.Create(&Trade{
		PositionID: pos.ID,
		Asset:      pos.Asset,
		Direction:  pos.Direction.String(),
		Action:     o.Reason,
		Strategy:   pos.StrategyID,
		Price:      pos.EntryPrice,
		Notional:   pos.Notional,
		PnL:        o.PnL,
		RMultiple:  o.RMultiple,
	}).Error
	if err != nil {
		return err
	}

	return d.db.Create(&ClosedPosition{
		ID:         pos.ID,
		Asset:      pos.Asset,
		Direction:  pos.Direction.String(),
		Strategy:   pos.StrategyID,
		EntryPrice: pos.EntryPrice,
		Stop:       pos.Stop,
		Target:     pos.Target,
		Notional:   pos.Notional,
		PnL:        o.PnL,
		RMultiple:  o.RMultiple,
		Win:        o.Win,
		Reason:     o.Reason,
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   o.ClosedAt,
	}).Error
}

// SaveRiskState upserts the single risk ledger row.
func (d *Database) SaveRiskState(st risk.State) error {
	row := RiskLedger{
		ID:                  1,
		Capital:             st.Capital,
		EquityHighWaterMark: st.EquityHighWaterMark,
		DailyRealizedPnL:    st.DailyRealizedPnL,
		OpenExposureTotal:   st.OpenExposureTotal,
		ConsecutiveLosses:   st.ConsecutiveLosses,
		TradesToday:         st.TradesToday,
		CooldownUntil:       st.CooldownUntil,
	}
	return d.db.Save(&row).Error
}

// LoadRiskState returns the persisted ledger row, found=false on a
// fresh database.
func (d *Database) LoadRiskState() (RiskLedger, bool, error) {
	var row RiskLedger
	err := d.db.First(&row, 1).Error
	if err == gorm.ErrRecordNotFound {
		return RiskLedger{}, false, nil
	}
	if err != nil {
		return RiskLedger{}, false, err
	}
	return row, true, nil
}

// RecentTrades returns the latest journal rows, newest first.
func (d *Database) RecentTrades(limit int) ([]Trade, error) {
	var trades []Trade
	err := d.db.Order("created_at DESC").Limit(limit).Find(&trades).Error
	return trades, err
}

// ClosedPositions returns recently closed positions, newest first.
func (d *Database) ClosedPositions(limit int) ([]ClosedPosition, error) {
	var rows []ClosedPosition
	err := d.db.Order("closed_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// StrategyStats aggregates realized performance per strategy.
func (d *Database) StrategyStats() (map[string]StrategyStat, error) {
	var rows []ClosedPosition
	if err := d.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	stats := make(map[string]StrategyStat)
	for _, row := range rows {
		s := stats[row.Strategy]
		s.Strategy = row.Strategy
		s.Trades++
		if row.Win {
			s.Wins++
		}
		s.TotalPnL = s.TotalPnL.Add(row.PnL)
		stats[row.Strategy] = s
	}
	return stats, nil
}

// StrategyStat is one row of the per-strategy performance rollup.
type StrategyStat struct {
	Strategy string
	Trades   int
	Wins     int
	TotalPnL decimal.Decimal
}

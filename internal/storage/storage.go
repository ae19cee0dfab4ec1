package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vdogroup/arbwatch/internal/config"
	"github.com/vdogroup/arbwatch/internal/market"
	"github.com/vdogroup/arbwatch/internal/metrics"
)

// DB wraps the GORM database connection
type DB struct {
	conn *gorm.DB
	log  *logrus.Logger
}

// New creates a new database connection with GORM
func New(cfg *config.Config, log *logrus.Logger) (*DB, error) {
	// Configure GORM logger
	gormLogger := logger.New(
		&gormLogAdapter{log: log},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	conn, err := gorm.Open(mysql.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.DatabaseMaxConns)
	sqlDB.SetMaxIdleConns(cfg.DatabaseMaxConns / 2)
	sqlDB.SetConnMaxIdleTime(cfg.DatabaseMaxIdleTime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("Database connection established")

	return &DB{conn: conn, log: log}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate runs GORM auto-migration (for development only)
func (db *DB) AutoMigrate() error {
	return db.conn.AutoMigrate(
		&Opportunity{},
		&RawOdd{},
		&APIUsage{},
		&ScanStat{},
	)
}

// InsertOpportunity persists a detected opportunity. Legs are serialized to
// JSON; the fingerprint lets the dashboard collapse repeats of the same edge.
func (db *DB) InsertOpportunity(ctx context.Context, opp *market.Opportunity) (int64, error) {
	legsJSON, err := json.Marshal(opp.Legs)
	if err != nil {
		return 0, fmt.Errorf("marshal legs: %w", err)
	}

	row := &Opportunity{
		Fingerprint:      opp.Fingerprint(),
		SportKey:         opp.SportKey,
		SportLabel:       opp.SportLabel,
		EventID:          opp.EventID,
		EventName:        opp.EventName,
		MarketKind:       string(opp.Kind),
		MarketLabel:      opp.MarketLabel(),
		LegsJSON:         string(legsJSON),
		ImpliedSum:       opp.ImpliedSum,
		ProfitPct:        opp.ProfitPct,
		BaseStake:        opp.BaseStake,
		GuaranteedReturn: opp.GuaranteedReturn(),
		CommenceTS:       opp.CommenceTime.Unix(),
		DetectedTS:       opp.DetectedAt.Unix(),
	}

	start := time.Now()
	result := db.conn.WithContext(ctx).Create(row)
	metrics.RecordDatabaseQuery("insert_opportunity", time.Since(start), result.Error)
	if result.Error != nil {
		return 0, result.Error
	}
	return row.ID, nil
}

// InsertRawOdds archives a batch of normalized quotes from one fetch.
func (db *DB) InsertRawOdds(ctx context.Context, quotes []market.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	rows := make([]RawOdd, 0, len(quotes))
	for _, q := range quotes {
		rows = append(rows, RawOdd{
			SportKey:  q.SportKey,
			EventID:   q.EventID,
			EventName: q.EventName,
			Bookmaker: q.Bookmaker,
			MarketKey: string(q.Kind),
			Outcome:   q.Outcome,
			Line:      q.Line,
			HasLine:   q.HasLine,
			Price:     q.Price,
			FetchedTS: q.ObservedAt.Unix(),
		})
	}

	start := time.Now()
	result := db.conn.WithContext(ctx).CreateInBatches(rows, 200)
	metrics.RecordDatabaseQuery("insert_raw_odds", time.Since(start), result.Error)
	return result.Error
}

// InsertAPIUsage logs one provider call.
func (db *DB) InsertAPIUsage(ctx context.Context, usage *APIUsage) error {
	start := time.Now()
	result := db.conn.WithContext(ctx).Create(usage)
	metrics.RecordDatabaseQuery("insert_api_usage", time.Since(start), result.Error)
	return result.Error
}

// InsertScanStat logs one scan cycle summary.
func (db *DB) InsertScanStat(ctx context.Context, stat *ScanStat) error {
	start := time.Now()
	result := db.conn.WithContext(ctx).Create(stat)
	metrics.RecordDatabaseQuery("insert_scan_stat", time.Since(start), result.Error)
	return result.Error
}

// RecentOpportunities returns the newest opportunities, optionally filtered
// by sport key.
func (db *DB) RecentOpportunities(ctx context.Context, sportKey string, limit int) ([]Opportunity, error) {
	if limit <= 0 {
		limit = 50
	}

	query := db.conn.WithContext(ctx).Order("created_ts DESC").Limit(limit)
	if sportKey != "" {
		query = query.Where("sport_key = ?", sportKey)
	}

	var opps []Opportunity
	start := time.Now()
	result := query.Find(&opps)
	metrics.RecordDatabaseQuery("get_opportunities", time.Since(start), result.Error)
	return opps, result.Error
}

// RecentScans returns the newest scan cycle summaries.
func (db *DB) RecentScans(ctx context.Context, limit int) ([]ScanStat, error) {
	if limit <= 0 {
		limit = 50
	}

	var scans []ScanStat
	start := time.Now()
	result := db.conn.WithContext(ctx).Order("created_ts DESC").Limit(limit).Find(&scans)
	metrics.RecordDatabaseQuery("get_scans", time.Since(start), result.Error)
	return scans, result.Error
}

// SummaryStats aggregates opportunity counts and profit figures for the
// dashboard.
type SummaryStats struct {
	TotalOpportunities int64       `json:"total_opportunities"`
	Last24h            int64       `json:"last_24h"`
	AvgProfitPct       float64     `json:"avg_profit_pct"`
	MaxProfitPct       float64     `json:"max_profit_pct"`
	TotalScans         int64       `json:"total_scans"`
	BySport            []SportStat `json:"by_sport"`
}

// SportStat is the per-sport slice of the summary.
type SportStat struct {
	SportKey     string  `json:"sport_key"`
	Count        int64   `json:"count"`
	AvgProfitPct float64 `json:"avg_profit_pct"`
	MaxProfitPct float64 `json:"max_profit_pct"`
}

// Stats computes the dashboard summary.
func (db *DB) Stats(ctx context.Context) (*SummaryStats, error) {
	var stats SummaryStats
	start := time.Now()

	err := db.conn.WithContext(ctx).Model(&Opportunity{}).Count(&stats.TotalOpportunities).Error
	if err == nil {
		dayAgo := time.Now().Add(-24 * time.Hour).Unix()
		err = db.conn.WithContext(ctx).Model(&Opportunity{}).
			Where("created_ts >= ?", dayAgo).
			Count(&stats.Last24h).Error
	}
	if err == nil && stats.TotalOpportunities > 0 {
		row := db.conn.WithContext(ctx).Model(&Opportunity{}).
			Select("AVG(profit_pct), MAX(profit_pct)").
			Row()
		err = row.Scan(&stats.AvgProfitPct, &stats.MaxProfitPct)
	}
	if err == nil {
		err = db.conn.WithContext(ctx).Model(&ScanStat{}).Count(&stats.TotalScans).Error
	}
	if err == nil {
		err = db.conn.WithContext(ctx).Model(&Opportunity{}).
			Select("sport_key, COUNT(*) AS count, AVG(profit_pct) AS avg_profit_pct, MAX(profit_pct) AS max_profit_pct").
			Group("sport_key").
			Order("count DESC").
			Scan(&stats.BySport).Error
	}

	metrics.RecordDatabaseQuery("get_stats", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// gormLogAdapter adapts logrus to GORM's logger interface
type gormLogAdapter struct {
	log *logrus.Logger
}

func (l *gormLogAdapter) Printf(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}

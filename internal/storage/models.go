package storage

import (
	"time"

	"gorm.io/gorm"
)

// Opportunity is a persisted arbitrage detection. Legs are stored as a JSON
// blob since their count varies by market shape (2 or 3).
type Opportunity struct {
	ID               int64   `gorm:"primaryKey;autoIncrement"`
	Fingerprint      string  `gorm:"size:64;not null;index"`
	SportKey         string  `gorm:"size:64;not null;index"`
	SportLabel       string  `gorm:"size:128"`
	EventID          string  `gorm:"size:64;not null;index"`
	EventName        string  `gorm:"size:255;not null"`
	MarketKind       string  `gorm:"size:16;not null"`
	MarketLabel      string  `gorm:"size:64"`
	LegsJSON         string  `gorm:"type:text;not null"`
	ImpliedSum       float64 `gorm:"type:decimal(10,6);not null"`
	ProfitPct        float64 `gorm:"type:decimal(8,4);not null;index"`
	BaseStake        float64 `gorm:"type:decimal(12,2);not null"`
	GuaranteedReturn float64 `gorm:"type:decimal(12,2);not null"`
	CommenceTS       int64   `gorm:"not null;index"`
	DetectedTS       int64   `gorm:"not null"`
	CreatedTS        int64   `gorm:"not null;index"`
}

func (Opportunity) TableName() string {
	return "opportunities"
}

// RawOdd is one bookmaker price observation, archived per fetch for later
// backtesting of detection thresholds.
type RawOdd struct {
	ID        int64   `gorm:"primaryKey;autoIncrement"`
	SportKey  string  `gorm:"size:64;not null;index"`
	EventID   string  `gorm:"size:64;not null;index"`
	EventName string  `gorm:"size:255"`
	Bookmaker string  `gorm:"size:64;not null"`
	MarketKey string  `gorm:"size:16;not null"`
	Outcome   string  `gorm:"size:128;not null"`
	Line      float64 `gorm:"type:decimal(8,2);default:0"`
	HasLine   bool    `gorm:"default:false"`
	Price     float64 `gorm:"type:decimal(10,4);not null"`
	FetchedTS int64   `gorm:"not null;index"`
	CreatedTS int64   `gorm:"not null"`
}

func (RawOdd) TableName() string {
	return "raw_odds"
}

// APIUsage logs one provider call and the quota state it left behind, keyed
// by the credential that made it.
type APIUsage struct {
	ID                int64  `gorm:"primaryKey;autoIncrement"`
	Owner             string `gorm:"size:64;not null;index"`
	KeyPrefix         string `gorm:"size:16;not null"`
	SportKey          string `gorm:"size:64;not null"`
	Success           bool   `gorm:"not null"`
	FailureClass      string `gorm:"size:32"`
	RequestsUsed      int    `gorm:"default:-1"`
	RequestsRemaining int    `gorm:"default:-1"`
	CreatedTS         int64  `gorm:"not null;index"`
}

func (APIUsage) TableName() string {
	return "api_usage"
}

// ScanStat summarizes one scan cycle.
type ScanStat struct {
	ID                 int64  `gorm:"primaryKey;autoIncrement"`
	Status             string `gorm:"size:16;not null"` // complete, degraded, skipped
	SportsScanned      int    `gorm:"not null"`
	SportsFailed       int    `gorm:"not null"`
	EventsSeen         int    `gorm:"not null"`
	QuotesSeen         int    `gorm:"not null"`
	QuotesSkipped      int    `gorm:"not null"`
	OpportunitiesFound int    `gorm:"not null"`
	AlertsSent         int    `gorm:"not null"`
	AlertsSuppressed   int    `gorm:"not null"`
	DurationMS         int64  `gorm:"not null"`
	CreatedTS          int64  `gorm:"not null;index"`
}

func (ScanStat) TableName() string {
	return "scan_stats"
}

// BeforeCreate hooks for timestamps
func (o *Opportunity) BeforeCreate(tx *gorm.DB) error {
	if o.CreatedTS == 0 {
		o.CreatedTS = time.Now().Unix()
	}
	return nil
}

func (r *RawOdd) BeforeCreate(tx *gorm.DB) error {
	if r.CreatedTS == 0 {
		r.CreatedTS = time.Now().Unix()
	}
	return nil
}

func (a *APIUsage) BeforeCreate(tx *gorm.DB) error {
	if a.CreatedTS == 0 {
		a.CreatedTS = time.Now().Unix()
	}
	return nil
}

func (s *ScanStat) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedTS == 0 {
		s.CreatedTS = time.Now().Unix()
	}
	return nil
}

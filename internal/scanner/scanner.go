// Package scanner drives the scan loop: fetch odds for every catalog sport,
// evaluate each event for arbitrage, and report what it finds. One cycle runs
// fetches concurrently but evaluates and reports sequentially, so every
// opportunity is judged against a consistent snapshot.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vdogroup/arbwatch/internal/alerts"
	"github.com/vdogroup/arbwatch/internal/arb"
	"github.com/vdogroup/arbwatch/internal/config"
	"github.com/vdogroup/arbwatch/internal/dedup"
	"github.com/vdogroup/arbwatch/internal/keypool"
	"github.com/vdogroup/arbwatch/internal/market"
	"github.com/vdogroup/arbwatch/internal/metrics"
	"github.com/vdogroup/arbwatch/internal/normalize"
	"github.com/vdogroup/arbwatch/internal/oddsapi"
	"github.com/vdogroup/arbwatch/internal/storage"
)

// State is the phase the scanner is currently in, exposed for health checks.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateEvaluating
	StateReporting
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateEvaluating:
		return "evaluating"
	case StateReporting:
		return "reporting"
	default:
		return "idle"
	}
}

// OddsFetcher fetches odds for one sport using the given credential secret.
type OddsFetcher interface {
	FetchOdds(ctx context.Context, apiKey, sportKey string, marketKeys []string) (*oddsapi.OddsResponse, error)
}

// Store persists scan output. Persistence failures never abort a cycle.
type Store interface {
	InsertOpportunity(ctx context.Context, opp *market.Opportunity) (int64, error)
	InsertRawOdds(ctx context.Context, quotes []market.Quote) error
	InsertAPIUsage(ctx context.Context, usage *storage.APIUsage) error
	InsertScanStat(ctx context.Context, stat *storage.ScanStat) error
}

// Scanner runs the scan loop
type Scanner struct {
	cfg         *config.Config
	catalog     []config.CatalogEntry
	pool        *keypool.Pool
	fetcher     OddsFetcher
	store       Store
	dedup       *dedup.Deduplicator
	alertSender alerts.Sender
	log         *logrus.Logger

	state atomic.Int32

	// Per-owner cooldown on low-quota notices so a draining key does not
	// page on every cycle.
	warnMu     sync.Mutex
	lastWarned map[string]time.Time
}

// New creates a scanner
func New(
	cfg *config.Config,
	catalog []config.CatalogEntry,
	pool *keypool.Pool,
	fetcher OddsFetcher,
	store Store,
	deduper *dedup.Deduplicator,
	alertSender alerts.Sender,
	log *logrus.Logger,
) *Scanner {
	return &Scanner{
		cfg:         cfg,
		catalog:     catalog,
		pool:        pool,
		fetcher:     fetcher,
		store:       store,
		dedup:       deduper,
		alertSender: alertSender,
		log:         log,
		lastWarned:  make(map[string]time.Time),
	}
}

// State returns the scanner's current phase.
func (s *Scanner) State() State {
	return State(s.state.Load())
}

// Run executes scan cycles until the context is cancelled. The first cycle
// starts immediately; a cycle that overruns the interval delays the next tick
// rather than overlapping it.
func (s *Scanner) Run(ctx context.Context) error {
	s.log.WithFields(logrus.Fields{
		"sports":   len(s.catalog),
		"interval": s.cfg.ScanInterval,
	}).Info("Scanner started")

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scanner stopped")
			return nil
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// sportResult is one sport's fetch outcome within a cycle.
type sportResult struct {
	entry   config.CatalogEntry
	quotes  []market.Quote
	events  int
	skipped int
	failed  bool
}

func (s *Scanner) runCycle(ctx context.Context) {
	start := time.Now()
	defer s.state.Store(int32(StateIdle))

	// The cycle runs on its own context: a shutdown signal stops new cycles
	// immediately but grants in-flight work a bounded drain window before the
	// cut. The cycle timeout still caps the whole thing.
	cycleCtx, cancel := context.WithTimeout(context.Background(), s.cfg.CycleTimeout)
	defer cancel()
	stopDrain := cancelAfterGrace(ctx, cancel, s.cfg.ShutdownGrace)
	defer stopDrain()

	s.pool.Reconcile(start)
	metrics.CredentialsActive.Set(float64(s.pool.ActiveCount()))

	stat := &storage.ScanStat{}

	if s.pool.ActiveCount() == 0 {
		s.log.Warn("No usable credentials, skipping cycle")
		stat.Status = "skipped"
		stat.DurationMS = time.Since(start).Milliseconds()
		s.persistStat(cycleCtx, stat)
		metrics.RecordScanCycle(time.Since(start), "skipped")
		return
	}

	// Phase 1: fetch all sports concurrently.
	s.state.Store(int32(StateFetching))

	var (
		mu      sync.Mutex
		results []sportResult
	)

	g, gctx := errgroup.WithContext(cycleCtx)
	g.SetLimit(s.cfg.FetchWorkers)
	for _, entry := range s.catalog {
		entry := entry
		g.Go(func() error {
			res := s.fetchSport(gctx, entry)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	// Phase 2: evaluate each event's quotes for arbitrage.
	s.state.Store(int32(StateEvaluating))

	now := time.Now()
	var opportunities []market.Opportunity
	for _, res := range results {
		if res.failed {
			stat.SportsFailed++
			continue
		}
		stat.SportsScanned++
		stat.EventsSeen += res.events
		stat.QuotesSeen += len(res.quotes)
		stat.QuotesSkipped += res.skipped

		for _, quotes := range normalize.GroupByEvent(res.quotes) {
			threeWay := res.entry.Group == config.GroupSoccer
			for _, opp := range arb.Evaluate(quotes, s.cfg.BaseStake, s.cfg.MinProfitPct, threeWay, now) {
				opp.SportLabel = res.entry.Label
				opportunities = append(opportunities, opp)
			}
		}
	}
	stat.OpportunitiesFound = len(opportunities)

	// Phase 3: persist and alert.
	s.state.Store(int32(StateReporting))

	for i := range opportunities {
		opp := &opportunities[i]
		metrics.RecordOpportunity(opp.SportKey, string(opp.Kind), opp.ProfitPct)

		s.log.WithFields(logrus.Fields{
			"sport":      opp.SportKey,
			"event":      opp.EventName,
			"market":     opp.MarketLabel(),
			"profit_pct": opp.ProfitPct,
		}).Info(arb.Describe(opp))

		// A fingerprint inside its cooldown window is the same edge seen
		// again: neither persisted nor alerted.
		fp := opp.Fingerprint()
		if !s.dedup.ShouldAlert(fp, now) {
			stat.AlertsSuppressed++
			metrics.RecordAlert("", "", true)
			continue
		}
		s.dedup.Record(fp, now, opp.CommenceTime)

		if _, err := s.store.InsertOpportunity(cycleCtx, opp); err != nil {
			s.log.WithError(err).Error("Failed to persist opportunity")
		}

		payload := alerts.FromOpportunity(opp, s.cfg.Environment)
		if err := s.alertSender.Send(cycleCtx, payload); err != nil {
			s.log.WithError(err).Error("Failed to send alert")
			metrics.RecordAlert("error", s.cfg.AlertMode, false)
			continue
		}
		metrics.RecordAlert("success", s.cfg.AlertMode, false)
		stat.AlertsSent++
	}

	s.dedup.Sweep(now)

	stat.Status = "complete"
	if stat.SportsFailed > 0 {
		stat.Status = "degraded"
	}
	stat.DurationMS = time.Since(start).Milliseconds()
	s.persistStat(cycleCtx, stat)
	metrics.RecordScanCycle(time.Since(start), stat.Status)

	s.log.WithFields(logrus.Fields{
		"status":        stat.Status,
		"sports":        stat.SportsScanned,
		"sports_failed": stat.SportsFailed,
		"events":        stat.EventsSeen,
		"quotes":        stat.QuotesSeen,
		"opportunities": stat.OpportunitiesFound,
		"alerts":        stat.AlertsSent,
		"suppressed":    stat.AlertsSuppressed,
		"duration_ms":   stat.DurationMS,
	}).Info("Scan cycle finished")
}

// cancelAfterGrace invokes cancel a grace period after parent is cancelled.
// The returned stop function releases the watcher once the cycle is over.
func cancelAfterGrace(parent context.Context, cancel context.CancelFunc, grace time.Duration) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			select {
			case <-time.After(grace):
				cancel()
			case <-done:
			}
		case <-done:
		}
	}()
	return func() { close(done) }
}

// fetchSport fetches and normalizes one sport's odds. A quota or auth failure
// rotates the credential and retries once with a different one; transient
// failures skip the sport for this cycle.
func (s *Scanner) fetchSport(ctx context.Context, entry config.CatalogEntry) sportResult {
	res := sportResult{entry: entry}
	marketKeys := config.MarketsFor(entry.Group)

	var resp *oddsapi.OddsResponse
	for attempt := 0; attempt < 2; attempt++ {
		cred, err := s.pool.Acquire()
		if err != nil {
			s.log.WithField("sport", entry.Key).Warn("No credential available, skipping sport")
			res.failed = true
			return res
		}

		resp, err = s.fetcher.FetchOdds(ctx, cred.Key, entry.Key, marketKeys)
		if err == nil {
			s.pool.ReportSuccess(cred, 1)
			s.pool.SyncQuota(cred, resp.RequestsRemaining)
			s.recordUsage(ctx, cred, entry.Key, true, "", resp)
			s.maybeWarnLowQuota(ctx, cred, resp.RequestsRemaining)
			break
		}

		switch {
		case errors.Is(err, oddsapi.ErrQuotaExceeded):
			s.pool.ReportFailure(cred, keypool.ReasonQuotaExceeded, oddsapi.ResetTime(err))
			metrics.RecordCredentialRotation(string(keypool.ReasonQuotaExceeded))
			s.recordUsage(ctx, cred, entry.Key, false, string(keypool.ReasonQuotaExceeded), nil)
			s.notifyFailover(ctx, cred, "quota exhausted")
		case errors.Is(err, oddsapi.ErrAuthRejected):
			s.pool.ReportFailure(cred, keypool.ReasonAuthRejected, time.Time{})
			metrics.RecordCredentialRotation(string(keypool.ReasonAuthRejected))
			s.recordUsage(ctx, cred, entry.Key, false, string(keypool.ReasonAuthRejected), nil)
			s.notifyFailover(ctx, cred, "authentication rejected")
		default:
			s.pool.ReportFailure(cred, keypool.ReasonTransient, time.Time{})
			s.recordUsage(ctx, cred, entry.Key, false, string(keypool.ReasonTransient), nil)
			s.log.WithError(err).WithField("sport", entry.Key).Warn("Fetch failed, skipping sport this cycle")
			res.failed = true
			return res
		}
	}

	if resp == nil {
		res.failed = true
		return res
	}

	norm := normalize.Normalize(resp.Events, entry.Key, time.Now())
	metrics.RecordNormalization(entry.Key, len(norm.Quotes), norm.SkippedQuotes+norm.SkippedMarkets)

	if err := s.store.InsertRawOdds(ctx, norm.Quotes); err != nil {
		s.log.WithError(err).WithField("sport", entry.Key).Error("Failed to archive raw odds")
	}

	res.events = len(resp.Events)
	res.quotes = norm.Quotes
	res.skipped = norm.SkippedQuotes + norm.SkippedMarkets
	return res
}

func (s *Scanner) recordUsage(ctx context.Context, cred *keypool.Credential, sportKey string, success bool, failureClass string, resp *oddsapi.OddsResponse) {
	usage := &storage.APIUsage{
		Owner:             cred.Owner,
		KeyPrefix:         cred.KeyPrefix(),
		SportKey:          sportKey,
		Success:           success,
		FailureClass:      failureClass,
		RequestsUsed:      -1,
		RequestsRemaining: -1,
	}
	if resp != nil {
		usage.RequestsUsed = resp.RequestsUsed
		usage.RequestsRemaining = resp.RequestsRemaining
	}
	if err := s.store.InsertAPIUsage(ctx, usage); err != nil {
		s.log.WithError(err).Error("Failed to record API usage")
	}
}

// maybeWarnLowQuota sends an operational notice when a credential's reported
// quota falls to the threshold, at most once per hour per owner.
func (s *Scanner) maybeWarnLowQuota(ctx context.Context, cred *keypool.Credential, remaining int) {
	if remaining < 0 || remaining > s.cfg.LowQuotaThreshold {
		return
	}

	s.warnMu.Lock()
	last, ok := s.lastWarned[cred.Owner]
	if ok && time.Since(last) < time.Hour {
		s.warnMu.Unlock()
		return
	}
	s.lastWarned[cred.Owner] = time.Now()
	s.warnMu.Unlock()

	subject := "Low API quota"
	body := fmt.Sprintf("Credential %s (%s…) has %d requests remaining", cred.Owner, cred.KeyPrefix(), remaining)
	s.log.WithFields(logrus.Fields{
		"owner":     cred.Owner,
		"remaining": remaining,
	}).Warn(subject)

	if err := s.alertSender.Notify(ctx, subject, body); err != nil {
		s.log.WithError(err).Error("Failed to send low quota notice")
	}
}

func (s *Scanner) notifyFailover(ctx context.Context, cred *keypool.Credential, cause string) {
	subject := "Credential failover"
	body := fmt.Sprintf("Credential %s (%s…) rotated out: %s. %d credential(s) still usable",
		cred.Owner, cred.KeyPrefix(), cause, s.pool.ActiveCount())

	if err := s.alertSender.Notify(ctx, subject, body); err != nil {
		s.log.WithError(err).Error("Failed to send failover notice")
	}
}

func (s *Scanner) persistStat(ctx context.Context, stat *storage.ScanStat) {
	if err := s.store.InsertScanStat(ctx, stat); err != nil {
		s.log.WithError(err).Error("Failed to persist scan stats")
	}
}

package scanner

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vdogroup/arbwatch/internal/alerts"
	"github.com/vdogroup/arbwatch/internal/config"
	"github.com/vdogroup/arbwatch/internal/dedup"
	"github.com/vdogroup/arbwatch/internal/keypool"
	"github.com/vdogroup/arbwatch/internal/market"
	"github.com/vdogroup/arbwatch/internal/oddsapi"
	"github.com/vdogroup/arbwatch/internal/storage"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls []string // api keys in call order
	fn    func(ctx context.Context, apiKey string) (*oddsapi.OddsResponse, error)
}

func (f *fakeFetcher) FetchOdds(ctx context.Context, apiKey, sportKey string, marketKeys []string) (*oddsapi.OddsResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, apiKey)
	f.mu.Unlock()
	return f.fn(ctx, apiKey)
}

type fakeStore struct {
	mu            sync.Mutex
	opportunities []market.Opportunity
	rawOdds       int
	usage         []*storage.APIUsage
	stats         []*storage.ScanStat
}

func (s *fakeStore) InsertOpportunity(ctx context.Context, opp *market.Opportunity) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opportunities = append(s.opportunities, *opp)
	return int64(len(s.opportunities)), nil
}

func (s *fakeStore) InsertRawOdds(ctx context.Context, quotes []market.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawOdds += len(quotes)
	return nil
}

func (s *fakeStore) InsertAPIUsage(ctx context.Context, usage *storage.APIUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, usage)
	return nil
}

func (s *fakeStore) InsertScanStat(ctx context.Context, stat *storage.ScanStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = append(s.stats, stat)
	return nil
}

func (s *fakeStore) lastStat(t *testing.T) *storage.ScanStat {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stats) == 0 {
		t.Fatal("no scan stats recorded")
	}
	return s.stats[len(s.stats)-1]
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []*alerts.Payload
	notices []string
}

func (s *fakeSender) Send(ctx context.Context, payload *alerts.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, payload)
	return nil
}

func (s *fakeSender) Notify(ctx context.Context, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, subject)
	return nil
}

func (s *fakeSender) noticeCount(subject string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, got := range s.notices {
		if got == subject {
			n++
		}
	}
	return n
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testConfig() *config.Config {
	return &config.Config{
		Environment:       "test",
		ScanInterval:      10 * time.Second,
		CycleTimeout:      5 * time.Second,
		ShutdownGrace:     2 * time.Second,
		FetchWorkers:      2,
		BaseStake:         100.0,
		MinProfitPct:      0.0,
		LowQuotaThreshold: 50,
		AlertMode:         "log",
		DedupWindow:       5 * time.Minute,
	}
}

func testCatalog() []config.CatalogEntry {
	return []config.CatalogEntry{
		{Key: "tennis_atp_french_open", Label: "ATP French Open", Group: config.GroupTennis},
	}
}

func testPool(owners ...string) *keypool.Pool {
	creds := make([]*keypool.Credential, 0, len(owners))
	for _, owner := range owners {
		creds = append(creds, &keypool.Credential{
			Owner: owner,
			Key:   owner + "-" + strings.Repeat("k", 32),
		})
	}
	return keypool.New(creds, 500, time.Hour, testLogger())
}

// arbResponse returns one event whose best cross-bookmaker prices form a
// 2.10/2.10 arb.
func arbResponse(remaining int) *oddsapi.OddsResponse {
	return &oddsapi.OddsResponse{
		RequestsUsed:      1,
		RequestsRemaining: remaining,
		Events: []oddsapi.Event{
			{
				ID:           "evt1",
				SportKey:     "tennis_atp_french_open",
				CommenceTime: time.Now().Add(4 * time.Hour),
				HomeTeam:     "Alcaraz",
				AwayTeam:     "Sinner",
				Bookmakers: []oddsapi.Bookmaker{
					{
						Key: "winamax_fr", Title: "Winamax",
						Markets: []oddsapi.Market{
							{Key: "h2h", Outcomes: []oddsapi.Outcome{
								{Name: "Alcaraz", Price: 2.10},
								{Name: "Sinner", Price: 1.60},
							}},
						},
					},
					{
						Key: "pinnacle", Title: "Pinnacle",
						Markets: []oddsapi.Market{
							{Key: "h2h", Outcomes: []oddsapi.Outcome{
								{Name: "Alcaraz", Price: 1.60},
								{Name: "Sinner", Price: 2.10},
							}},
						},
					},
				},
			},
		},
	}
}

func newTestScanner(fetcher *fakeFetcher, store *fakeStore, sender *fakeSender, pool *keypool.Pool) *Scanner {
	return New(testConfig(), testCatalog(), pool, fetcher, store, dedup.New(5*time.Minute), sender, testLogger())
}

func TestRunCycleDetectsAndAlerts(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(context.Context, string) (*oddsapi.OddsResponse, error) {
		return arbResponse(400), nil
	}}
	store := &fakeStore{}
	sender := &fakeSender{}
	s := newTestScanner(fetcher, store, sender, testPool("alice"))

	s.runCycle(context.Background())

	if len(store.opportunities) != 1 {
		t.Fatalf("persisted %d opportunities, want 1", len(store.opportunities))
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d alerts, want 1", len(sender.sent))
	}
	if store.rawOdds != 4 {
		t.Errorf("archived %d raw odds, want 4", store.rawOdds)
	}

	stat := store.lastStat(t)
	if stat.Status != "complete" {
		t.Errorf("cycle status = %q, want complete", stat.Status)
	}
	if stat.OpportunitiesFound != 1 || stat.AlertsSent != 1 {
		t.Errorf("stat = %+v, want 1 opportunity and 1 alert", stat)
	}

	payload := sender.sent[0]
	if payload.SportLabel != "ATP French Open" {
		t.Errorf("payload sport label = %q", payload.SportLabel)
	}
	if len(payload.Legs) != 2 {
		t.Errorf("payload has %d legs, want 2", len(payload.Legs))
	}
}

func TestRepeatOpportunitySuppressed(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(context.Context, string) (*oddsapi.OddsResponse, error) {
		return arbResponse(400), nil
	}}
	store := &fakeStore{}
	sender := &fakeSender{}
	s := newTestScanner(fetcher, store, sender, testPool("alice"))

	ctx := context.Background()
	s.runCycle(ctx)
	s.runCycle(ctx)

	// The second sighting is the same edge inside the cooldown window: it is
	// neither persisted nor alerted.
	if len(store.opportunities) != 1 {
		t.Fatalf("persisted %d opportunities, want 1", len(store.opportunities))
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d alerts across repeat cycles, want 1", len(sender.sent))
	}

	stat := store.lastStat(t)
	if stat.AlertsSuppressed != 1 {
		t.Errorf("second cycle suppressed %d alerts, want 1", stat.AlertsSuppressed)
	}
}

func TestCredentialRotationMidCycle(t *testing.T) {
	pool := testPool("alice", "bob")

	fetcher := &fakeFetcher{fn: func(_ context.Context, apiKey string) (*oddsapi.OddsResponse, error) {
		if strings.HasPrefix(apiKey, "alice") {
			return nil, oddsapi.ErrQuotaExceeded
		}
		return arbResponse(400), nil
	}}
	store := &fakeStore{}
	sender := &fakeSender{}
	s := newTestScanner(fetcher, store, sender, pool)

	s.runCycle(context.Background())

	// Fetch succeeded after rotating to bob.
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d alerts, want 1 after rotation", len(sender.sent))
	}
	if pool.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d after rotation, want 1", pool.ActiveCount())
	}
	if sender.noticeCount("Credential failover") != 1 {
		t.Errorf("failover notices = %d, want 1", sender.noticeCount("Credential failover"))
	}
	if stat := store.lastStat(t); stat.Status != "complete" {
		t.Errorf("cycle status = %q, want complete", stat.Status)
	}
}

func TestTransientFailureDegradesCycle(t *testing.T) {
	pool := testPool("alice")

	fetcher := &fakeFetcher{fn: func(context.Context, string) (*oddsapi.OddsResponse, error) {
		return nil, errors.New("connection reset")
	}}
	store := &fakeStore{}
	sender := &fakeSender{}
	s := newTestScanner(fetcher, store, sender, pool)

	s.runCycle(context.Background())

	if len(sender.sent) != 0 {
		t.Fatalf("sent %d alerts on failed fetch, want 0", len(sender.sent))
	}
	if pool.ActiveCount() != 1 {
		t.Errorf("transient failure must not penalize the credential, ActiveCount = %d", pool.ActiveCount())
	}
	if len(fetcher.calls) != 1 {
		t.Errorf("fetcher called %d times, transient failures must not retry", len(fetcher.calls))
	}

	stat := store.lastStat(t)
	if stat.Status != "degraded" {
		t.Errorf("cycle status = %q, want degraded", stat.Status)
	}
	if stat.SportsFailed != 1 {
		t.Errorf("SportsFailed = %d, want 1", stat.SportsFailed)
	}
}

func TestNoCredentialsSkipsCycle(t *testing.T) {
	pool := testPool("alice")
	alice, _ := pool.Acquire()
	pool.ReportFailure(alice, keypool.ReasonAuthRejected, time.Time{})

	fetcher := &fakeFetcher{fn: func(context.Context, string) (*oddsapi.OddsResponse, error) {
		t.Fatal("fetcher must not be called without credentials")
		return nil, nil
	}}
	store := &fakeStore{}
	sender := &fakeSender{}
	s := newTestScanner(fetcher, store, sender, pool)

	s.runCycle(context.Background())

	if stat := store.lastStat(t); stat.Status != "skipped" {
		t.Errorf("cycle status = %q, want skipped", stat.Status)
	}
}

func TestLowQuotaNoticeOncePerHour(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(context.Context, string) (*oddsapi.OddsResponse, error) {
		return arbResponse(10), nil
	}}
	store := &fakeStore{}
	sender := &fakeSender{}
	s := newTestScanner(fetcher, store, sender, testPool("alice"))

	ctx := context.Background()
	s.runCycle(ctx)
	s.runCycle(ctx)

	if got := sender.noticeCount("Low API quota"); got != 1 {
		t.Fatalf("low quota notices = %d, want 1 (per-owner cooldown)", got)
	}
}

func TestQuotaSyncedFromResponse(t *testing.T) {
	pool := testPool("alice")

	fetcher := &fakeFetcher{fn: func(context.Context, string) (*oddsapi.OddsResponse, error) {
		return arbResponse(123), nil
	}}
	store := &fakeStore{}
	sender := &fakeSender{}
	s := newTestScanner(fetcher, store, sender, pool)

	s.runCycle(context.Background())

	infos := pool.Snapshot()
	if len(infos) != 1 {
		t.Fatalf("Snapshot len = %d", len(infos))
	}
	if infos[0].QuotaRemaining != 123 {
		t.Errorf("QuotaRemaining = %d, want 123 from response metadata", infos[0].QuotaRemaining)
	}

	if len(store.usage) != 1 {
		t.Fatalf("recorded %d usage rows, want 1", len(store.usage))
	}
	if store.usage[0].RequestsRemaining != 123 || !store.usage[0].Success {
		t.Errorf("usage row = %+v", store.usage[0])
	}
}

func TestShutdownGraceDrainsInFlightCycle(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(ctx context.Context, _ string) (*oddsapi.OddsResponse, error) {
		select {
		case <-time.After(50 * time.Millisecond):
			return arbResponse(400), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	store := &fakeStore{}
	sender := &fakeSender{}
	s := newTestScanner(fetcher, store, sender, testPool("alice"))

	// The shutdown signal arrives before the cycle starts; in-flight work
	// still gets the grace window to finish.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.runCycle(ctx)

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d alerts, want 1 from the draining cycle", len(sender.sent))
	}
	if stat := store.lastStat(t); stat.Status != "complete" {
		t.Errorf("cycle status = %q, want complete", stat.Status)
	}
}

package keypool

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testPool(t *testing.T, owners ...string) *Pool {
	t.Helper()
	creds := make([]*Credential, 0, len(owners))
	for i, owner := range owners {
		creds = append(creds, &Credential{Owner: owner, Key: string(rune('a'+i)) + "0000000000000000000000000000000"})
	}
	return New(creds, 500, time.Hour, testLogger())
}

func TestLoadFile(t *testing.T) {
	content := `# production keys
alice:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa

bob:  bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb
cccccccccccccccccccccccccccccccc
not-a-key-too-short
`
	path := filepath.Join(t.TempDir(), "api_keys.txt")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	creds, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(creds) != 3 {
		t.Fatalf("loaded %d credentials, want 3", len(creds))
	}
	if creds[0].Owner != "alice" {
		t.Errorf("creds[0].Owner = %q, want alice", creds[0].Owner)
	}
	if creds[1].Key != "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb" {
		t.Errorf("creds[1].Key = %q, whitespace not trimmed", creds[1].Key)
	}
	if creds[2].Owner != "unknown" {
		t.Errorf("bare key owner = %q, want unknown", creds[2].Owner)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAcquireLeastRecentlyUsed(t *testing.T) {
	pool := testPool(t, "alice", "bob")

	first, err := pool.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	second, err := pool.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	if first.Owner == second.Owner {
		t.Fatalf("consecutive acquires returned the same credential %q", first.Owner)
	}
}

func TestAcquireSkipsUnusable(t *testing.T) {
	pool := testPool(t, "alice", "bob")

	alice, _ := pool.Acquire()
	pool.ReportFailure(alice, ReasonQuotaExceeded, time.Time{})

	for i := 0; i < 3; i++ {
		c, err := pool.Acquire()
		if err != nil {
			t.Fatal(err)
		}
		if c.Owner == alice.Owner {
			t.Fatal("rate-limited credential must not be acquired")
		}
	}
}

func TestAcquireExhausted(t *testing.T) {
	pool := testPool(t, "alice")

	alice, _ := pool.Acquire()
	pool.ReportFailure(alice, ReasonAuthRejected, time.Time{})

	if _, err := pool.Acquire(); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("err = %v, want ErrNoCredential", err)
	}
}

func TestRotationOnQuotaFailure(t *testing.T) {
	pool := testPool(t, "alice", "bob")

	// Simulate a fetch that burns alice's quota mid-cycle; the next acquire
	// must return bob and keep the scan going.
	alice, _ := pool.Acquire()
	pool.ReportFailure(alice, ReasonQuotaExceeded, time.Now().Add(time.Hour))

	replacement, err := pool.Acquire()
	if err != nil {
		t.Fatalf("expected a replacement credential, got %v", err)
	}
	if replacement.Owner != "bob" {
		t.Fatalf("replacement = %q, want bob", replacement.Owner)
	}
	if pool.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1", pool.ActiveCount())
	}
}

func TestReportSuccessDecrementsQuota(t *testing.T) {
	pool := testPool(t, "alice")

	alice, _ := pool.Acquire()
	pool.ReportSuccess(alice, 3)
	if alice.QuotaRemaining != 497 {
		t.Errorf("QuotaRemaining = %d, want 497", alice.QuotaRemaining)
	}

	pool.ReportSuccess(alice, 1000)
	if alice.QuotaRemaining != 0 {
		t.Errorf("QuotaRemaining = %d after over-decrement, want 0", alice.QuotaRemaining)
	}
}

func TestSyncQuota(t *testing.T) {
	pool := testPool(t, "alice")
	alice, _ := pool.Acquire()

	pool.SyncQuota(alice, 42)
	if alice.QuotaRemaining != 42 {
		t.Errorf("QuotaRemaining = %d, want 42", alice.QuotaRemaining)
	}

	// Negative means the provider did not report
	pool.SyncQuota(alice, -1)
	if alice.QuotaRemaining != 42 {
		t.Errorf("QuotaRemaining = %d after negative sync, want 42", alice.QuotaRemaining)
	}
}

func TestTransientFailureNoPenalty(t *testing.T) {
	pool := testPool(t, "alice")
	alice, _ := pool.Acquire()

	pool.ReportFailure(alice, ReasonTransient, time.Time{})
	if alice.Status != StatusActive {
		t.Errorf("Status = %s after transient failure, want active", alice.Status)
	}
}

func TestAcquireCoolsDownDrainedCredential(t *testing.T) {
	pool := testPool(t, "alice")

	// Drain the quota locally without ever seeing a provider 402.
	alice, _ := pool.Acquire()
	pool.ReportSuccess(alice, 500)

	if _, err := pool.Acquire(); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("err = %v, want ErrNoCredential", err)
	}
	if alice.Status != StatusRateLimited {
		t.Fatalf("drained credential status = %s, want rate_limited", alice.Status)
	}
	if alice.ResetAt.IsZero() {
		t.Fatal("drained credential has no reset time, it would never recover")
	}

	// Once the cooldown passes, Reconcile restores the quota window.
	pool.Reconcile(time.Now().Add(2 * time.Hour))
	recovered, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire after reconcile: %v", err)
	}
	if recovered.QuotaRemaining != 500 {
		t.Errorf("QuotaRemaining = %d after recovery, want 500", recovered.QuotaRemaining)
	}
}

func TestReconcileReactivates(t *testing.T) {
	pool := testPool(t, "alice")
	alice, _ := pool.Acquire()

	resetAt := time.Now().Add(-time.Minute)
	pool.ReportFailure(alice, ReasonQuotaExceeded, resetAt)
	if pool.ActiveCount() != 0 {
		t.Fatalf("ActiveCount = %d after rate limit, want 0", pool.ActiveCount())
	}

	pool.Reconcile(time.Now())
	if alice.Status != StatusActive {
		t.Fatalf("Status = %s after reconcile, want active", alice.Status)
	}
	if alice.QuotaRemaining != 500 {
		t.Errorf("QuotaRemaining = %d after reset, want 500", alice.QuotaRemaining)
	}
}

func TestReconcileLeavesInvalid(t *testing.T) {
	pool := testPool(t, "alice")
	alice, _ := pool.Acquire()

	pool.ReportFailure(alice, ReasonAuthRejected, time.Time{})
	pool.Reconcile(time.Now().Add(24 * time.Hour))

	if alice.Status != StatusInvalid {
		t.Fatalf("Status = %s, invalid credentials must never come back", alice.Status)
	}
}

func TestSnapshotMasksSecrets(t *testing.T) {
	pool := testPool(t, "alice")

	infos := pool.Snapshot()
	if len(infos) != 1 {
		t.Fatalf("Snapshot len = %d, want 1", len(infos))
	}
	if len(infos[0].KeyPrefix) > 8 {
		t.Errorf("KeyPrefix %q leaks more than 8 characters", infos[0].KeyPrefix)
	}
}

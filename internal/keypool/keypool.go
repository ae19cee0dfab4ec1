package keypool

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Status is the lifecycle state of a credential.
type Status string

const (
	StatusActive      Status = "active"
	StatusRateLimited Status = "rate_limited"
	StatusInvalid     Status = "invalid"
)

// FailureReason classifies a failed call for ReportFailure.
type FailureReason string

const (
	ReasonQuotaExceeded FailureReason = "quota_exceeded"
	ReasonAuthRejected  FailureReason = "auth_rejected"
	ReasonTransient     FailureReason = "transient_network"
)

// ErrNoCredential is returned by Acquire when no credential is Active with
// quota remaining. Callers must back off (skip the sport for this cycle).
var ErrNoCredential = errors.New("keypool: no active credential with quota remaining")

// Credential is one API key with its quota and health state. All fields are
// owned by the Pool; callers may read Owner and Key but must route every
// state change through the Pool.
type Credential struct {
	Owner          string
	Key            string
	Status         Status
	QuotaRemaining int
	ResetAt        time.Time

	initialQuota int
	lastUsed     time.Time
}

// KeyPrefix returns a loggable prefix of the secret.
func (c *Credential) KeyPrefix() string {
	if len(c.Key) <= 8 {
		return c.Key
	}
	return c.Key[:8]
}

// Pool owns a set of credentials and hands them out least-recently-used
// first. It is the only shared mutable state between fetch workers; every
// method holds the pool mutex for the duration of the state transition only,
// never across network I/O.
type Pool struct {
	mu       sync.Mutex
	creds    []*Credential
	cooldown time.Duration
	log      *logrus.Logger
}

// New creates a pool over the given credentials. cooldown is the fallback
// rate-limit hold when the provider does not supply a reset time.
func New(creds []*Credential, initialQuota int, cooldown time.Duration, log *logrus.Logger) *Pool {
	for _, c := range creds {
		c.Status = StatusActive
		c.QuotaRemaining = initialQuota
		c.initialQuota = initialQuota
	}
	return &Pool{creds: creds, cooldown: cooldown, log: log}
}

// LoadFile reads a line-oriented credentials file. Each line is
// "owner-label:secret-token"; a bare 32-character token is accepted with
// owner "unknown". Blank lines and lines starting with '#' are skipped.
func LoadFile(path string) ([]*Credential, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open credentials file: %w", err)
	}
	defer f.Close()

	var creds []*Credential
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if owner, key, ok := strings.Cut(line, ":"); ok {
			creds = append(creds, &Credential{Owner: strings.TrimSpace(owner), Key: strings.TrimSpace(key)})
		} else if len(line) == 32 {
			creds = append(creds, &Credential{Owner: "unknown", Key: line})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	return creds, nil
}

// Acquire returns the least-recently-used credential that is Active with
// quota remaining, or ErrNoCredential. A credential found drained to zero
// quota is moved to RateLimited with the fallback cooldown so Reconcile can
// recover it at the next quota window.
func (p *Pool) Acquire() (*Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	var pick *Credential
	for _, c := range p.creds {
		if c.Status != StatusActive {
			continue
		}
		if c.QuotaRemaining <= 0 {
			c.Status = StatusRateLimited
			c.ResetAt = now.Add(p.cooldown)
			p.log.WithFields(logrus.Fields{
				"owner":    c.Owner,
				"key":      c.KeyPrefix(),
				"reset_at": c.ResetAt,
			}).Warn("Credential quota drained, cooling down")
			continue
		}
		if pick == nil || c.lastUsed.Before(pick.lastUsed) {
			pick = c
		}
	}
	if pick == nil {
		return nil, ErrNoCredential
	}
	pick.lastUsed = now
	return pick, nil
}

// ReportSuccess decrements the credential's quota by the number of
// chargeable calls consumed.
func (p *Pool) ReportSuccess(c *Credential, unitsConsumed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c.QuotaRemaining -= unitsConsumed
	if c.QuotaRemaining < 0 {
		c.QuotaRemaining = 0
	}
}

// SyncQuota overwrites the credential's remaining quota with the value the
// provider reported in its response metadata. Negative values mean the
// provider did not report and are ignored.
func (p *Pool) SyncQuota(c *Credential, remaining int) {
	if remaining < 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c.QuotaRemaining = remaining
}

// ReportFailure applies the state transition for a failed call. resetAt is
// the provider-supplied quota reset time; pass the zero time when unknown and
// the pool falls back to its fixed cooldown. Transient failures carry no
// penalty.
func (p *Pool) ReportFailure(c *Credential, reason FailureReason, resetAt time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch reason {
	case ReasonQuotaExceeded:
		c.Status = StatusRateLimited
		if resetAt.IsZero() {
			resetAt = time.Now().Add(p.cooldown)
		}
		c.ResetAt = resetAt
		p.log.WithFields(logrus.Fields{
			"owner":    c.Owner,
			"key":      c.KeyPrefix(),
			"reset_at": resetAt,
		}).Warn("Credential rate limited")
	case ReasonAuthRejected:
		c.Status = StatusInvalid
		p.log.WithFields(logrus.Fields{
			"owner": c.Owner,
			"key":   c.KeyPrefix(),
		}).Warn("Credential permanently invalid")
	case ReasonTransient:
		// No penalty.
	}
}

// Reconcile transitions RateLimited credentials back to Active once their
// reset time has passed, restoring their configured quota. Called by the
// orchestrator at the start of every cycle.
func (p *Pool) Reconcile(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.creds {
		if c.Status == StatusRateLimited && now.After(c.ResetAt) {
			c.Status = StatusActive
			c.QuotaRemaining = c.initialQuota
			p.log.WithFields(logrus.Fields{
				"owner": c.Owner,
				"key":   c.KeyPrefix(),
			}).Info("Credential reactivated after quota reset")
		}
	}
}

// ActiveCount returns the number of credentials currently usable.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, c := range p.creds {
		if c.Status == StatusActive && c.QuotaRemaining > 0 {
			n++
		}
	}
	return n
}

// Len returns the total number of credentials, usable or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

// CredentialInfo is a read-only snapshot of one credential for status
// reporting.
type CredentialInfo struct {
	Owner          string
	KeyPrefix      string
	Status         Status
	QuotaRemaining int
	ResetAt        time.Time
}

// Snapshot returns the current state of every credential.
func (p *Pool) Snapshot() []CredentialInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	infos := make([]CredentialInfo, 0, len(p.creds))
	for _, c := range p.creds {
		infos = append(infos, CredentialInfo{
			Owner:          c.Owner,
			KeyPrefix:      c.KeyPrefix(),
			Status:         c.Status,
			QuotaRemaining: c.QuotaRemaining,
			ResetAt:        c.ResetAt,
		})
	}
	return infos
}

package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sync"
	"time"

	"pfmp/apperr"
	"pfmp/logger"
	"pfmp/models"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Actions with a policy in the default table.
const (
	ActionSendEmail           = "send-email"
	ActionResetPassword       = "reset-password"
	ActionOTPSend             = "otp-send"
	ActionOTPVerify           = "otp-verify"
	ActionOTPActivationSend   = "otp-activation-send"
	ActionOTPActivationVerify = "otp-activation-verify"
)

//go:embed policies.yaml
var defaultPolicies []byte

type Policy struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

type policyFile struct {
	Policies map[string]Policy `yaml:"policies"`
}

// ParsePolicies reads a YAML policy table.
func ParsePolicies(data []byte) (map[string]Policy, error) {
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rate limit policies: %w", err)
	}
	for action, p := range f.Policies {
		if p.Max <= 0 || p.Window <= 0 {
			return nil, fmt.Errorf("rate limit policy %q: max and window must be positive", action)
		}
	}
	return f.Policies, nil
}

// LoadPolicies returns the embedded table, with entries from path (if any)
// overriding it.
func LoadPolicies(path string) (map[string]Policy, error) {
	policies, err := ParsePolicies(defaultPolicies)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return policies, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate limit policies: %w", err)
	}
	override, err := ParsePolicies(data)
	if err != nil {
		return nil, err
	}
	for k, v := range override {
		policies[k] = v
	}
	return policies, nil
}

// Counter atomically increments the attempt count of key within a fixed
// window and returns the new count and the window start.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error)
}

// Limiter applies the policy table to a Counter.
type Limiter struct {
	policies map[string]Policy
	counter  Counter
	now      func() time.Time
}

func NewLimiter(policies map[string]Policy, counter Counter) *Limiter {
	return &Limiter{policies: policies, counter: counter, now: time.Now}
}

// Allow counts one attempt for (action, ip). It returns a RateLimited error
// once the budget is spent. Counter failures let the request through.
func (l *Limiter) Allow(ctx context.Context, action, ip string) error {
	p, ok := l.policies[action]
	if !ok {
		return nil
	}
	now := l.now()
	count, windowStart, err := l.counter.Incr(ctx, action+"|"+ip, p.Window, now)
	if err != nil {
		logger.Step(ctx, "ratelimit.incr").Warn("rate limit store unavailable, allowing request",
			"action", action, "ip", ip, "error", err)
		return nil
	}
	if count > p.Max {
		retry := windowStart.Add(p.Window).Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		return &apperr.Error{
			Kind:       apperr.RateLimited,
			Message:    fmt.Sprintf("Trop de tentatives, réessayez dans %s.", humanWait(retry)),
			RetryAfter: retry,
		}
	}
	return nil
}

func humanWait(d time.Duration) string {
	if d >= time.Minute {
		return fmt.Sprintf("%d minutes", int((d+time.Minute-1)/time.Minute))
	}
	return fmt.Sprintf("%d secondes", int((d+time.Second-1)/time.Second))
}

// GormCounter keeps counters in the rate_limit_counters table.
type GormCounter struct {
	db *gorm.DB
}

func NewGormCounter(db *gorm.DB) *GormCounter {
	return &GormCounter{db: db}
}

func (g *GormCounter) Incr(ctx context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	var row models.RateLimitCounter
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// First hit for the key inserts an empty window, concurrent first hits collapse.
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.RateLimitCounter{Bucket: key, WindowStart: now}).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("bucket = ?", key).Take(&row).Error; err != nil {
			return err
		}

		if now.Sub(row.WindowStart) >= window {
			row.WindowStart = now
			row.Count = 0
		}
		row.Count++
		return tx.Model(&models.RateLimitCounter{}).
			Where("bucket = ?", key).
			Updates(map[string]any{"window_start": row.WindowStart, "count": row.Count}).Error
	})
	if err != nil {
		return 0, time.Time{}, err
	}
	return row.Count, row.WindowStart, nil
}

// MemoryCounter is a process-local counter for single-instance setups and tests.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*memWindow
}

type memWindow struct {
	start time.Time
	count int
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{windows: make(map[string]*memWindow)}
}

func (m *MemoryCounter) Incr(_ context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || now.Sub(w.start) >= window {
		w = &memWindow{start: now}
		m.windows[key] = w
	}
	w.count++
	return w.count, w.start, nil
}

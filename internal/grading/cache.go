package grading

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/school-system/results-engine/internal/models"
	"golang.org/x/sync/singleflight"
)

// PolicySource loads persisted policy rows.
type PolicySource interface {
	GradingPolicies(ctx context.Context) ([]models.GradingPolicy, error)
}

type policySet struct {
	policies map[models.Curriculum]*Policy
	hashes   map[models.Curriculum]string
	loadedAt time.Time
}

const policiesKey = "policies"

// maxLoadAttempts bounds how often a load re-reads after being invalidated
// mid-flight.
const maxLoadAttempts = 3

// PolicyCache holds the grading policies shared by every request. The whole
// set is swapped atomically, so readers see either the old or the new set.
type PolicyCache struct {
	source  PolicySource
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	current atomic.Pointer[policySet]
	group   singleflight.Group

	// mu orders publishing a loaded set against Invalidate. A load only
	// publishes if no Invalidate happened since it started reading.
	mu  sync.Mutex
	gen uint64
}

func NewPolicyCache(source PolicySource, ttl time.Duration, logger *slog.Logger) *PolicyCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &PolicyCache{
		source: source,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// Get returns the policy for curriculum c, reloading when the set is older
// than the TTL. A failed reload keeps serving the previous set.
func (c *PolicyCache) Get(ctx context.Context, curriculum models.Curriculum) (*Policy, string, error) {
	set := c.current.Load()
	if set == nil || c.expired(set) {
		fresh, err := c.load(ctx)
		switch {
		case err == nil:
			set = fresh
		case set != nil:
			c.logger.Warn("grading policy reload failed, serving cached set", "error", err)
		default:
			return nil, "", err
		}
	}
	p, ok := set.policies[curriculum]
	if !ok {
		return nil, "", fmt.Errorf("%w: no policy for %q", ErrInvalidPolicy, curriculum)
	}
	return p, set.hashes[curriculum], nil
}

// Refresh reloads unconditionally.
func (c *PolicyCache) Refresh(ctx context.Context) error {
	_, err := c.load(ctx)
	return err
}

// Invalidate makes the next Get reload. Loads already in flight are
// detached, so rows they read before the call are never published.
func (c *PolicyCache) Invalidate() {
	c.mu.Lock()
	c.gen++
	if set := c.current.Load(); set != nil {
		stale := *set
		stale.loadedAt = time.Time{}
		c.current.Store(&stale)
	}
	c.mu.Unlock()
	c.group.Forget(policiesKey)
}

func (c *PolicyCache) expired(set *policySet) bool {
	if set.loadedAt.IsZero() {
		return true
	}
	return c.ttl > 0 && c.now().Sub(set.loadedAt) >= c.ttl
}

func (c *PolicyCache) load(ctx context.Context) (*policySet, error) {
	v, err, _ := c.group.Do(policiesKey, func() (interface{}, error) {
		var set *policySet
		for attempt := 1; ; attempt++ {
			c.mu.Lock()
			gen := c.gen
			c.mu.Unlock()

			var err error
			set, err = c.fetch(ctx)
			if err != nil {
				return nil, err
			}

			c.mu.Lock()
			if c.gen == gen {
				c.current.Store(set)
				c.mu.Unlock()
				return set, nil
			}
			c.mu.Unlock()

			if attempt == maxLoadAttempts {
				break
			}
			c.logger.Debug("grading policies invalidated during load, reloading", "attempt", attempt)
		}
		// Still being invalidated: hand the set to this caller only and let
		// the next Get reload.
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*policySet), nil
}

func (c *PolicyCache) fetch(ctx context.Context) (*policySet, error) {
	rows, err := c.source.GradingPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load grading policies: %w", err)
	}
	set := &policySet{
		policies: map[models.Curriculum]*Policy{
			models.CurriculumOLevel: DefaultOLevelPolicy(),
			models.CurriculumALevel: DefaultALevelPolicy(),
		},
		hashes:   make(map[models.Curriculum]string, 2),
		loadedAt: c.now(),
	}
	for _, row := range rows {
		p, err := DecodePolicy(row)
		if err != nil {
			return nil, fmt.Errorf("grading policy %s: %w", row.Curriculum, err)
		}
		set.policies[p.Curriculum] = p
	}
	for curriculum, p := range set.policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		set.hashes[curriculum] = RuleVersionHash(p)
	}
	return set, nil
}

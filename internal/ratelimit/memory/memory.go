package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AlexKimmel/GateQL/internal/ratelimit"
)

type counter struct {
	mu     sync.Mutex
	count  int
	start  time.Time
	window time.Duration
	dead   bool // removed by Sweep; callers must reload
}

func (c *counter) live(now time.Time) bool {
	return c.count > 0 && now.Before(c.start.Add(c.window))
}

func (c *counter) hit(window time.Duration, now time.Time) int {
	if !c.live(now) {
		c.count, c.start, c.window = 0, now, window
	}
	c.count++
	return c.count
}

func (c *counter) record() ratelimit.Record {
	return ratelimit.Record{Count: c.count, Start: c.start, Window: c.window}
}

// Store is an in-process ratelimit.Store. Expired counters are ignored on
// read and reset on write; Sweep drops them from memory.
type Store struct {
	counters sync.Map // string -> *counter
}

var _ ratelimit.Store = (*Store)(nil)

func New() *Store {
	return &Store{}
}

func (s *Store) Close() error { return nil }

func (s *Store) Get(_ context.Context, key ratelimit.Key, now time.Time) (ratelimit.Record, bool, error) {
	v, ok := s.counters.Load(key.String())
	if !ok {
		return ratelimit.Record{}, false, nil
	}
	c := v.(*counter)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead || !c.live(now) {
		return ratelimit.Record{}, false, nil
	}
	return c.record(), true, nil
}

func (s *Store) Increment(_ context.Context, key ratelimit.Key, window time.Duration, now time.Time) (int, error) {
	for {
		c := s.load(key.String())
		c.mu.Lock()
		if c.dead {
			c.mu.Unlock()
			continue
		}
		n := c.hit(window, now)
		c.mu.Unlock()
		return n, nil
	}
}

func (s *Store) Admit(_ context.Context, limits []ratelimit.Limit, now time.Time) (ratelimit.Admission, error) {
	keys := make([]string, len(limits))
	for i, l := range limits {
		keys[i] = l.Key.String()
	}
	// lock in key order so overlapping admissions cannot deadlock
	order := make([]int, len(limits))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return keys[order[a]] < keys[order[b]] })

	for {
		cs := make([]*counter, len(limits))
		for _, i := range order {
			cs[i] = s.load(keys[i])
			cs[i].mu.Lock()
		}
		unlock := func() {
			for _, c := range cs {
				c.mu.Unlock()
			}
		}

		retry := false
		for _, c := range cs {
			if c.dead {
				retry = true
				break
			}
		}
		if retry {
			unlock()
			continue
		}

		for i, l := range limits {
			if cs[i].live(now) && cs[i].count >= l.Rate {
				adm := ratelimit.Admission{Denied: i, Record: cs[i].record()}
				unlock()
				return adm, nil
			}
		}
		for i, l := range limits {
			cs[i].hit(l.Window, now)
		}
		unlock()
		return ratelimit.Admission{Allowed: true}, nil
	}
}

// Sweep removes counters whose window has elapsed at now and returns how
// many were dropped.
func (s *Store) Sweep(now time.Time) int {
	n := 0
	s.counters.Range(func(k, v any) bool {
		c := v.(*counter)
		c.mu.Lock()
		if !c.dead && !c.live(now) && s.counters.CompareAndDelete(k, c) {
			c.dead = true
			n++
		}
		c.mu.Unlock()
		return true
	})
	return n
}

// StartJanitor sweeps every interval until ctx is done.
func (s *Store) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				s.Sweep(now)
			}
		}
	}()
}

func (s *Store) load(key string) *counter {
	if v, ok := s.counters.Load(key); ok {
		return v.(*counter)
	}
	v, _ := s.counters.LoadOrStore(key, &counter{})
	return v.(*counter)
}

package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jaminalder/codex-greed/internal/domain"
)

// ErrTwiceInARow rejects a player who tries to answer their own pending play.
var ErrTwiceInARow = errors.New("can't go twice in a row")

// Arbiter pairs consecutive plays in a channel. Calls for one channel are
// serialized; different channels never wait on each other.
type Arbiter struct {
	store Store
	now   func() time.Time
	locks *channelLocks
}

// NewArbiter returns an Arbiter backed by store. A nil store gets a MemoryStore.
func NewArbiter(store Store) *Arbiter {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Arbiter{store: store, now: time.Now, locks: newChannelLocks()}
}

// CanPlay reports whether player may play in channel now.
func (a *Arbiter) CanPlay(ctx context.Context, channel, player string) (bool, error) {
	unlock := a.locks.lock(channel)
	defer unlock()
	return a.canPlayLocked(ctx, channel, player)
}

// RecordPlay stores the first play of a pairing and returns nil, or resolves
// the pending play against this one, clears it and returns the outcome.
func (a *Arbiter) RecordPlay(ctx context.Context, channel, player string, score int) (*domain.Pairing, error) {
	unlock := a.locks.lock(channel)
	defer unlock()
	return a.recordPlayLocked(ctx, channel, player, score)
}

// Turn runs eligibility check, scoring and recording as one critical section.
// score is not called when the player is rejected.
func (a *Arbiter) Turn(ctx context.Context, channel, player string, score func() (int, error)) (*domain.Pairing, error) {
	unlock := a.locks.lock(channel)
	defer unlock()

	ok, err := a.canPlayLocked(ctx, channel, player)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTwiceInARow
	}
	points, err := score()
	if err != nil {
		return nil, err
	}
	return a.recordPlayLocked(ctx, channel, player, points)
}

// Pending returns the play a channel is waiting on, if any.
func (a *Arbiter) Pending(ctx context.Context, channel string) (domain.PlayRecord, bool, error) {
	unlock := a.locks.lock(channel)
	defer unlock()
	rec, ok, err := a.store.Get(ctx, channel)
	if err != nil {
		return domain.PlayRecord{}, false, fmt.Errorf("load pending play: %w", err)
	}
	return rec, ok, nil
}

func (a *Arbiter) canPlayLocked(ctx context.Context, channel, player string) (bool, error) {
	rec, ok, err := a.store.Get(ctx, channel)
	if err != nil {
		return false, fmt.Errorf("load pending play: %w", err)
	}
	return !ok || rec.Player != player, nil
}

func (a *Arbiter) recordPlayLocked(ctx context.Context, channel, player string, score int) (*domain.Pairing, error) {
	prev, ok, err := a.store.Get(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("load pending play: %w", err)
	}
	if !ok {
		rec := domain.PlayRecord{Player: player, Score: score, When: a.now()}
		if err := a.store.Put(ctx, channel, rec); err != nil {
			return nil, fmt.Errorf("store play: %w", err)
		}
		return nil, nil
	}
	if err := a.store.Delete(ctx, channel); err != nil {
		return nil, fmt.Errorf("clear pending play: %w", err)
	}
	p := domain.Resolve(prev, player, score)
	return &p, nil
}

// channelLocks hands out one mutex per channel and forgets it once unused.
type channelLocks struct {
	mu    sync.Mutex
	locks map[string]*channelLock
}

type channelLock struct {
	mu   sync.Mutex
	refs int
}

func newChannelLocks() *channelLocks {
	return &channelLocks{locks: make(map[string]*channelLock)}
}

func (c *channelLocks) lock(channel string) (unlock func()) {
	c.mu.Lock()
	l, ok := c.locks[channel]
	if !ok {
		l = &channelLock{}
		c.locks[channel] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, channel)
		}
		c.mu.Unlock()
	}
}

func (c *channelLocks) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jaminalder/codex-greed/internal/domain"
)

// PlayResult is what one play request produced.
type PlayResult struct {
	ID       string
	Channel  string // empty for private plays
	Player   string
	Result   domain.Result
	Pairing  *domain.Pairing // set when this play resolved a pairing
	Rejected bool
	At       time.Time
}

// Messages renders the replies for the chat side, in order.
func (p PlayResult) Messages() []string {
	if p.Rejected {
		return []string{fmt.Sprintf("Oh you, %s! You can't go twice in a row!", p.Player)}
	}
	groups := make([]string, len(p.Result.Groups))
	for i, g := range p.Result.Groups {
		groups[i] = g.String()
	}
	out := []string{fmt.Sprintf("you rolled (%s) for %d points (%s)",
		p.Result.Roll, p.Result.Total, strings.Join(groups, ", "))}
	if p.Pairing != nil {
		if p.Pairing.Tie {
			out = append(out, "No winner")
		} else {
			out = append(out, fmt.Sprintf("%s wins!", p.Pairing.Winner))
		}
	}
	return out
}

type subscriber struct {
	ch        chan []byte
	closeOnce sync.Once
}

func (s *subscriber) close() { s.closeOnce.Do(func() { close(s.ch) }) }

// Service rolls dice for play requests and arbitrates channel pairings.
type Service struct {
	arbiter *Arbiter
	dice    domain.Source
	log     logrus.FieldLogger
	newID   func() string

	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	render func(PlayResult) []byte
}

// Option configures a Service.
type Option func(*Service)

// WithStore sets the pending-play store.
func WithStore(st Store) Option { return func(s *Service) { s.arbiter = NewArbiter(st) } }

// WithSource sets the dice source.
func WithSource(src domain.Source) Option { return func(s *Service) { s.dice = src } }

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(s *Service) { s.log = l } }

// WithRenderer sets how results are encoded for subscribers.
func WithRenderer(r func(PlayResult) []byte) Option { return func(s *Service) { s.render = r } }

// NewService creates a service with an in-memory store and the default dice.
func NewService(opts ...Option) *Service {
	s := &Service{
		dice:  domain.DefaultSource,
		log:   logrus.StandardLogger(),
		newID: newPlayID,
		subs:  make(map[string]map[*subscriber]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.arbiter == nil {
		s.arbiter = NewArbiter(nil)
	}
	if s.render == nil {
		s.render = func(p PlayResult) []byte { return []byte(strings.Join(p.Messages(), "\n")) }
	}
	return s
}

// SetRenderer replaces the broadcast renderer function.
func (s *Service) SetRenderer(renderer func(PlayResult) []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if renderer == nil {
		renderer = func(PlayResult) []byte { return nil }
	}
	s.render = renderer
}

// Play rolls for player. Plays in a channel go through the arbiter; an empty
// channel is a private play with no turn tracking. A turn-order rejection is
// returned as a Rejected result, not an error.
func (s *Service) Play(ctx context.Context, channel, player string) (*PlayResult, error) {
	pr := &PlayResult{ID: s.newID(), Channel: channel, Player: player, At: time.Now()}
	log := s.log.WithFields(logrus.Fields{"play_id": pr.ID, "channel": channel, "player": player})

	roll := func() (int, error) {
		res, err := domain.Score(domain.RollDice(s.dice))
		if err != nil {
			return 0, err
		}
		pr.Result = res
		return res.Total, nil
	}

	if channel == "" {
		if _, err := roll(); err != nil {
			return nil, err
		}
		log.WithField("score", pr.Result.Total).Debug("private roll")
		return pr, nil
	}

	pairing, err := s.arbiter.Turn(ctx, channel, player, roll)
	switch {
	case errors.Is(err, ErrTwiceInARow):
		pr.Rejected = true
		log.Info("rejected: twice in a row")
		return pr, nil
	case err != nil:
		log.WithError(err).Error("play failed")
		return nil, err
	}
	pr.Pairing = pairing

	fields := logrus.Fields{"score": pr.Result.Total}
	if pairing != nil {
		fields["tie"] = pairing.Tie
		fields["winner"] = pairing.Winner
	}
	log.WithFields(fields).Info("roll")

	s.broadcast(channel, *pr)
	return pr, nil
}

// Pending returns the play channel is waiting on.
func (s *Service) Pending(ctx context.Context, channel string) (domain.PlayRecord, bool, error) {
	return s.arbiter.Pending(ctx, channel)
}

// broadcast sends pr to the channel's subscribers. Sends and closes happen
// under s.mu so a subscriber is never closed mid-send.
func (s *Service) broadcast(channel string, pr PlayResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.subs[channel]
	if len(set) == 0 {
		return
	}
	payload := s.render(pr)

	// Fan-out; drop slow subscribers.
	dropped := 0
	for sub := range set {
		select {
		case sub.ch <- payload:
		default:
			delete(set, sub)
			sub.close()
			dropped++
		}
	}
	if len(set) == 0 {
		delete(s.subs, channel)
	}
	if dropped > 0 {
		s.log.WithFields(logrus.Fields{"channel": channel, "dropped": dropped}).Warn("dropped slow subscribers")
	}
}

// Subscribe registers a watcher for a channel's plays. Returns a channel and
// an unsubscribe func; cancelling ctx also unsubscribes.
func (s *Service) Subscribe(ctx context.Context, channel string) (<-chan []byte, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.subs[channel]
	if set == nil {
		set = make(map[*subscriber]struct{})
		s.subs[channel] = set
	}
	sub := &subscriber{ch: make(chan []byte, 1)}
	set[sub] = struct{}{}

	done := make(chan struct{})
	unsubOnce := &sync.Once{}
	unsub := func() {
		unsubOnce.Do(func() {
			close(done)
			s.mu.Lock()
			defer s.mu.Unlock()
			if set, ok := s.subs[channel]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(s.subs, channel)
				}
			}
			sub.close()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			unsub()
		case <-done:
		}
	}()
	return sub.ch, unsub
}

func (s *Service) subscriberCount(channel string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[channel])
}

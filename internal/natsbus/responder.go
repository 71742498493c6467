// Package natsbus serves play requests from the chat side over NATS
// request/reply.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/jaminalder/codex-greed/internal/app"
	"github.com/jaminalder/codex-greed/internal/config"
)

// PlayRequest is the inbound payload. An empty Channel is a private play.
type PlayRequest struct {
	Channel string `json:"channel"`
	Player  string `json:"player"`
}

// PlayReply is sent back to the requester.
type PlayReply struct {
	ID       string   `json:"id,omitempty"`
	Messages []string `json:"messages,omitempty"`
	Rejected bool     `json:"rejected,omitempty"`
	Score    int      `json:"score"`
	Error    string   `json:"error,omitempty"`
}

// Outcome is published on <results_prefix>.<channel> when a pairing resolves.
type Outcome struct {
	Channel string    `json:"channel"`
	Tie     bool      `json:"tie"`
	Winner  string    `json:"winner,omitempty"`
	At      time.Time `json:"at"`
}

var errBadRequest = errors.New("bad play request")

// Player is the part of app.Service the responder needs.
type Player interface {
	Play(ctx context.Context, channel, player string) (*app.PlayResult, error)
}

// Responder answers play requests.
type Responder struct {
	nc      *nats.Conn
	svc     Player
	cfg     config.NATSConfig
	log     logrus.FieldLogger
	timeout time.Duration
	sub     *nats.Subscription
}

// Connect dials NATS with reconnect handling that logs through log.
func Connect(cfg config.NATSConfig, log logrus.FieldLogger) (*nats.Conn, error) {
	return nats.Connect(cfg.URL,
		nats.Name("greed"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.WithError(err).Warn("disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("reconnected to NATS")
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Info("NATS connection closed")
		}),
		nats.Timeout(10*time.Second),
	)
}

// NewResponder serves plays from nc on cfg.Subject through svc.
func NewResponder(nc *nats.Conn, svc Player, cfg config.NATSConfig, log logrus.FieldLogger) *Responder {
	return &Responder{nc: nc, svc: svc, cfg: cfg, log: log, timeout: 5 * time.Second}
}

// Start subscribes on the play subject within the configured queue group.
func (r *Responder) Start() error {
	sub, err := r.nc.QueueSubscribe(r.cfg.Subject, r.cfg.Queue, r.onMsg)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", r.cfg.Subject, err)
	}
	r.sub = sub
	if err := r.nc.Flush(); err != nil {
		return fmt.Errorf("flush subscription: %w", err)
	}
	r.log.WithFields(logrus.Fields{"subject": r.cfg.Subject, "queue": r.cfg.Queue}).Info("listening for plays")
	return nil
}

// Stop drains the subscription.
func (r *Responder) Stop() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Drain()
}

func (r *Responder) onMsg(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	reply, res := r.handle(ctx, msg.Data)
	b, err := json.Marshal(reply)
	if err != nil {
		r.log.WithError(err).Error("encode reply")
		return
	}
	if msg.Reply != "" {
		if err := msg.Respond(b); err != nil {
			r.log.WithError(err).Warn("respond")
		}
	}
	if res != nil && res.Pairing != nil {
		r.publishOutcome(res)
	}
}

// handle turns a request payload into a reply. The play result is returned
// alongside so the caller can publish outcomes.
func (r *Responder) handle(ctx context.Context, data []byte) (PlayReply, *app.PlayResult) {
	var req PlayRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return PlayReply{Error: fmt.Errorf("%w: %v", errBadRequest, err).Error()}, nil
	}
	req.Channel = strings.TrimSpace(req.Channel)
	req.Player = strings.TrimSpace(req.Player)
	if req.Player == "" {
		return PlayReply{Error: fmt.Errorf("%w: player is required", errBadRequest).Error()}, nil
	}

	res, err := r.svc.Play(ctx, req.Channel, req.Player)
	if err != nil {
		r.log.WithError(err).WithField("channel", req.Channel).Error("play failed")
		return PlayReply{Error: err.Error()}, nil
	}
	return PlayReply{
		ID:       res.ID,
		Messages: res.Messages(),
		Rejected: res.Rejected,
		Score:    res.Result.Total,
	}, res
}

func (r *Responder) outcomeSubject(channel string) string {
	return r.cfg.ResultsPrefix + "." + subjectToken(channel)
}

func (r *Responder) publishOutcome(res *app.PlayResult) {
	b, err := json.Marshal(Outcome{
		Channel: res.Channel,
		Tie:     res.Pairing.Tie,
		Winner:  res.Pairing.Winner,
		At:      res.At,
	})
	if err != nil {
		r.log.WithError(err).Error("encode outcome")
		return
	}
	if err := r.nc.Publish(r.outcomeSubject(res.Channel), b); err != nil {
		r.log.WithError(err).Warn("publish outcome")
	}
}

// subjectToken makes a channel name safe as a single subject token. Subject
// metacharacters, whitespace and '%' itself are percent-encoded, so distinct
// channels always get distinct subjects.
func subjectToken(channel string) string {
	var b strings.Builder
	for _, c := range channel {
		if c == '%' || c == '.' || c == '*' || c == '>' || unicode.IsSpace(c) || unicode.IsControl(c) {
			var buf [utf8.UTFMax]byte
			n := utf8.EncodeRune(buf[:], c)
			for _, x := range buf[:n] {
				fmt.Fprintf(&b, "%%%02X", x)
			}
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

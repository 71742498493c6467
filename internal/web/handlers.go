package web

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/jaminalder/codex-greed/internal/app"
)

type handlers struct {
	svc *app.Service
	tpl *templates
	log logrus.FieldLogger
}

func (h *handlers) renderResult(pr app.PlayResult) []byte {
	data := struct {
		Rejected bool
		Messages []string
	}{Rejected: pr.Rejected, Messages: pr.Messages()}
	return renderTemplate(h.tpl.result, "", data)
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(renderTemplate(h.tpl.index, "", nil))
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

func channelParam(r *http.Request) string {
	raw := chi.URLParam(r, "channel")
	if ch, err := url.PathUnescape(raw); err == nil {
		return ch
	}
	return raw
}

func (h *handlers) view(w http.ResponseWriter, r *http.Request) {
	data := struct{ Channel string }{Channel: channelParam(r)}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(renderTemplate(h.tpl.channel, "", data))
}

func (h *handlers) rollPrivate(w http.ResponseWriter, r *http.Request) {
	h.roll(w, r, "")
}

func (h *handlers) rollChannel(w http.ResponseWriter, r *http.Request) {
	h.roll(w, r, channelParam(r))
}

func (h *handlers) roll(w http.ResponseWriter, r *http.Request, channel string) {
	_ = r.ParseForm()
	player := playerID(w, r)
	pr, err := h.svc.Play(r.Context(), channel, player)
	if err != nil {
		h.log.WithError(err).WithField("channel", channel).Warn("roll failed")
		http.Error(w, "failed to roll", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if pr.Rejected {
		w.WriteHeader(http.StatusConflict)
	}
	_, _ = w.Write(h.renderResult(*pr))
}

var heartbeatInterval = 15 * time.Second

func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	channel := channelParam(r)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	// Non-EventSource requests only get the headers.
	if r.Header.Get("Accept") != "text/event-stream" {
		w.WriteHeader(http.StatusOK)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	ctx := r.Context()
	ch, unsub := h.svc.Subscribe(ctx, channel)
	defer unsub()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	flusher.Flush()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			flusher.Flush()
		case b, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, "play", b)
			flusher.Flush()
		}
	}
}

// writeEvent emits one SSE event; multi-line payloads become several data lines.
func writeEvent(w io.Writer, event string, payload []byte) {
	_, _ = fmt.Fprintf(w, "event: %s\n", event)
	for _, line := range bytes.Split(payload, []byte("\n")) {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = io.WriteString(w, "\n")
}

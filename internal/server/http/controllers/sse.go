package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/robindai518/libiec61850/internal/eventlog"
	logpkg "github.com/robindai518/libiec61850/pkg/log"
)

const (
	tailPoll      = time.Second
	wsWriteWindow = 5 * time.Second
)

// entrySink receives tailed entries.
type entrySink interface {
	Send(e entryView) error
	Flush() error
}

// sseSink formats entries as Server-Sent Events data frames.
type sseSink struct {
	w http.ResponseWriter
}

func (s sseSink) Send(e entryView) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	_, err = s.w.Write([]byte("\n\n"))
	return err
}

func (s sseSink) Flush() error {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// wsSink writes one JSON text message per entry.
type wsSink struct {
	conn *websocket.Conn
}

func (s wsSink) Send(e entryView) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWindow))
	return s.conn.WriteJSON(e)
}

func (s wsSink) Flush() error { return nil }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// tailStart returns the first sequence to stream: the from parameter, or the
// next sequence to be appended when absent.
func tailStart(r *http.Request, l *eventlog.Store) (uint64, error) {
	if v := r.URL.Query().Get("from"); v != "" {
		return parseUint(v)
	}
	return l.Stats().LastSeq + 1, nil
}

// tail streams entries from next onwards until ctx ends or the log closes.
func tail(ctx context.Context, l *eventlog.Store, next uint64, filter celFilter, sink entrySink) error {
	for {
		cur, err := l.Query(next, 0)
		if err != nil {
			return err
		}
		sent := false
		for cur.Next() {
			e := cur.Entry()
			next = e.SequenceID + 1
			if !filter.Match(e) {
				continue
			}
			if err := sink.Send(viewOf(e)); err != nil {
				cur.Close()
				return err
			}
			sent = true
		}
		if err := cur.Err(); err != nil {
			return err
		}
		if sent {
			if err := sink.Flush(); err != nil {
				return err
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		l.WaitForAppend(tailPoll)
		if ctx.Err() != nil {
			return nil
		}
	}
}

// handleTailSSE streams new entries as Server-Sent Events.
func (c *LogsController) handleTailSSE(w http.ResponseWriter, r *http.Request) {
	l, err := c.store(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	from, err := tailStart(r, l)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from")
		return
	}
	filter, err := newCELFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid filter: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := tail(r.Context(), l, from, filter, sseSink{w: w}); err != nil {
		c.log.Debug("sse tail ended", logpkg.Str("log", l.Name()), logpkg.Err(err))
	}
}

// handleTailWS streams new entries over a WebSocket. Messages from the client
// are ignored; a read error ends the stream.
func (c *LogsController) handleTailWS(w http.ResponseWriter, r *http.Request) {
	l, err := c.store(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	from, err := tailStart(r, l)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from")
		return
	}
	filter, err := newCELFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid filter: "+err.Error())
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	code, reason := websocket.CloseNormalClosure, ""
	if err := tail(ctx, l, from, filter, wsSink{conn: conn}); err != nil {
		code, reason = websocket.CloseGoingAway, "tail ended"
		c.log.Debug("websocket tail ended", logpkg.Str("log", l.Name()), logpkg.Err(err))
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

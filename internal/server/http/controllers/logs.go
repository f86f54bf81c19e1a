package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robindai518/libiec61850/internal/eventlog"
	"github.com/robindai518/libiec61850/internal/runtime"
	logpkg "github.com/robindai518/libiec61850/pkg/log"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 10000
	maxWait           = 30 * time.Second
)

// LogsController exposes the bound event logs.
type LogsController struct {
	rt  *runtime.Runtime
	log logpkg.Logger
}

// NewLogsController creates a new logs controller.
func NewLogsController(rt *runtime.Runtime, logger logpkg.Logger) *LogsController {
	return &LogsController{rt: rt, log: logger}
}

// RegisterRoutes registers log routes. {name} is the log reference with '/'
// escaped as %2F.
func (c *LogsController) RegisterRoutes(r chi.Router) {
	r.Get("/v1/logs", c.handleList)
	r.Route("/v1/logs/{name}", func(r chi.Router) {
		r.Get("/", c.handleStats)
		r.Get("/entries", c.handleQuery)
		r.Post("/entries", c.handleAppend)
		r.Delete("/entries", c.handlePurge)
		r.Put("/max-entries", c.handleMaxEntries)
		r.Get("/tail", c.handleTailWS)
		r.Get("/events", c.handleTailSSE)
	})
}

func (c *LogsController) store(r *http.Request) (*eventlog.Store, error) {
	name := logName(r)
	l, ok := c.rt.Log(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownLog, name)
	}
	return l, nil
}

// handleList returns the stats of every bound log.
func (c *LogsController) handleList(w http.ResponseWriter, r *http.Request) {
	stores := c.rt.Logs()
	resp := listResp{Logs: make([]eventlog.Stats, 0, len(stores))}
	for _, l := range stores {
		resp.Logs = append(resp.Logs, l.Stats())
	}
	writeJSON(w, resp)
}

func (c *LogsController) handleStats(w http.ResponseWriter, r *http.Request) {
	l, err := c.store(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, l.Stats())
}

// handleQuery returns entries in [from, to]. Parameters: from, to (0 = newest),
// limit, filter (CEL), wait_ms (long-poll when nothing matches yet).
func (c *LogsController) handleQuery(w http.ResponseWriter, r *http.Request) {
	l, err := c.store(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	q := r.URL.Query()
	from, err := parseUint(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from")
		return
	}
	to, err := parseUint(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to")
		return
	}
	limit, err := parseLimit(q.Get("limit"), defaultQueryLimit, maxQueryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	waitMs, err := parseUint(q.Get("wait_ms"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid wait_ms")
		return
	}
	filter, err := newCELFilter(q.Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid filter: "+err.Error())
		return
	}

	resp, err := collect(l, from, to, limit, filter)
	if err == nil && len(resp.Entries) == 0 && waitMs > 0 {
		if l.WaitForAppend(waitDuration(waitMs)) {
			resp, err = collect(l, resp.Next, to, limit, filter)
		}
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, resp)
}

// waitDuration converts wait_ms to a timeout capped at maxWait.
func waitDuration(waitMs uint64) time.Duration {
	if waitMs > uint64(maxWait/time.Millisecond) {
		return maxWait
	}
	return time.Duration(waitMs) * time.Millisecond
}

func collect(l *eventlog.Store, from, to uint64, limit int, filter celFilter) (queryResp, error) {
	resp := queryResp{Entries: []entryView{}, Next: max(from, 1)}
	cur, err := l.Query(from, to)
	if err != nil {
		return resp, err
	}
	defer cur.Close()
	for len(resp.Entries) < limit && cur.Next() {
		e := cur.Entry()
		resp.Next = e.SequenceID + 1
		if filter.Match(e) {
			resp.Entries = append(resp.Entries, viewOf(e))
		}
	}
	return resp, cur.Err()
}

func (c *LogsController) handleAppend(w http.ResponseWriter, r *http.Request) {
	l, err := c.store(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var req appendReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	at := time.Now()
	if req.TsMs != 0 {
		at = time.UnixMilli(req.TsMs)
	}
	seq, err := l.Append(r.Context(), req.EntryID, eventlog.NewTimestamp(at, req.Quality), req.Payload)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeStatusJSON(w, http.StatusCreated, appendResp{Seq: seq})
}

func (c *LogsController) handlePurge(w http.ResponseWriter, r *http.Request) {
	l, err := c.store(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := l.Purge(r.Context()); err != nil {
		writeStoreError(w, err)
		return
	}
	c.log.Info("log purged via http", logpkg.Str("log", l.Name()), logpkg.Str("remote", r.RemoteAddr))
	w.WriteHeader(http.StatusNoContent)
}

func (c *LogsController) handleMaxEntries(w http.ResponseWriter, r *http.Request) {
	l, err := c.store(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var req maxEntriesReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := l.SetMaxEntries(r.Context(), req.MaxEntries); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, l.Stats())
}

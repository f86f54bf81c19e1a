package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	cfgpkg "github.com/robindai518/libiec61850/internal/config"
	"github.com/robindai518/libiec61850/internal/datamodel"
	"github.com/robindai518/libiec61850/internal/eventlog"
	"github.com/robindai518/libiec61850/internal/runtime"
	pebblestore "github.com/robindai518/libiec61850/internal/storage/pebble"
	logpkg "github.com/robindai518/libiec61850/pkg/log"
)

const testLog = "GenericIO/LLN0$EventLog"

var escapedLog = url.PathEscape(testLog)

type entry struct {
	Seq     uint64 `json:"seq"`
	EntryID string `json:"entryId"`
	TsMs    int64  `json:"tsMs"`
	Payload []byte `json:"payload"`
}

type queryResult struct {
	Entries []entry `json:"entries"`
	Next    uint64  `json:"next"`
}

func newTestServer(t *testing.T) (*Server, *eventlog.Store) {
	t.Helper()
	rt, err := runtime.Open(runtime.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	l, err := rt.OpenLog(testLog)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text"})
	return New(rt, logger), l
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func appendN(t *testing.T, l *eventlog.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		p, _ := datamodel.EncodePayload("GenericIO/GGIO1.AnIn1.mag.f", datamodel.TypeFloat, float64(i))
		if _, err := l.Append(context.Background(), "GenericIO/GGIO1.AnIn1.mag.f", eventlog.NewTimestamp(time.Unix(1700000000+int64(i), 0), 0), p); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t)
	if w := do(t, s, http.MethodGet, "/v1/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestListAndStats(t *testing.T) {
	s, l := newTestServer(t)
	appendN(t, l, 3)
	w := do(t, s, http.MethodGet, "/v1/logs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status: %d", w.Code)
	}
	var list struct {
		Logs []eventlog.Stats `json:"logs"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Logs) != 1 || list.Logs[0].Name != testLog || list.Logs[0].Count != 3 {
		t.Fatalf("unexpected list: %+v", list)
	}
	w = do(t, s, http.MethodGet, "/v1/logs/"+escapedLog, "")
	if w.Code != http.StatusOK {
		t.Fatalf("stats status: %d body=%s", w.Code, w.Body.String())
	}
	if w := do(t, s, http.MethodGet, "/v1/logs/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown log status: %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/v1/storage", ""); w.Code != http.StatusOK {
		t.Fatalf("storage status: %d", w.Code)
	}
	w = do(t, s, http.MethodGet, "/v1/catalog", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"name":"`+testLog+`"`) {
		t.Fatalf("catalog: %d %s", w.Code, w.Body.String())
	}
}

func TestQueryEntries(t *testing.T) {
	s, l := newTestServer(t)
	appendN(t, l, 8)
	w := do(t, s, http.MethodGet, "/v1/logs/"+escapedLog+"/entries?from=2&to=5&limit=3", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d body=%s", w.Code, w.Body.String())
	}
	var res queryResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Entries) != 3 || res.Entries[0].Seq != 2 || res.Next != 5 {
		t.Fatalf("unexpected page: %+v", res)
	}
	if res.Entries[0].TsMs != 1700000001000 {
		t.Fatalf("tsMs=%d", res.Entries[0].TsMs)
	}

	for _, bad := range []string{"from=x", "limit=0", "filter=seq%20%3E", "wait_ms=-1"} {
		if w := do(t, s, http.MethodGet, "/v1/logs/"+escapedLog+"/entries?"+bad, ""); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d", bad, w.Code)
		}
	}
}

func TestQueryFilter(t *testing.T) {
	s, l := newTestServer(t)
	appendN(t, l, 10)
	filter := url.QueryEscape(`seq % 2 == 0 && change.value >= 4.0`)
	w := do(t, s, http.MethodGet, "/v1/logs/"+escapedLog+"/entries?filter="+filter, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d body=%s", w.Code, w.Body.String())
	}
	var res queryResult
	_ = json.NewDecoder(w.Body).Decode(&res)
	// bound is 10 so all entries are retained; seq n carries value n-1
	var seqs []uint64
	for _, e := range res.Entries {
		seqs = append(seqs, e.Seq)
	}
	if len(seqs) != 3 || seqs[0] != 6 || seqs[2] != 10 {
		t.Fatalf("unexpected filtered seqs: %v", seqs)
	}
}

func TestQueryLongPoll(t *testing.T) {
	s, l := newTestServer(t)
	go func() {
		time.Sleep(50 * time.Millisecond)
		appendN(t, l, 1)
	}()
	start := time.Now()
	w := do(t, s, http.MethodGet, "/v1/logs/"+escapedLog+"/entries?from=1&wait_ms=2000", "")
	var res queryResult
	_ = json.NewDecoder(w.Body).Decode(&res)
	if len(res.Entries) != 1 {
		t.Fatalf("long poll returned %d entries", len(res.Entries))
	}
	if time.Since(start) > 1900*time.Millisecond {
		t.Fatalf("long poll waited for the full timeout")
	}
}

func TestAppendPurgeAndBound(t *testing.T) {
	s, l := newTestServer(t)
	w := do(t, s, http.MethodPost, "/v1/logs/"+escapedLog+"/entries", `{"entryId":"manual","tsMs":1700000000500,"payload":"aGVsbG8="}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("append status: %d body=%s", w.Code, w.Body.String())
	}
	var ar struct {
		Seq uint64 `json:"seq"`
	}
	_ = json.NewDecoder(w.Body).Decode(&ar)
	if ar.Seq != 1 {
		t.Fatalf("seq=%d", ar.Seq)
	}
	got, _ := l.Read(1, 1, 0)
	if len(got) != 1 || string(got[0].Payload) != "hello" || got[0].Timestamp.UnixMilli() != 1700000000500 {
		t.Fatalf("stored entry mismatch: %+v", got)
	}

	appendN(t, l, 5)
	if w := do(t, s, http.MethodPut, "/v1/logs/"+escapedLog+"/max-entries", `{"maxEntries":2}`); w.Code != http.StatusOK {
		t.Fatalf("max entries status: %d", w.Code)
	}
	if l.Count() != 2 {
		t.Fatalf("count=%d after lowering bound", l.Count())
	}
	if w := do(t, s, http.MethodPut, "/v1/logs/"+escapedLog+"/max-entries", `{"maxEntries":0}`); w.Code != http.StatusBadRequest {
		t.Fatalf("zero bound status: %d", w.Code)
	}
	if w := do(t, s, http.MethodDelete, "/v1/logs/"+escapedLog+"/entries", ""); w.Code != http.StatusNoContent {
		t.Fatalf("purge status: %d", w.Code)
	}
	if l.Count() != 0 {
		t.Fatalf("purge left %d entries", l.Count())
	}
}

func TestClosedLogConflicts(t *testing.T) {
	s, l := newTestServer(t)
	_ = l.Close()
	w := do(t, s, http.MethodPost, "/v1/logs/"+escapedLog+"/entries", `{"entryId":"x"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestTailWebSocket(t *testing.T) {
	s, l := newTestServer(t)
	appendN(t, l, 2)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/logs/" + escapedLog + "/tail?from=1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		appendN(t, l, 1)
	}()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for want := uint64(1); want <= 3; want++ {
		var e entry
		if err := conn.ReadJSON(&e); err != nil {
			t.Fatalf("read %d: %v", want, err)
		}
		if e.Seq != want {
			t.Fatalf("got seq %d want %d", e.Seq, want)
		}
	}
}

func TestTailSSE(t *testing.T) {
	s, l := newTestServer(t)
	appendN(t, l, 2)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/logs/"+escapedLog+"/events?from=2", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}
	buf := make([]byte, 4096)
	n, err := resp.Body.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	frame := string(buf[:n])
	if !strings.HasPrefix(frame, "data: ") || !strings.Contains(frame, `"seq":2`) {
		t.Fatalf("unexpected frame %q", frame)
	}
}

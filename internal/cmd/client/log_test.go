package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "github.com/robindai518/libiec61850/internal/config"
	"github.com/robindai518/libiec61850/internal/datamodel"
	"github.com/robindai518/libiec61850/internal/eventlog"
	"github.com/robindai518/libiec61850/internal/runtime"
	grpcserver "github.com/robindai518/libiec61850/internal/server/grpc"
	httpserver "github.com/robindai518/libiec61850/internal/server/http"
	pebblestore "github.com/robindai518/libiec61850/internal/storage/pebble"
	logpkg "github.com/robindai518/libiec61850/pkg/log"
)

const testLog = "GenericIO/LLN0$EventLog"

func startServer(t *testing.T) (*runtime.Runtime, BaseURLFunc) {
	t.Helper()
	rt, err := runtime.Open(runtime.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	if _, err := rt.OpenLog(testLog); err != nil {
		t.Fatalf("open log: %v", err)
	}
	logger := logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	ts := httptest.NewServer(httpserver.New(rt, logger).Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = rt.Close()
	})
	return rt, func() string { return ts.URL }
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestAppendThenQuery(t *testing.T) {
	_, base := startServer(t)

	out, err := execute(t, NewRoot(base), "log", "append", "--name", testLog, "--entry-id", "op-1", "--data", "manual note", "--at", "1700000000000")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !strings.Contains(out, "seq: 1") {
		t.Fatalf("append output: %s", out)
	}

	out, err = execute(t, NewRoot(base), "log", "query", "--name", testLog)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var resp struct {
		Entries []map[string]any `json:"entries"`
		Next    uint64           `json:"next"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(resp.Entries) != 1 || resp.Next != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	e := resp.Entries[0]
	if e["entryId"] != "op-1" || e["payload_text"] != "manual note" {
		t.Fatalf("entry: %v", e)
	}
	if e["time"] != "2023-11-14T22:13:20Z" {
		t.Fatalf("time: %v", e["time"])
	}
}

func TestQueryDecodesModelChanges(t *testing.T) {
	rt, base := startServer(t)
	l, _ := rt.Log(testLog)
	payload, err := datamodel.EncodePayload("GenericIO/GGIO1.SPCSO1.stVal", datamodel.TypeBool, true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := l.Append(context.Background(), "", eventlog.NewTimestamp(time.Now(), 0), payload); err != nil {
		t.Fatalf("append: %v", err)
	}

	out, err := execute(t, NewRoot(base), "log", "query", "--name", testLog, "--filter", `change.ref.endsWith("stVal")`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !strings.Contains(out, `"ref": "GenericIO/GGIO1.SPCSO1.stVal"`) {
		t.Fatalf("expected decoded change, got: %s", out)
	}
}

func TestMaxEntriesAndPurge(t *testing.T) {
	rt, base := startServer(t)
	l, _ := rt.Log(testLog)
	for i := 0; i < 5; i++ {
		if _, err := l.Append(context.Background(), "", eventlog.NewTimestamp(time.Now(), 0), []byte("x")); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if _, err := execute(t, NewRoot(base), "log", "max-entries", "--name", testLog, "--value", "2"); err != nil {
		t.Fatalf("max-entries: %v", err)
	}
	if c := l.Count(); c != 2 {
		t.Fatalf("count after bound: %d", c)
	}

	if _, err := execute(t, NewRoot(base), "log", "purge", "--name", testLog); err == nil {
		t.Fatalf("purge without --confirm should fail")
	}
	if _, err := execute(t, NewRoot(base), "log", "purge", "--name", testLog, "--confirm"); err != nil {
		t.Fatalf("purge: %v", err)
	}
	out, err := execute(t, NewRoot(base), "log", "stats", "--name", testLog)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, `"count": 0`) || !strings.Contains(out, `"lastSeq": 5`) {
		t.Fatalf("stats after purge: %s", out)
	}
}

func TestUnknownLogReportsServerError(t *testing.T) {
	_, base := startServer(t)
	_, err := execute(t, NewRoot(base), "log", "stats", "--name", "nope")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("want 404 error, got %v", err)
	}
}

func TestHealthCommand(t *testing.T) {
	rt, _ := startServer(t)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := grpcserver.New(rt, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.WatchHealth(ctx, time.Second)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Close()
	t.Setenv("LOGSERVER_GRPC", lis.Addr().String())

	var out string
	deadline := time.Now().Add(2 * time.Second)
	for {
		out, err = execute(t, NewHealthCommand())
		if (err == nil && strings.Contains(out, "status: SERVING")) || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil || !strings.Contains(out, "status: SERVING") {
		t.Fatalf("health: %q %v", out, err)
	}
}

package catalog

import (
	"testing"

	pebblestore "github.com/robindai518/libiec61850/internal/storage/pebble"
)

func openDB(t *testing.T) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEnsureIdempotent(t *testing.T) {
	db := openDB(t)
	m1, err := Ensure(db, "GenericIO/LLN0$EventLog")
	if err != nil {
		t.Fatalf("ensure1: %v", err)
	}
	m2, err := Ensure(db, "GenericIO/LLN0$EventLog")
	if err != nil {
		t.Fatalf("ensure2: %v", err)
	}
	if m1 != m2 {
		t.Fatalf("not idempotent: %+v vs %+v", m1, m2)
	}
}

func TestListOrdersByName(t *testing.T) {
	db := openDB(t)
	for _, n := range []string{"b", "a/LLN0$Log", "c"} {
		if _, err := Ensure(db, n); err != nil {
			t.Fatalf("ensure %s: %v", n, err)
		}
	}
	// Keys outside the catalog prefix are ignored.
	if err := db.Set([]byte("logmetaX"), []byte("{}")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := List(db)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 || got[0].Name != "a/LLN0$Log" || got[2].Name != "c" {
		t.Fatalf("list: %+v", got)
	}
}

package datamodel

import (
	"context"
	"strings"

	"github.com/robindai518/libiec61850/internal/eventlog"
)

// Appender is the part of eventlog.Store a log control writes to.
type Appender interface {
	Append(ctx context.Context, entryID string, ts eventlog.Timestamp, payload []byte) (uint64, error)
}

// LogControl routes changes of attributes under its prefixes to one log.
type LogControl struct {
	name     string
	prefixes []string
	store    Appender
}

func (lc *LogControl) records(ref string) bool {
	for _, p := range lc.prefixes {
		if strings.HasPrefix(ref, p) {
			return true
		}
	}
	return false
}

// Name returns the bound log reference.
func (lc *LogControl) Name() string { return lc.name }

// Bind attaches a log to the model. Every later change of an attribute whose
// reference starts with one of prefixes is appended to store.
func (m *Model) Bind(name string, prefixes []string, store Appender) *LogControl {
	lc := &LogControl{name: name, prefixes: append([]string(nil), prefixes...), store: store}
	m.mu.Lock()
	m.controls = append(m.controls, lc)
	m.mu.Unlock()
	return lc
}

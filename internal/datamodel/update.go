package datamodel

import (
	"context"
	"fmt"
	"time"

	"github.com/robindai518/libiec61850/internal/eventlog"
	logpkg "github.com/robindai518/libiec61850/pkg/log"
)

// Tx stages attribute writes inside Model.Update. Writes become visible only
// when the update function returns nil.
type Tx struct {
	m       *Model
	pending map[string]interface{}
	order   []string
}

// Update runs fn with the model lock held. Staged writes are applied
// atomically on success and discarded on error. Each changed attribute that
// a bound log records is appended to that log before the lock is released, so
// log order follows update order.
func (m *Model) Update(ctx context.Context, fn func(tx *Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &Tx{m: m, pending: make(map[string]interface{})}
	if err := fn(tx); err != nil {
		return err
	}
	var changed []*attribute
	for _, ref := range tx.order {
		a := m.attrs[ref]
		v := tx.pending[ref]
		if a.value == v {
			continue
		}
		a.value = v
		changed = append(changed, a)
	}
	for _, a := range changed {
		if a.typ == TypeTimestamp {
			continue
		}
		m.recordLocked(ctx, a)
	}
	return nil
}

func (m *Model) recordLocked(ctx context.Context, a *attribute) {
	var controls []*LogControl
	for _, lc := range m.controls {
		if lc.records(a.ref) {
			controls = append(controls, lc)
		}
	}
	if len(controls) == 0 {
		return
	}
	payload, err := EncodePayload(a.ref, a.typ, a.value)
	if err != nil {
		m.log.Warn("encode payload failed", logpkg.Str("ref", a.ref), logpkg.Err(err))
		return
	}
	ts := m.timestampLocked(a.ref)
	for _, lc := range controls {
		if _, err := lc.store.Append(ctx, a.ref, ts, payload); err != nil {
			// The data model keeps running; the entry is lost for this log only.
			m.log.Error("log append failed", logpkg.Str("log", lc.name), logpkg.Str("ref", a.ref), logpkg.Err(err))
		}
	}
}

// timestampLocked returns the data object's t attribute when it is set,
// otherwise the current time flagged as not synchronized.
func (m *Model) timestampLocked(ref string) eventlog.Timestamp {
	if t, ok := m.attrs[TimeRef(ref)]; ok && t.typ == TypeTimestamp {
		if ts := t.value.(eventlog.Timestamp); ts != (eventlog.Timestamp{}) {
			return ts
		}
	}
	return eventlog.NewTimestamp(time.Now(), eventlog.QualityClockNotSynchronized)
}

func (tx *Tx) attr(ref string, t Type) (*attribute, error) {
	a, ok := tx.m.attrs[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAttribute, ref)
	}
	if a.typ != t {
		return nil, fmt.Errorf("%w: %s is %s, not %s", ErrTypeMismatch, ref, a.typ, t)
	}
	return a, nil
}

func (tx *Tx) get(ref string, t Type) (interface{}, error) {
	a, err := tx.attr(ref, t)
	if err != nil {
		return nil, err
	}
	if v, ok := tx.pending[ref]; ok {
		return v, nil
	}
	return a.value, nil
}

func (tx *Tx) set(ref string, t Type, v interface{}) error {
	if _, err := tx.attr(ref, t); err != nil {
		return err
	}
	if _, staged := tx.pending[ref]; !staged {
		tx.order = append(tx.order, ref)
	}
	tx.pending[ref] = v
	return nil
}

func (tx *Tx) Float(ref string) (float64, error) {
	v, err := tx.get(ref, TypeFloat)
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (tx *Tx) Bool(ref string) (bool, error) {
	v, err := tx.get(ref, TypeBool)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (tx *Tx) Int(ref string) (int64, error) {
	v, err := tx.get(ref, TypeInt)
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (tx *Tx) SetFloat(ref string, v float64) error { return tx.set(ref, TypeFloat, v) }
func (tx *Tx) SetBool(ref string, v bool) error     { return tx.set(ref, TypeBool, v) }
func (tx *Tx) SetInt(ref string, v int64) error     { return tx.set(ref, TypeInt, v) }
func (tx *Tx) SetString(ref string, v string) error { return tx.set(ref, TypeString, v) }

func (tx *Tx) SetTimestamp(ref string, ts eventlog.Timestamp) error {
	return tx.set(ref, TypeTimestamp, ts)
}

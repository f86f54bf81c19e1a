package eventlog

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"
)

func TestRecordRoundTrip(t *testing.T) {
	ts := NewTimestamp(time.Unix(1700000000, 123_000_000), QualityLeapSecondKnown|10)
	val := encodeEntry("LLN0$EventLog", ts, []byte("payload"))
	e, ok := decodeEntry(42, val)
	if !ok {
		t.Fatalf("decode failed")
	}
	if e.SequenceID != 42 || e.EntryID != "LLN0$EventLog" || e.Timestamp != ts || !bytes.Equal(e.Payload, []byte("payload")) {
		t.Fatalf("mismatch: %+v", e)
	}
}

func TestRecordEmptyPayloadAndID(t *testing.T) {
	val := encodeEntry("", Timestamp{}, nil)
	e, ok := decodeEntry(1, val)
	if !ok {
		t.Fatalf("decode failed")
	}
	if e.EntryID != "" || len(e.Payload) != 0 {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestRecordRejectsCorruption(t *testing.T) {
	val := encodeEntry("id", Timestamp{Seconds: 1}, []byte("abc"))
	// flip bytes in the header, payload and checksum; the length varint is byte 0
	for i := 1; i < len(val); i++ {
		bad := append([]byte(nil), val...)
		bad[i] ^= 0xff
		if _, ok := decodeEntry(1, bad); ok {
			t.Fatalf("corruption at byte %d not detected", i)
		}
	}
	if _, ok := DecodeRecord(val[:3]); ok {
		t.Fatalf("truncated record decoded")
	}
}

func TestRecordRejectsOversizedLengths(t *testing.T) {
	cases := map[string][]byte{
		// header length varint close to 2^64
		"header length": {0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01, 0, 0, 0, 0},
		// valid checksum around an entry id length close to 2^64
		"entry id length": EncodeRecord(append(binary.AppendUvarint(nil, 1<<64-1), make([]byte, timestampLen)...), nil),
		// header shorter than the timestamp
		"short header": EncodeRecord([]byte{0x00, 0x01}, nil),
	}
	for name, val := range cases {
		t.Run(name, func(t *testing.T) {
			if _, ok := decodeEntry(1, val); ok {
				t.Fatalf("decoded %x", val)
			}
		})
	}
}

func TestKeysOrderBySequence(t *testing.T) {
	prev := KeyLogEntry("log", 1)
	for _, seq := range []uint64{2, 255, 256, 1 << 32, 1<<64 - 1} {
		k := KeyLogEntry("log", seq)
		if bytes.Compare(prev, k) >= 0 {
			t.Fatalf("key for %d does not sort after previous", seq)
		}
		if got := seqFromKey(k); got != seq {
			t.Fatalf("seqFromKey=%d want %d", got, seq)
		}
		prev = k
	}
}

func TestKeysIsolateLogs(t *testing.T) {
	lowA, highA := entryBounds("a")
	for _, k := range [][]byte{KeyLogEntry("ab", 1), KeyLogEntry("a/e", 1), KeyLogMeta("a"), KeyLogBound("a")} {
		if bytes.Compare(k, lowA) >= 0 && bytes.Compare(k, highA) < 0 {
			t.Fatalf("key %q falls inside entry range of log a", k)
		}
	}
	if k := KeyLogEntry("a", 7); bytes.Compare(k, lowA) < 0 || bytes.Compare(k, highA) >= 0 {
		t.Fatalf("own entry key outside range")
	}
}

func TestTimestampConversion(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 500_000_000, time.UTC)
	ts := NewTimestamp(base, 0)
	if ts.Fraction != 1<<23 {
		t.Fatalf("half second fraction=%#x", ts.Fraction)
	}
	if !ts.Time().Equal(base) {
		t.Fatalf("time=%v want %v", ts.Time(), base)
	}
	if ts.UnixMilli() != base.UnixMilli() {
		t.Fatalf("unix milli mismatch")
	}
	if !ts.Before(base.Add(time.Millisecond)) || ts.Before(base) {
		t.Fatalf("Before misbehaves")
	}
	// sub-resolution detail is truncated, never rounded up
	odd := NewTimestamp(time.Unix(10, 999_999_999), 0)
	if odd.Time().After(time.Unix(10, 999_999_999)) {
		t.Fatalf("truncation rounded up")
	}
}

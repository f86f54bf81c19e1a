package eventlog

import (
	"encoding/binary"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - log/{len_be2}{name}/m             high-water mark (lastSeq, 8B BE)
// - log/{len_be2}{name}/b             retention bound (maxEntries, 8B BE)
// - log/{len_be2}{name}/e/{seq_be8}   entries
//
// The name is length-prefixed so references such as "GenericIO/LLN0$EventLog"
// never produce a key that is a prefix of another log's keys.

var (
	logPrefix   = []byte("log/")
	metaSuffix  = []byte("/m")
	boundSuffix = []byte("/b")
	entrySeg    = []byte("/e/")
)

func appendBE2(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// keyLogPrefix builds log/{len_be2}{name}.
func keyLogPrefix(name string) []byte {
	k := make([]byte, 0, len(logPrefix)+2+len(name)+16)
	k = append(k, logPrefix...)
	k = appendBE2(k, uint16(len(name)))
	k = append(k, name...)
	return k
}

// KeyLogMeta builds the high-water mark key for a log.
func KeyLogMeta(name string) []byte {
	return append(keyLogPrefix(name), metaSuffix...)
}

// KeyLogBound builds the persisted retention bound key for a log.
func KeyLogBound(name string) []byte {
	return append(keyLogPrefix(name), boundSuffix...)
}

// KeyLogEntry builds the entry key with a big-endian sequence for proper ordering.
func KeyLogEntry(name string, seq uint64) []byte {
	k := append(keyLogPrefix(name), entrySeg...)
	return appendBE8(k, seq)
}

// seqFromKey extracts the trailing sequence number of an entry key.
func seqFromKey(k []byte) uint64 {
	return binary.BigEndian.Uint64(k[len(k)-8:])
}

// entryBounds returns [low, high) covering every entry key of a log.
func entryBounds(name string) (low, high []byte) {
	low = KeyLogEntry(name, 0)
	high = append(KeyLogEntry(name, ^uint64(0)), 0x00)
	return low, high
}

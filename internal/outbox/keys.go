package outbox

import "encoding/binary"

// Keyspace, all under outbox/{name}/:
//
//	m                         - lastSeq (8B)
//	msg/{seq}                 - message record
//	rdy/{ready_ms}/{seq}      - available from ready_ms; value = attempts (4B)
//	lse/{expires_ms}/{seq}    - leased until expires_ms; value = attempts (4B)
//	dlq/{seq}                 - dead-lettered message record
//
// Numbers are 8-byte big endian so each index sorts by time, then sequence.
type keyspace struct {
	base []byte
}

func newKeyspace(name string) keyspace {
	return keyspace{base: []byte("outbox/" + name + "/")}
}

func (k keyspace) with(parts ...[]byte) []byte {
	n := len(k.base)
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	out = append(out, k.base...)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func be8(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func (k keyspace) meta() []byte          { return k.with([]byte("m")) }
func (k keyspace) msg(seq uint64) []byte { return k.with([]byte("msg/"), be8(seq)) }
func (k keyspace) dlq(seq uint64) []byte { return k.with([]byte("dlq/"), be8(seq)) }

func (k keyspace) ready(atMs int64, seq uint64) []byte {
	return k.with([]byte("rdy/"), be8(uint64(atMs)), be8(seq))
}

func (k keyspace) lease(expMs int64, seq uint64) []byte {
	return k.with([]byte("lse/"), be8(uint64(expMs)), be8(seq))
}

// span returns [lo, hi) covering every key of one index.
func (k keyspace) span(index string) ([]byte, []byte) {
	lo := k.with([]byte(index + "/"))
	hi := k.with([]byte(index + "0")) // '0' follows '/'
	return lo, hi
}

// parseTimed splits the trailing {ms}{seq} of an rdy or lse key.
func parseTimed(key []byte) (ms int64, seq uint64, ok bool) {
	if len(key) < 16 {
		return 0, 0, false
	}
	t := key[len(key)-16:]
	return int64(binary.BigEndian.Uint64(t[:8])), binary.BigEndian.Uint64(t[8:]), true
}

func parseSeq(key []byte) (uint64, bool) {
	if len(key) < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(key[len(key)-8:]), true
}

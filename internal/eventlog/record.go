package eventlog

import (
	"encoding/binary"
	"hash/crc32"
)

// Record encoding: varint headerLen | header | payload | crc32c(header|payload)
//
// Header encoding: varint len(entryID) | entryID | seconds(4B BE) | fraction(4B BE) | quality(1B)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func EncodeRecord(header, payload []byte) []byte {
	out := make([]byte, 0, 10+len(header)+len(payload)+4)
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(header)))
	out = append(out, tmp[:n]...)
	out = append(out, header...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	out = append(out, crcb[:]...)
	return out
}

type Decoded struct {
	Header  []byte
	Payload []byte
}

func DecodeRecord(b []byte) (Decoded, bool) {
	if len(b) < 1+4 {
		return Decoded{}, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 {
		return Decoded{}, false
	}
	if n > len(b)-4 || hlen > uint64(len(b)-n-4) {
		return Decoded{}, false
	}
	header := b[n : n+int(hlen)]
	payload := b[n+int(hlen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != expect {
		return Decoded{}, false
	}
	return Decoded{Header: append([]byte(nil), header...), Payload: append([]byte(nil), payload...)}, true
}

const timestampLen = 4 + 4 + 1

// encodeHeader serializes the entry id and event timestamp.
func encodeHeader(entryID string, ts Timestamp) []byte {
	out := make([]byte, 0, binary.MaxVarintLen64+len(entryID)+timestampLen)
	out = binary.AppendUvarint(out, uint64(len(entryID)))
	out = append(out, entryID...)
	out = binary.BigEndian.AppendUint32(out, ts.Seconds)
	out = binary.BigEndian.AppendUint32(out, ts.Fraction)
	out = append(out, ts.Quality)
	return out
}

func decodeHeader(h []byte) (string, Timestamp, bool) {
	idLen, n := binary.Uvarint(h)
	if n <= 0 || len(h)-n < timestampLen || idLen != uint64(len(h)-n-timestampLen) {
		return "", Timestamp{}, false
	}
	id := string(h[n : n+int(idLen)])
	rest := h[n+int(idLen):]
	ts := Timestamp{
		Seconds:  binary.BigEndian.Uint32(rest[0:4]),
		Fraction: binary.BigEndian.Uint32(rest[4:8]),
		Quality:  rest[8],
	}
	return id, ts, true
}

// encodeEntry builds the stored value for an entry.
func encodeEntry(entryID string, ts Timestamp, payload []byte) []byte {
	return EncodeRecord(encodeHeader(entryID, ts), payload)
}

// decodeEntry rebuilds an Entry from its key sequence and stored value.
func decodeEntry(seq uint64, val []byte) (Entry, bool) {
	dec, ok := DecodeRecord(val)
	if !ok {
		return Entry{}, false
	}
	id, ts, ok := decodeHeader(dec.Header)
	if !ok {
		return Entry{}, false
	}
	return Entry{SequenceID: seq, EntryID: id, Timestamp: ts, Payload: dec.Payload}, true
}

package controllers

import (
	"github.com/robindai518/libiec61850/internal/catalog"
	"github.com/robindai518/libiec61850/internal/eventlog"
)

// entryView is the JSON form of a log entry.
type entryView struct {
	Seq      uint64 `json:"seq"`
	EntryID  string `json:"entryId"`
	Seconds  uint32 `json:"seconds"`
	Fraction uint32 `json:"fraction"`
	Quality  uint8  `json:"quality"`
	TsMs     int64  `json:"tsMs"`
	Payload  []byte `json:"payload"`
}

func viewOf(e eventlog.Entry) entryView {
	return entryView{
		Seq:      e.SequenceID,
		EntryID:  e.EntryID,
		Seconds:  e.Timestamp.Seconds,
		Fraction: e.Timestamp.Fraction,
		Quality:  e.Timestamp.Quality,
		TsMs:     e.Timestamp.UnixMilli(),
		Payload:  e.Payload,
	}
}

// queryResp is returned by GET /v1/logs/{name}/entries. Next is the sequence
// to pass as from to continue after this page.
type queryResp struct {
	Entries []entryView `json:"entries"`
	Next    uint64      `json:"next"`
}

// appendReq appends one entry. TsMs == 0 means now.
type appendReq struct {
	EntryID string `json:"entryId"`
	TsMs    int64  `json:"tsMs"`
	Quality uint8  `json:"quality"`
	Payload []byte `json:"payload"`
}

type appendResp struct {
	Seq uint64 `json:"seq"`
}

type maxEntriesReq struct {
	MaxEntries int `json:"maxEntries"`
}

type listResp struct {
	Logs []eventlog.Stats `json:"logs"`
}

type catalogResp struct {
	Logs []catalog.Meta `json:"logs"`
}

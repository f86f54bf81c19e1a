package eventlog

// Archiver is an optional hook invoked after retention removes entries
// (bound eviction and age/byte trims, not Purge). It runs with the store's
// write lock held, so implementations must hand the batch off rather than
// perform slow I/O inline. entries covers [minSeq, maxSeq] in order.
type Archiver interface {
	ArchiveEvicted(name string, minSeq, maxSeq uint64, entries []Entry)
}

// ArchiverFunc adapts a function to Archiver.
type ArchiverFunc func(name string, minSeq, maxSeq uint64, entries []Entry)

func (f ArchiverFunc) ArchiveEvicted(name string, minSeq, maxSeq uint64, entries []Entry) {
	f(name, minSeq, maxSeq, entries)
}

type noopArchiver struct{}

func (noopArchiver) ArchiveEvicted(string, uint64, uint64, []Entry) {}

func (l *Store) archiving() bool {
	_, noop := l.archiver.(noopArchiver)
	return !noop
}

package ssdb

const (
	MajorVersion = 1
	MinorVersion = 22
)

type Snapshot interface {
}

type Range struct {
	Start []byte
	Limit []byte
}

// ReplayIterator yields change-data-capture records recorded since a
// timestamp obtained from DB.GetReplayTimestamp: every Put and Delete
// applied to the database at or after that point, in sequence order.
// A Delete surfaces as a record with a nil Value.
type ReplayIterator interface {
	Valid() bool
	Next()
	Key() []byte
	Value() []byte
	Status() error
}

type DB interface {
	Close() error
	Put(options *WriteOptions, key []byte, value []byte) error
	Delete(options *WriteOptions, key []byte) error
	Write(options *WriteOptions, updates WriteBatch) error
	Get(options *ReadOptions, key []byte) ([]byte, error)
	NewIterator(options *ReadOptions) Iterator
	GetSnapshot() Snapshot
	ReleaseSnapshot(snapshot Snapshot)
	GetProperty(property string) (string, bool)
	GetApproximateSizes(r []Range) []uint64
	CompactRange(begin, end []byte)

	GetReplayTimestamp() (string, error)
	AllowGarbageCollectBeforeTimestamp(timestamp string)
	ValidateTimestamp(timestamp string) bool
	CompareTimestamps(lhs, rhs string) int
	GetReplayIterator(timestamp string) (ReplayIterator, error)
	ReleaseReplayIterator(iter ReplayIterator)

	LiveBackup(name string) error
}

func Open() (DB, error) {
	return nil, nil
}

func DestroyDB(name string, options *Options) error {
	return nil
}

func RepairDB(name string, options *Options) error {
	return nil
}

package db

import (
	"bytes"
	"fmt"
	"flsm"
	"flsm/util"
	"testing"
)

func openReplayTestDB(t *testing.T, dbName string) ssdb.DB {
	options := ssdb.NewOptions()
	options.CreateIfMissing = true
	options.WriteBufferSize = 64 << 10
	_ = Destroy(dbName, options)
	d, err := Open(options, dbName)
	util.AssertNotError(err, "open", t)
	return d
}

// TestReplayTimestampOrdering is spec §4.9's CompareTimestamps contract:
// timestamps taken later compare greater, and a timestamp always validates.
func TestReplayTimestampOrdering(t *testing.T) {
	dbName := tmpDir() + "/replay_ordering_test"
	d := openReplayTestDB(t, dbName)
	defer func() {
		_ = d.Close()
		_ = Destroy(dbName, ssdb.NewOptions())
	}()

	ts1, err := d.GetReplayTimestamp()
	util.AssertNotError(err, "GetReplayTimestamp", t)
	util.AssertNotError(d.Put(ssdb.NewWriteOptions(), []byte("a"), []byte("1")), "put", t)
	ts2, err := d.GetReplayTimestamp()
	util.AssertNotError(err, "GetReplayTimestamp", t)

	util.AssertTrue(d.ValidateTimestamp(ts1), "ts1 valid", t)
	util.AssertTrue(d.ValidateTimestamp(ts2), "ts2 valid", t)
	util.AssertFalse(d.ValidateTimestamp("not-a-timestamp"), "garbage invalid", t)
	util.AssertEqual(-1, d.CompareTimestamps(ts1, ts2), "ts1 < ts2", t)
	util.AssertEqual(0, d.CompareTimestamps(ts1, ts1), "ts1 == ts1", t)
}

func drainReplayIterator(it ssdb.ReplayIterator) (keys, values [][]byte) {
	for ; it.Valid(); it.Next() {
		keys = append(keys, append([]byte(nil), it.Key()...))
		if v := it.Value(); v != nil {
			values = append(values, append([]byte(nil), v...))
		} else {
			values = append(values, nil)
		}
	}
	return
}

// TestReplayIteratorWithinSingleLog is spec §8 scenario 6's trivial case:
// everything written after the timestamp is still in the active memtable
// and log, no rotation involved.
func TestReplayIteratorWithinSingleLog(t *testing.T) {
	dbName := tmpDir() + "/replay_single_log_test"
	d := openReplayTestDB(t, dbName)
	defer func() {
		_ = d.Close()
		_ = Destroy(dbName, ssdb.NewOptions())
	}()

	util.AssertNotError(d.Put(ssdb.NewWriteOptions(), []byte("before"), []byte("x")), "put", t)
	ts, err := d.GetReplayTimestamp()
	util.AssertNotError(err, "GetReplayTimestamp", t)

	util.AssertNotError(d.Put(ssdb.NewWriteOptions(), []byte("after1"), []byte("y")), "put", t)
	util.AssertNotError(d.Put(ssdb.NewWriteOptions(), []byte("after2"), []byte("z")), "put", t)
	util.AssertNotError(d.Delete(ssdb.NewWriteOptions(), []byte("after1")), "delete", t)

	it, err := d.GetReplayIterator(ts)
	util.AssertNotError(err, "GetReplayIterator", t)
	keys, values := drainReplayIterator(it)
	d.ReleaseReplayIterator(it)

	util.AssertEqual(3, len(keys), "three records since ts", t)
	util.AssertTrue(bytes.Equal(keys[0], []byte("after1")), "record 0 key", t)
	util.AssertTrue(bytes.Equal(values[0], []byte("y")), "record 0 value", t)
	util.AssertTrue(bytes.Equal(keys[1], []byte("after2")), "record 1 key", t)
	util.AssertTrue(bytes.Equal(keys[2], []byte("after1")), "record 2 key (delete)", t)
	util.AssertTrue(values[2] == nil, "delete carries nil value", t)
}

// TestReplayIteratorAcrossLogRotation is spec §4.9's non-trivial case and
// the regression target for the GetReplayIterator fix: the timestamp is
// taken while one log is active, a memtable flush rotates to a new log
// before GetReplayIterator is called, and the iterator must still find the
// records that were written to the now-sealed log in between.
func TestReplayIteratorAcrossLogRotation(t *testing.T) {
	dbName := tmpDir() + "/replay_rotation_test"
	d := openReplayTestDB(t, dbName)
	defer func() {
		_ = d.Close()
		_ = Destroy(dbName, ssdb.NewOptions())
	}()
	impl := d.(*db)

	ts, err := d.GetReplayTimestamp()
	util.AssertNotError(err, "GetReplayTimestamp", t)

	value := bytes.Repeat([]byte("v"), 100)
	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("rotate%04d", i))
		util.AssertNotError(d.Put(ssdb.NewWriteOptions(), key, value), "put", t)
	}
	// forces the active memtable to flush and the log to roll over, so the
	// records above now live in a sealed log file, not the active one.
	util.AssertNotError(impl.testCompactMemTable(), "testCompactMemTable", t)

	util.AssertNotError(d.Put(ssdb.NewWriteOptions(), []byte("afterRotation"), []byte("w")), "put", t)

	it, err := d.GetReplayIterator(ts)
	util.AssertNotError(err, "GetReplayIterator", t)
	keys, _ := drainReplayIterator(it)
	d.ReleaseReplayIterator(it)

	util.AssertEqual(51, len(keys), "50 pre-rotation + 1 post-rotation record", t)
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		seen[string(k)] = true
	}
	for i := 0; i < 50; i++ {
		util.AssertTrue(seen[fmt.Sprintf("rotate%04d", i)], "sealed-log record present", t)
	}
	util.AssertTrue(seen["afterRotation"], "active-log record present", t)
}

// TestDeleteObsoleteFilesRetainsLogForReplayer checks the retention clause
// deleteObsoleteFiles grows for outstanding replay iterators: a log a
// replayer still needs must not be deleted out from under it.
func TestDeleteObsoleteFilesRetainsLogForReplayer(t *testing.T) {
	dbName := tmpDir() + "/replay_retention_test"
	d := openReplayTestDB(t, dbName)
	defer func() {
		_ = d.Close()
		_ = Destroy(dbName, ssdb.NewOptions())
	}()
	impl := d.(*db)

	ts, err := d.GetReplayTimestamp()
	util.AssertNotError(err, "GetReplayTimestamp", t)

	it, err := d.GetReplayIterator(ts)
	util.AssertNotError(err, "GetReplayIterator", t)

	impl.mutex.Lock()
	oldest, ok := impl.replayers.oldestLogNumber()
	impl.mutex.Unlock()
	util.AssertTrue(ok, "an outstanding replayer has an oldest log number", t)
	util.AssertGreaterThanOrEqual(oldest, uint64(0), "oldest log number", t)

	d.ReleaseReplayIterator(it)
	impl.mutex.Lock()
	_, ok = impl.replayers.oldestLogNumber()
	impl.mutex.Unlock()
	util.AssertFalse(ok, "no outstanding replayers after release", t)
}

// TestAllowGarbageCollectBeforeTimestampReleasesReservation checks the
// other half of retention: GetReplayTimestamp reserves a log the moment
// it's issued (before any iterator exists), and
// AllowGarbageCollectBeforeTimestamp is what releases that reservation.
func TestAllowGarbageCollectBeforeTimestampReleasesReservation(t *testing.T) {
	dbName := tmpDir() + "/replay_gc_test"
	d := openReplayTestDB(t, dbName)
	defer func() {
		_ = d.Close()
		_ = Destroy(dbName, ssdb.NewOptions())
	}()
	impl := d.(*db)

	ts, err := d.GetReplayTimestamp()
	util.AssertNotError(err, "GetReplayTimestamp", t)

	impl.mutex.Lock()
	_, ok := impl.replayTimestamps.oldestLogNumber()
	impl.mutex.Unlock()
	util.AssertTrue(ok, "timestamp reserved a log before any iterator was created", t)

	d.AllowGarbageCollectBeforeTimestamp(ts)

	impl.mutex.Lock()
	_, ok = impl.replayTimestamps.oldestLogNumber()
	impl.mutex.Unlock()
	util.AssertFalse(ok, "reservation released", t)
}

// TestLiveBackup is spec §6's live-backup API: the destination directory
// ends up with a consistent, independently openable copy of the database.
func TestLiveBackup(t *testing.T) {
	dbName := tmpDir() + "/live_backup_src_test"
	backupName := tmpDir() + "/live_backup_dst_test"
	d := openReplayTestDB(t, dbName)
	_ = Destroy(backupName, ssdb.NewOptions())
	defer func() {
		_ = d.Close()
		_ = Destroy(dbName, ssdb.NewOptions())
		_ = Destroy(backupName, ssdb.NewOptions())
	}()

	value := bytes.Repeat([]byte("v"), 100)
	for i := 0; i < 500; i++ {
		key := []byte(fmt.Sprintf("backup%04d", i))
		util.AssertNotError(d.Put(ssdb.NewWriteOptions(), key, value), "put", t)
	}
	impl := d.(*db)
	util.AssertNotError(impl.testCompactMemTable(), "testCompactMemTable", t)

	util.AssertNotError(d.LiveBackup(backupName), "LiveBackup", t)

	backupOptions := ssdb.NewOptions()
	backup, err := Open(backupOptions, backupName)
	util.AssertNotError(err, "open backup", t)
	defer func() { _ = backup.Close() }()

	for i := 0; i < 500; i++ {
		key := []byte(fmt.Sprintf("backup%04d", i))
		v, gerr := backup.Get(ssdb.NewReadOptions(), key)
		util.AssertNotError(gerr, "get from backup", t)
		util.AssertTrue(bytes.Equal(v, value), "backup value matches", t)
	}
}

package db

import (
	"sort"

	"flsm"
	"flsm/table"
)

func buildTable(dbName string, env ssdb.Env, options *ssdb.Options, tableCache *tableCache, iter ssdb.Iterator, meta *fileMetaData) (err error) {
	meta.fileSize = 0
	iter.SeekToFirst()
	fname := tableFileName(dbName, meta.number)
	if iter.Valid() {
		var file ssdb.WritableFile
		if file, err = env.NewWritableFile(fname); err != nil {
			return
		}
		builder := table.NewBuilder(options, file)
		meta.smallest.decodeFrom(iter.Key())
		for ; iter.Valid(); iter.Next() {
			key := iter.Key()
			meta.largest.decodeFrom(key)
			builder.Add(key, iter.Value())
		}

		if err = builder.Finish(); err == nil {
			meta.fileSize = builder.FileSize()
			if meta.fileSize <= 0 {
				panic("builder: meta.fileSize <= 0")
			}
		}
		builder.Finalize()

		if err == nil {
			err = file.Sync()
		}
		if err == nil {
			err = file.Close()
		}
		file.Finalize()
		if err == nil {
			it := tableCache.newIterator(ssdb.NewReadOptions(), meta.number, meta.fileSize, nil)
			err = it.Status()
			it.Finalize()
		}
	}

	if iter.Status() != nil {
		err = iter.Status()
	}
	if err == nil && meta.fileSize > 0 {
	} else {
		_ = env.DeleteFile(fname)
	}
	return
}

// partitionOfUserKey returns the index into guards (sorted ascending) of
// the largest guard <= userKey, or -1 for the sentinel partition.
func partitionOfUserKey(cmp ssdb.Comparator, guards [][]byte, userKey []byte) int {
	return sort.Search(len(guards), func(i int) bool {
		return cmp.Compare(guards[i], userKey) > 0
	}) - 1
}

// buildTableGuards writes iter's internal keys (already sorted ascending)
// to a sequence of SSTables, starting a new file whenever the key crosses
// a boundary in guards (spec §4.2: the flushed range is split at the
// complete guard set known across all levels) or the target file size is
// reached. It mirrors buildTable's single-pass structure but produces
// potentially many outputs instead of one.
func buildTableGuards(dbName string, env ssdb.Env, options *ssdb.Options, tableCache *tableCache,
	iter ssdb.Iterator, guards [][]byte, newFileNumber func() uint64) (metas []*fileMetaData, err error) {

	iter.SeekToFirst()
	if !iter.Valid() {
		return nil, iter.Status()
	}

	var (
		file       ssdb.WritableFile
		builder    ssdb.TableBuilder
		meta       *fileMetaData
		curPartIdx = -2
		fname      string
	)

	finish := func() error {
		if builder == nil {
			return nil
		}
		ferr := builder.Finish()
		if ferr == nil {
			meta.fileSize = builder.FileSize()
		}
		builder.Finalize()
		if ferr == nil {
			ferr = file.Sync()
		}
		if ferr == nil {
			ferr = file.Close()
		}
		file.Finalize()
		if ferr == nil && meta.fileSize > 0 {
			it := tableCache.newIterator(ssdb.NewReadOptions(), meta.number, meta.fileSize, nil)
			ferr = it.Status()
			it.Finalize()
		}
		if ferr == nil && meta.fileSize > 0 {
			metas = append(metas, meta)
		} else {
			_ = env.DeleteFile(fname)
		}
		builder = nil
		return ferr
	}

	maxSize := uint64(maxFileSizeForLevel(options, 0))

	for ; iter.Valid(); iter.Next() {
		key := iter.Key()
		userKey := extractUserKey(key)
		partIdx := partitionOfUserKey(options.Comparator, guards, userKey)
		if builder != nil && (partIdx != curPartIdx || meta.fileSize >= maxSize) {
			if err = finish(); err != nil {
				break
			}
		}
		if builder == nil {
			curPartIdx = partIdx
			meta = newFileMetaData()
			meta.number = newFileNumber()
			fname = tableFileName(dbName, meta.number)
			if file, err = env.NewWritableFile(fname); err != nil {
				break
			}
			builder = table.NewBuilder(options, file)
			meta.smallest.decodeFrom(key)
		}
		meta.largest.decodeFrom(key)
		builder.Add(key, iter.Value())
		meta.fileSize = uint64(builder.FileSize())
	}
	if err == nil {
		err = finish()
	}
	if err == nil && iter.Status() != nil {
		err = iter.Status()
	}
	return
}

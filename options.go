package ssdb

import "log"

type CompressionType uint8

const (
	NoCompression CompressionType = iota
	SnappyCompression
)

type Options struct {
	Comparator           Comparator
	CreateIfMissing      bool
	ErrorIfExists        bool
	ParanoidChecks       bool
	Env                  Env
	InfoLog              *log.Logger
	WriteBufferSize      int
	MaxOpenFiles         int
	BlockSize            int
	BlockRestartInterval int
	MaxFileSize          int
	BlockCache           Cache
	CompressionType      CompressionType
	ReuseLogs            bool
	FilterPolicy         FilterPolicy

	// GuardTopLevelBits is the number of low bits of a key's guard hash
	// checked at level 0 (num_bits(0)). Smaller values produce denser
	// guards and narrower compactions.
	GuardTopLevelBits int
	// GuardBitsDecrement is subtracted from GuardTopLevelBits once per
	// level of depth, so guard density roughly doubles every
	// 1/GuardBitsDecrement levels.
	GuardBitsDecrement int
	// GuardHashSeed seeds the MurmurHash3 guard-eligibility predicate.
	GuardHashSeed uint32
}

func NewOptions() *Options {
	return &Options{
		Comparator:           BytewiseComparator,
		CreateIfMissing:      false,
		ErrorIfExists:        false,
		ParanoidChecks:       false,
		Env:                  DefaultEnv(),
		InfoLog:              nil,
		WriteBufferSize:      4 * 1024 * 1024,
		MaxOpenFiles:         1000,
		BlockSize:            4 * 1024,
		BlockRestartInterval: 16,
		MaxFileSize:          2 * 1024 * 1024,
		CompressionType:      SnappyCompression,
		ReuseLogs:            false,
		FilterPolicy:         nil,
		GuardTopLevelBits:    10,
		GuardBitsDecrement:   1,
		GuardHashSeed:        42,
	}
}

type ReadOptions struct {
	VerifyChecksums bool
	FillCache       bool
	Snapshot        Snapshot
}

func NewReadOptions() *ReadOptions {
	return &ReadOptions{
		VerifyChecksums: false,
		FillCache:       true,
		Snapshot:        nil,
	}
}

type WriteOptions struct {
	Sync bool
}

func NewWriteOptions() *WriteOptions {
	return &WriteOptions{Sync: false}
}

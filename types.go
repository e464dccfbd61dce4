package ssdb

type ValueType int8

const (
	TypeDeletion = ValueType(iota)
	TypeValue
)

type Closer interface {
	Close()
}

type Clearer interface {
	Clear()
}

// Finalizer is implemented by resources (files, iterators, builders,
// caches) whose owner must release native resources deterministically
// rather than relying on GC.
type Finalizer interface {
	Finalize()
}

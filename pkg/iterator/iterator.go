package iterator

// Iterator iterates over a sequence of key-value pairs. Blocks yield their
// entries in key order; spatial index iterators yield only the entries whose
// box intersects the query and in tree order.
type Iterator interface {
	// Seek positions the iterator on the first entry matching target.
	Seek(target []byte)
	// First moves to the first entry.
	First()
	// Last moves to the last entry.
	Last()
	// Next advances to the next entry.
	Next()
	// Prev moves to the previous entry.
	Prev()
	// Valid reports whether the iterator points to a valid entry.
	Valid() bool
	// Key returns the current key.
	Key() []byte
	// Value returns the current value.
	Value() []byte
	// Err reports the failure that invalidated the iterator, if any. An
	// iterator that is not Valid and has a nil Err is exhausted.
	Err() error
	// Close releases resources.
	Close() error
}

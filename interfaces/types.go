package interf

// Handle identifies a file opened through an Engine. It stays valid
// across Close (the descriptor is kept, only the backing handle is
// released) and is only invalidated by PermanentClose.
type Handle uint64

// Mode is the access mode a file is opened with.
type Mode uint8

const (
	// ModeRead opens a file for read-only access.
	ModeRead Mode = iota
	// ModeWrite opens a file for write-only access.
	ModeWrite
	// ModeReadWrite opens a file for reading and writing, read-biased.
	ModeReadWrite
	// ModeWriteRead opens a file for reading and writing, write-biased.
	ModeWriteRead
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "READ"
	case ModeWrite:
		return "WRITE"
	case ModeReadWrite:
		return "READ_WRITE"
	case ModeWriteRead:
		return "WRITE_READ"
	default:
		return "UNKNOWN_MODE"
	}
}

// Policy is the page replacement discipline charged to a descriptor.
type Policy uint8

const (
	// PolicyKeep never evicts a page unless every table is under
	// pressure; it is meant for small, hot files.
	PolicyKeep Policy = iota
	// PolicyLRU evicts the least-recently-used page once aged.
	PolicyLRU
	// PolicyFIFO evicts the oldest inserted page first.
	PolicyFIFO
)

func (p Policy) String() string {
	switch p {
	case PolicyKeep:
		return "KEEP"
	case PolicyLRU:
		return "LRU"
	case PolicyFIFO:
		return "FIFO"
	default:
		return "UNKNOWN_POLICY"
	}
}

// Whence is the reference point for Engine.Seek, matching io.Seeker.
type Whence uint8

const (
	// WhenceSet seeks relative to the start of the file.
	WhenceSet Whence = iota
	// WhenceCur seeks relative to the current offset.
	WhenceCur
	// WhenceEnd seeks relative to the end of the file.
	WhenceEnd
)

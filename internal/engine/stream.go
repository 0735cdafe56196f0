package engine

// StreamID indexes into a Machine's stream table. 0, 1 and 2 are reserved
// for user_input, user_output and user_error respectively, mirroring
// runtime.c's fixed low stream numbers.
type StreamID int

const (
	StreamUserInput StreamID = iota
	StreamUserOutput
	StreamUserError
	maxReservedStreams
)

// MaxStreams bounds the stream table, spec §12's "fixed [MAX_STREAMS]
// array" sized generously above the three reserved slots for whatever
// streams an embedding's I/O layer opens.
const MaxStreams = 64

// Stream is an opaque handle into the (out-of-scope) embedding I/O layer:
// internal/engine never reads or writes through it, only hands out and
// looks up indices, per spec §12's narrow StreamTable interface.
type Stream interface {
	Close() error
}

// StreamTable is the fixed-size open-stream registry spec §6 and §12
// describe. It is deliberately ignorant of what a Stream actually is — an
// *os.File, a bytes.Buffer wrapper, a network conn — so that core
// execution code never depends on any I/O package; only the embedding
// API's stream-related built-ins (current_output/1, open/4, close/1, ...)
// reach into it.
type StreamTable struct {
	slots [MaxStreams]Stream
	names map[string]StreamID
	next  StreamID
}

// NewStreamTable returns a table with the three reserved slots named but
// unpopulated (an embedding installs real Stream values for them at
// startup; core code runs fine without ever doing so).
func NewStreamTable() *StreamTable {
	st := &StreamTable{
		names: map[string]StreamID{
			"user_input":  StreamUserInput,
			"user_output": StreamUserOutput,
			"user_error":  StreamUserError,
		},
		next: maxReservedStreams,
	}
	return st
}

// Open installs s under a fresh index, optionally aliased by name (alias ==
// "" registers no name), and returns that index. ok is false if the table
// is full.
func (st *StreamTable) Open(s Stream, alias string) (StreamID, bool) {
	if int(st.next) >= MaxStreams {
		return 0, false
	}
	id := st.next
	st.next++
	st.slots[id] = s
	if alias != "" {
		if st.names == nil {
			st.names = map[string]StreamID{}
		}
		st.names[alias] = id
	}
	return id, true
}

// Get returns the Stream at id, if any has been installed there.
func (st *StreamTable) Get(id StreamID) (Stream, bool) {
	if id < 0 || int(id) >= MaxStreams {
		return nil, false
	}
	s := st.slots[id]
	return s, s != nil
}

// Lookup resolves a stream alias (e.g. "user_output") to its index.
func (st *StreamTable) Lookup(alias string) (StreamID, bool) {
	id, ok := st.names[alias]
	return id, ok
}

// Close closes and forgets the stream at id, freeing its slot for reuse
// only in the sense that Get will report it absent; slot indices are
// otherwise never recycled, matching runtime.c's append-only stream table.
func (st *StreamTable) Close(id StreamID) error {
	s, ok := st.Get(id)
	if !ok {
		return nil
	}
	st.slots[id] = nil
	err := s.Close()
	return err
}

package engine

// MaxQueues bounds the number of parallel findall/bagof/setof/task-message
// queues a single Machine keeps open at once (spec §4.2, §4.8). It is a
// fixed small number rather than unbounded because queues nest only as
// deep as call/N nesting of the corresponding builtins, which in practice
// never approaches this.
const MaxQueues = 16

// Heap is the growable cell arena terms are allocated into during
// execution (spec §4.2). It is organized as a single flat cell slice, the
// same representation Term already uses, so a Ref into the heap is just
// Ref{Cells: h.cells, Pos: n, Ctx: ctx}. Choice points snapshot its length
// and truncate back to that length on backtrack, exactly like Frames'
// Mark/Save/Restore — nothing allocated on the heap since a choice point
// survives a retry into it.
type Heap struct {
	cells []Cell
	tmp   []Cell
	qs    [MaxQueues][]Cell
}

// NewHeap returns an empty heap.
func NewHeap() *Heap { return &Heap{} }

// Cells exposes the backing store so Refs can be built against it.
func (h *Heap) Cells() Term { return Term(h.cells) }

// Len is the current heap mark: the count of live cells.
func (h *Heap) Len() int { return len(h.cells) }

// Append grows the heap by appending cells, returning the index the first
// appended cell landed at.
func (h *Heap) Append(cells ...Cell) int {
	pos := len(h.cells)
	h.cells = append(h.cells, cells...)
	return pos
}

// Reserve appends n zero cells in one call, as CompoundHead followed by a
// Builder-style fixup does; callers write into the returned range directly.
func (h *Heap) Reserve(n int) int {
	pos := len(h.cells)
	h.cells = append(h.cells, make([]Cell, n)...)
	return pos
}

// Put builds a Builder, invokes fn to populate it, and copies the result
// onto the heap in one block, returning the position of its root cell.
// This is the usual way a builtin manufactures a fresh term to bind a
// variable to.
func (h *Heap) Put(fn func(b *Builder)) int {
	b := NewBuilder()
	fn(b)
	return h.Append(b.Term()...)
}

// Truncate discards every cell allocated since mark, the counterpart to
// Frames.Restore: called when backtracking past the choice point that
// recorded mark.
func (h *Heap) Truncate(mark int) {
	h.cells = h.cells[:mark]
}

// TmpReset clears the scratch heap used for throwaway term construction
// that must not survive past the builtin call that created it (spec
// §4.2's "temporary heap", e.g. building a comparison key that is
// immediately discarded).
func (h *Heap) TmpReset() { h.tmp = h.tmp[:0] }

// TmpAppend appends to the scratch heap and returns the cells' start index
// within it.
func (h *Heap) TmpAppend(cells ...Cell) int {
	pos := len(h.tmp)
	h.tmp = append(h.tmp, cells...)
	return pos
}

// TmpCells exposes the scratch heap's backing store.
func (h *Heap) TmpCells() Term { return Term(h.tmp) }

// QueuePush appends a value onto queue q (one of findall/bagof/setof's
// accumulators, or a task's mailbox — spec §4.8 and §4.9 share the same
// queue mechanism).
func (h *Heap) QueuePush(q int, cells ...Cell) {
	h.qs[q] = append(h.qs[q], cells...)
}

// QueueCells exposes queue q's backing store, a flat concatenation of
// whatever terms were pushed to it in order.
func (h *Heap) QueueCells(q int) Term { return Term(h.qs[q]) }

// QueueLen reports the cell count currently buffered in queue q.
func (h *Heap) QueueLen(q int) int { return len(h.qs[q]) }

// QueueReset empties queue q, called once its results have been drained
// into a list by the findall/bagof/setof builtin that owns it, or once a
// task finishes reading its mailbox.
func (h *Heap) QueueReset(q int) { h.qs[q] = h.qs[q][:0] }

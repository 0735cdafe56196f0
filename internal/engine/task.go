package engine

import "time"

// TaskState is the explicit state machine spec §9 asks coroutines be
// rewritten as: Ready | Waiting(deadline) | AwaitingRecv | Done.
type TaskState int

const (
	TaskReady TaskState = iota
	TaskWaiting
	TaskAwaitingRecv
	TaskDone
)

// Task is one cooperative subquery spawned by spawn/1 (spec §4.9): its
// own frames/trail/choices/heap, sharing only the parent's atom pool and
// clause store.
type Task struct {
	ID       int
	State    TaskState
	Deadline time.Time
	Machine  *Machine
	Cont     *Cont
	Result   Term
	Err      error
}

// Tasks is the module-level pending-task list spec §4.9 describes as a
// doubly-linked list; a slice is the idiomatic equivalent since tasks are
// only ever appended and scanned round-robin, never spliced mid-list.
type Tasks struct {
	list   []*Task
	nextID int
}

func newTasks() *Tasks { return &Tasks{} }

// Spawn creates a new task running goal in a fresh Machine that shares
// atoms and clauses with parent, inheriting whatever bindings are
// reachable from goal by deep-cloning them (spec's "inherits bindings
// transitively reachable... by deep-cloning").
func (ts *Tasks) Spawn(parent *Machine, goal Ref) *Task {
	child := newSubMachine(parent)
	b := NewBuilder()
	seen := map[VarRef]int64{}
	var next int64
	DeepClone(parent, b, goal.Cells, goal.Pos, goal.Ctx, seen, &next)
	frameIdx := child.Frames.Push(0, nil, int(next), 0, 0)
	pos := child.Heap.Append(b.Term()...)

	ts.nextID++
	t := &Task{
		ID:      ts.nextID,
		State:   TaskReady,
		Machine: child,
		Cont:    pushGoal(Ref{Cells: child.Heap.Cells(), Pos: pos, Ctx: frameIdx}, 0, nil),
	}
	ts.list = append(ts.list, t)
	return t
}

// Step runs one ready task's goal to its first solution or failure and
// marks the task done; there is no suspension point inside a task, so a
// task never stops part-way. Scheduling is single-threaded: only one
// task's Machine ever runs at a time.
func (ts *Tasks) Step(t *Task) {
	if t.State != TaskReady {
		return
	}
	sol, err := t.Machine.drain(0, t.Cont)
	t.Cont = nil
	if err != nil {
		t.Err = err
		t.State = TaskDone
		return
	}
	if sol.Ok {
		t.State = TaskDone
		return
	}
	t.State = TaskDone
}

// Wait pumps every pending task to completion, one task after another in
// list order, per spec §4.9's wait/0.
func (ts *Tasks) Wait() {
	for _, t := range ts.list {
		for t.State == TaskReady {
			ts.Step(t)
		}
	}
}

// Await pumps until at least one task has left TaskReady (yielded a
// result or finished), per spec's await/0.
func (ts *Tasks) Await() {
	for _, t := range ts.list {
		if t.State == TaskReady {
			ts.Step(t)
			return
		}
	}
}

// newSubMachine builds a Machine that shares atoms/clauses/builtins with
// parent but owns independent frames/trail/choices/heap — the per-query
// isolation spec §5's "Shared resources" section calls for.
func newSubMachine(parent *Machine) *Machine {
	m := &Machine{
		Atoms:    parent.Atoms,
		Clauses:  parent.Clauses,
		Builtins: parent.Builtins,
		Frames:   NewFrames(),
		Trail:    &Trail{},
		Choices:  NewChoices(),
		Heap:     NewHeap(),
		Flags:    parent.Flags,
		Streams:  parent.Streams,
		tasks:    newTasks(),
		curFrame: 0,
	}
	return m
}

// Send deep-clones val and appends it to queue 0, the convention spec
// §4.9 assigns inter-task messaging (shared with findall's queues, just
// a different queue number).
func (m *Machine) Send(val Ref) {
	b := NewBuilder()
	seen := map[VarRef]int64{}
	var next int64
	DeepClone(m, b, val.Cells, val.Pos, val.Ctx, seen, &next)
	m.Heap.QueuePush(0, b.Term()...)
}

// Recv pops the oldest message off queue 0, if any.
func (m *Machine) Recv() (Term, bool) {
	cells := m.Heap.QueueCells(0)
	if len(cells) == 0 {
		return nil, false
	}
	n := int(cells[0].NbrCells)
	msg := append(Term{}, cells[:n]...)
	rest := append([]Cell{}, cells[n:]...)
	m.Heap.QueueReset(0)
	m.Heap.QueuePush(0, rest...)
	return msg, true
}

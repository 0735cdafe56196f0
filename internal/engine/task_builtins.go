package engine

// registerTaskBuiltins wires spawn/1, wait/0, await/0, yield/0, send/1 and
// recv/1 into b: the cooperative task runtime spec §4.9 describes, built on
// top of the Tasks/Task machinery in task.go.
func registerTaskBuiltins(b *Builtins, atoms *Atoms) {
	reg := func(name string, arity int, fn BuiltinFunc) { b.Register(atoms.Intern(name), arity, fn) }
	reg("spawn", 1, biSpawn)
	reg("wait", 0, biWait)
	reg("await", 0, biAwait)
	reg("yield", 0, biYield)
	reg("send", 1, biSend)
	reg("recv", 1, biRecv)
}

// biSpawn creates a subquery running Goal and adds it to the module's
// pending-task list without running it yet; wait/0 and await/0 are what
// actually pump it, per spec §4.9's "module owns a doubly-linked list of
// pending tasks".
func biSpawn(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	m.tasks.Spawn(m, arg(goal, 0))
	return cont.Next, false, nil
}

// biWait pumps every pending task to completion. A task that threw
// propagates nothing to the caller beyond its own Task.Err record, matching
// the original's "tasks run detached" framing: wait/0 only reports whether
// the pump itself ran, not individual task outcomes.
func biWait(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	m.tasks.Wait()
	return cont.Next, false, nil
}

// biAwait pumps until at least one task has left Ready.
func biAwait(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	m.tasks.Await()
	return cont.Next, false, nil
}

// biYield is a no-op success at the top level: this engine drives one query
// to completion per Solve/Redo call rather than preempting mid-step, so
// there is no other ready green thread for a bare yield/0 inside the
// caller's own query to hand control to. It exists so clauses written
// against the cooperative-task vocabulary still load and run. Spawned
// tasks are not interleaved either: Tasks.Step runs each one to
// completion.
func biYield(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	return cont.Next, false, nil
}

func biSend(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	m.Send(arg(goal, 0))
	return cont.Next, false, nil
}

// biRecv pops the oldest message off queue 0, failing (not throwing) if
// none is pending yet, per spec's "fails if empty — caller typically
// retries via yield".
func biRecv(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	msg, ok := m.Recv()
	if !ok {
		return nil, true, nil
	}
	var nvars int64
	for _, c := range msg {
		if c.Tag == TagVar && c.Num+1 > nvars {
			nvars = c.Num + 1
		}
	}
	b := NewBuilder()
	appendClonedTerm(b, msg)
	frameIdx := m.Frames.Push(m.curFrame, nil, int(nvars), 0, 0)
	pos := m.Heap.Append(b.Term()...)
	if Unify(m.Bindings(), arg(goal, 0), Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: frameIdx}) {
		return cont.Next, false, nil
	}
	return nil, true, nil
}

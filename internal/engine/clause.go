package engine

import (
	"fmt"
	"sort"
	"time"
)

// PredKey names one predicate by functor and arity, the unit clauses are
// grouped and indexed under (spec §5).
type PredKey struct {
	Functor Atom
	Arity   int
}

// Clause is one stored rule or fact: a head, a body (the empty Term for
// facts, read by callers as `true`), how many local variable slots its
// frame needs, and the identity spec §6 requires clause/3, erase/1 and
// instance/2 be able to name it by.
type Clause struct {
	ID      ClauseID
	Head    Term
	Body    Term
	NVars   int
	Erased  bool
	seq     uint64
}

// indexKey is the first-argument index spec §5.2 describes: clauses whose
// first argument is an unbound variable index under no key at all and
// instead live in a predicate's wildcard list, since a variable matches
// every candidate.
type indexKey struct {
	tag     Tag
	functor Atom
	arity   uint8
	num     int64
	str     string
}

func firstArgKey(head Term) (indexKey, bool) {
	kids := head.Children(0)
	if len(kids) == 0 {
		return indexKey{}, false
	}
	c := head[kids[0]]
	switch c.Tag {
	case TagVar:
		return indexKey{}, false
	case TagAtom:
		return indexKey{tag: TagAtom, functor: c.Functor, arity: c.Arity}, true
	case TagInt:
		return indexKey{tag: TagInt, num: c.Num}, true
	case TagFloat:
		return indexKey{tag: TagFloat, num: int64(c.Flt)}, true
	case TagString:
		return indexKey{tag: TagString, str: c.Str}, true
	default:
		return indexKey{}, false
	}
}

// Predicate holds every clause stored under one PredKey, plus the
// first-argument index used to skip clauses that cannot possibly match a
// call without trying to unify against each one in turn.
type Predicate struct {
	Key      PredKey
	Dynamic  bool
	byID     map[ClauseID]*Clause
	indexed  map[indexKey][]*Clause
	wildcard []*Clause
	dirty    bool
}

func newPredicate(key PredKey) *Predicate {
	return &Predicate{
		Key:     key,
		byID:    make(map[ClauseID]*Clause),
		indexed: make(map[indexKey][]*Clause),
	}
}

// all returns every live (non-erased) clause in assert order, used by
// listing/1, clause/3 with an unbound first argument, and the dirty
// sweep.
func (p *Predicate) all() []*Clause {
	out := make([]*Clause, 0, len(p.byID))
	for _, cs := range p.indexed {
		out = append(out, cs...)
	}
	out = append(out, p.wildcard...)
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	live := out[:0]
	for _, c := range out {
		if !c.Erased {
			live = append(live, c)
		}
	}
	return live
}

// Candidates returns the clauses a call with the given first-argument key
// must actually try, in assert order: the exact-key bucket merged with
// every variable-headed clause, since a variable head matches any call.
// When ok is false the caller's first argument was itself unbound, so
// every clause is a candidate and the caller should use all() instead.
func (p *Predicate) Candidates(key indexKey, ok bool) []*Clause {
	if !ok {
		return p.all()
	}
	merged := append(append([]*Clause{}, p.indexed[key]...), p.wildcard...)
	sort.Slice(merged, func(i, j int) bool { return merged[i].seq < merged[j].seq })
	live := merged[:0]
	for _, c := range merged {
		if !c.Erased {
			live = append(live, c)
		}
	}
	return live
}

// Clauses is the engine-wide clause store, keyed by predicate, plus the
// ID generator every asserted clause draws from (spec §6).
type Clauses struct {
	preds map[PredKey]*Predicate
	idgen *clauseIDGen
	seq   uint64
}

// NewClauses returns an empty store with a fresh, process-local clause-ID
// generator.
func NewClauses() (*Clauses, error) {
	g, err := newClauseIDGen()
	if err != nil {
		return nil, err
	}
	return &Clauses{preds: make(map[PredKey]*Predicate), idgen: g}, nil
}

// Lookup returns the predicate for key, or nil if nothing has ever been
// declared or asserted under it.
func (cs *Clauses) Lookup(key PredKey) *Predicate { return cs.preds[key] }

// Ensure returns the predicate for key, creating an empty dynamic one if
// none exists yet (what asserta/assertz do to a previously-unknown key,
// per spec's dynamic-declaration-on-first-assert convention).
func (cs *Clauses) Ensure(key PredKey) *Predicate {
	p, ok := cs.preds[key]
	if !ok {
		p = newPredicate(key)
		p.Dynamic = true
		cs.preds[key] = p
	}
	return p
}

func (cs *Clauses) insert(p *Predicate, c *Clause) {
	cs.seq++
	c.seq = cs.seq
	p.byID[c.ID] = c
	if key, ok := firstArgKey(c.Head); ok {
		p.indexed[key] = append(p.indexed[key], c)
	} else {
		p.wildcard = append(p.wildcard, c)
	}
}

// Assertz appends a new clause to the end of key's clause list.
func (cs *Clauses) Assertz(key PredKey, head, body Term, nvars int) *Clause {
	p := cs.Ensure(key)
	c := &Clause{ID: cs.idgen.next(time.Now()), Head: head, Body: body, NVars: nvars}
	cs.insert(p, c)
	return c
}

// Asserta prepends a new clause to the front of key's clause list, so it
// is tried before every clause already present.
func (cs *Clauses) Asserta(key PredKey, head, body Term, nvars int) *Clause {
	p := cs.Ensure(key)
	c := &Clause{ID: cs.idgen.next(time.Now()), Head: head, Body: body, NVars: nvars}
	cs.seq++
	// Renumber every existing clause one slot later so c's seq of 0 sorts
	// before all of them; cheap because assert traffic is not the hot
	// path unification is.
	for _, other := range p.all() {
		other.seq++
	}
	c.seq = 0
	p.byID[c.ID] = c
	if key, ok := firstArgKey(c.Head); ok {
		p.indexed[key] = append(p.indexed[key], c)
	} else {
		p.wildcard = append(p.wildcard, c)
	}
	return c
}

// Erase marks id logically deleted: spec §6's erase/1 semantics, where a
// retry already in flight over this clause still completes, but no new
// lookup will find it. The physical slot is reclaimed later by Sweep.
func (cs *Clauses) Erase(key PredKey, id ClauseID) bool {
	p, ok := cs.preds[key]
	if !ok {
		return false
	}
	c, ok := p.byID[id]
	if !ok || c.Erased {
		return false
	}
	c.Erased = true
	p.dirty = true
	return true
}

// ByID finds a clause by identity alone, for erase/1 and instance/2 when
// only the ID (not the predicate key) is in hand.
func (cs *Clauses) ByID(id ClauseID) (PredKey, *Clause, bool) {
	for key, p := range cs.preds {
		if c, ok := p.byID[id]; ok {
			return key, c, true
		}
	}
	return PredKey{}, nil, false
}

// Abolish deletes every clause under key outright and forgets the
// predicate entirely, per spec's abolish/1 (stronger than retractall/1,
// which only empties the clause list but keeps the dynamic declaration).
func (cs *Clauses) Abolish(key PredKey) { delete(cs.preds, key) }

// RetractAll erases every live clause under key, returning how many were
// erased, and keeps the predicate declared. It does no head matching;
// callers that need to erase only matching clauses run the unifier
// themselves (clause.go only owns storage).
func (cs *Clauses) RetractAll(key PredKey) int {
	p, ok := cs.preds[key]
	if !ok {
		return 0
	}
	n := 0
	for _, c := range p.all() {
		if !c.Erased {
			c.Erased = true
			n++
		}
	}
	if n > 0 {
		p.dirty = true
	}
	return n
}

// Sweep physically drops erased clauses from every predicate marked
// dirty. This runs as a separate pass (invoked between queries, not
// inline with retract) precisely so that a choice point holding a
// pointer into a predicate's clause list mid-retry is never invalidated
// out from under it: erase only flips a bit; Sweep only ever runs when
// nothing is iterating.
func (cs *Clauses) Sweep() {
	for _, p := range cs.preds {
		if !p.dirty {
			continue
		}
		for key, list := range p.indexed {
			p.indexed[key] = compact(list)
		}
		p.wildcard = compact(p.wildcard)
		for id, c := range p.byID {
			if c.Erased {
				delete(p.byID, id)
			}
		}
		p.dirty = false
	}
}

func compact(list []*Clause) []*Clause {
	out := list[:0]
	for _, c := range list {
		if !c.Erased {
			out = append(out, c)
		}
	}
	return out
}

// Indicator renders a PredKey as name/arity for error terms and
// diagnostics.
func (k PredKey) Indicator(atoms *Atoms) string {
	return fmt.Sprintf("%s/%d", atoms.Name(k.Functor), k.Arity)
}

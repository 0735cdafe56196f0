package trealla

import (
	"sync"
)

// DB is the elastic counterpart to Pool: instead of a fixed-size round
// robin array, replicas are checked out of a sync.Pool and grown on
// demand, which suits workloads with bursty, unpredictable read
// concurrency better than Pool's fixed NewPool(size) commitment.
//
// Like Pool, every replica's clause database and atom table point at the
// same canonical *engine.Machine state (see (*prolog).clone's doc
// comment), so a write through WriteTx is visible to every outstanding
// ReadTx replica as soon as WriteTx returns — there is no snapshot to
// refresh.
type DB struct {
	canon *prolog
	pool  *sync.Pool
	mu    *sync.RWMutex
}

// NewDB creates a DB wrapping a fresh canonical interpreter.
func NewDB() (*DB, error) {
	pl, err := New()
	if err != nil {
		return nil, err
	}
	db := &DB{
		canon: pl.(*prolog),
		pool:  new(sync.Pool),
		mu:    new(sync.RWMutex),
	}
	db.pool.New = func() any {
		child, err := db.spawn()
		if err != nil {
			panic(err)
		}
		return child
	}
	return db, nil
}

// WriteTx executes a write transaction against this DB's canonical
// interpreter, serialized against every other Write/ReadTx.
func (db *DB) WriteTx(tx func(Prolog) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	pl := &lockedProlog{prolog: db.canon}
	defer pl.kill()
	return tx(pl)
}

// ReadTx executes a read transaction against a pooled replica. Queries run
// in a ReadTx must not modify the knowledgebase (use WriteTx for that).
func (db *DB) ReadTx(tx func(Prolog) error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	child := db.pool.Get().(*lockedProlog)
	defer db.pool.Put(child)
	return tx(child)
}

// Stats returns diagnostic information for the canonical interpreter.
func (db *DB) Stats() Stats {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.canon.stats()
}

func (db *DB) spawn() (*lockedProlog, error) {
	pl, err := db.canon.clone()
	if err != nil {
		return nil, err
	}
	return &lockedProlog{prolog: pl}, nil
}

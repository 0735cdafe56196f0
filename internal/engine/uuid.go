package engine

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	uuid "github.com/hashicorp/go-uuid"
)

// ClauseID is the 128-bit identifier spec §6 assigns every asserted
// clause, used by clause/3, erase/1 and instance/2 to name one specific
// clause even across assert/retract churn that reuses the same head.
// Its 16 bytes pack three fields: an 8-byte microsecond timestamp, a
// 2-byte per-timestamp counter (for multiple clauses asserted within the
// same microsecond), and a 6-byte value fixed for the life of one Machine
// (spec's "process seed"), so IDs from two different Machines never
// collide even if their clocks do.
type ClauseID [16]byte

// String renders the canonical three-field hex form: 16 timestamp digits,
// a dash, 4 counter digits, a dash, 12 seed digits.
func (id ClauseID) String() string {
	return fmt.Sprintf("%s-%s-%s",
		hex.EncodeToString(id[0:8]),
		hex.EncodeToString(id[8:10]),
		hex.EncodeToString(id[10:16]))
}

// ParseClauseID parses String's output back into a ClauseID.
func ParseClauseID(s string) (ClauseID, error) {
	var id ClauseID
	if len(s) != 16+1+4+1+12 {
		return id, fmt.Errorf("engine: malformed clause id %q", s)
	}
	ts, err := hex.DecodeString(s[0:16])
	if err != nil {
		return id, fmt.Errorf("engine: malformed clause id %q: %w", s, err)
	}
	ctr, err := hex.DecodeString(s[17:21])
	if err != nil {
		return id, fmt.Errorf("engine: malformed clause id %q: %w", s, err)
	}
	seed, err := hex.DecodeString(s[22:34])
	if err != nil {
		return id, fmt.Errorf("engine: malformed clause id %q: %w", s, err)
	}
	copy(id[0:8], ts)
	copy(id[8:10], ctr)
	copy(id[10:16], seed)
	return id, nil
}

// clauseIDGen generates ClauseIDs unique within one Machine's lifetime
// and, with very high probability, across Machines: the 48-bit seed is
// drawn once at startup from a CSPRNG rather than derived from anything
// the process shares with another one.
type clauseIDGen struct {
	mu      sync.Mutex
	seed    [6]byte
	lastTS  int64
	counter uint16
}

func newClauseIDGen() (*clauseIDGen, error) {
	seed, err := uuid.GenerateRandomBytes(6)
	if err != nil {
		return nil, fmt.Errorf("engine: generating clause id seed: %w", err)
	}
	g := &clauseIDGen{lastTS: -1}
	copy(g.seed[:], seed)
	return g, nil
}

// next mints the next ClauseID, bumping the per-microsecond counter when
// two clauses land in the same timestamp.
func (g *clauseIDGen) next(now time.Time) ClauseID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := now.UnixMicro()
	if ts == g.lastTS {
		g.counter++
	} else {
		g.lastTS = ts
		g.counter = 0
	}

	var id ClauseID
	binary.BigEndian.PutUint64(id[0:8], uint64(ts))
	binary.BigEndian.PutUint16(id[8:10], g.counter)
	copy(id[10:16], g.seed[:])
	return id
}

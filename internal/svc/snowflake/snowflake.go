package snowflake

import (
	"fmt"
	"sync"
	"time"

	"github.com/wavechat/gateway/internal/structures"
)

// Epoch is the fixed epoch the timestamp component is relative to
// (2020-01-01T00:00:00Z, milliseconds).
const Epoch int64 = 1577836800000

const (
	timestampBits  = 42
	datacenterBits = 5
	workerBits     = 5
	sequenceBits   = 12

	maxDatacenter = -1 ^ (-1 << datacenterBits)
	maxWorker     = -1 ^ (-1 << workerBits)
	maxSequence   = -1 ^ (-1 << sequenceBits)

	workerShift     = sequenceBits
	datacenterShift = sequenceBits + workerBits
	timestampShift  = sequenceBits + workerBits + datacenterBits
)

// ErrClockMovedBack is fatal to id issuance. It is never waited out: emitting
// an id against a regressed clock risks a collision.
var ErrClockMovedBack = fmt.Errorf("snowflake: clock moved backwards")

type Instance interface {
	// Generate mints the next identifier. Safe for concurrent use; calls are
	// serialized around the millisecond/sequence state.
	Generate() (structures.ID, error)
	Deconstruct(id structures.ID) Parts
}

type Parts struct {
	Timestamp  time.Time
	Datacenter int64
	Worker     int64
	Sequence   int64
}

type Options struct {
	Datacenter int64
	Worker     int64
	// Now overrides the clock source. Tests only.
	Now func() int64
}

type generator struct {
	mx sync.Mutex

	datacenter int64
	worker     int64
	now        func() int64

	lastMs   int64
	sequence int64
}

func New(opt Options) (Instance, error) {
	if opt.Datacenter < 0 || opt.Datacenter > maxDatacenter {
		return nil, fmt.Errorf("snowflake: datacenter id %d out of range [0,%d]", opt.Datacenter, maxDatacenter)
	}

	if opt.Worker < 0 || opt.Worker > maxWorker {
		return nil, fmt.Errorf("snowflake: worker id %d out of range [0,%d]", opt.Worker, maxWorker)
	}

	now := opt.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}

	return &generator{
		datacenter: opt.Datacenter,
		worker:     opt.Worker,
		now:        now,
		lastMs:     -1,
	}, nil
}

func (g *generator) Generate() (structures.ID, error) {
	g.mx.Lock()
	defer g.mx.Unlock()

	ms := g.now()

	if ms < g.lastMs {
		return structures.NilID, ErrClockMovedBack
	}

	if ms == g.lastMs {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			// Sequence exhausted for this millisecond; spin until the clock
			// advances.
			for ms <= g.lastMs {
				ms = g.now()
			}
		}
	} else {
		g.sequence = 0
	}

	g.lastMs = ms

	id := (ms-Epoch)<<timestampShift |
		g.datacenter<<datacenterShift |
		g.worker<<workerShift |
		g.sequence

	return structures.ID(id), nil
}

func (g *generator) Deconstruct(id structures.ID) Parts {
	v := int64(id)

	return Parts{
		Timestamp:  time.UnixMilli(v>>timestampShift + Epoch),
		Datacenter: v >> datacenterShift & maxDatacenter,
		Worker:     v >> workerShift & maxWorker,
		Sequence:   v & maxSequence,
	}
}

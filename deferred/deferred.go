package deferred

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/RogerMarsh/solentware-base-sub003/segment"
	"github.com/RogerMarsh/solentware-base-sub003/shelf"
)

// DefaultFlushLimitBytes is the pending-delta footprint that triggers an
// automatic checkpoint when no limit is configured.
const DefaultFlushLimitBytes = 8 << 20

// Footprint estimates for the pending-delta structures. They only decide
// when to checkpoint early, so coarse is fine.
const (
	keyFootprint     = 48
	segmentFootprint = 32
	offsetFootprint  = 2
)

// ErrState reports an operation invoked outside the state that allows it.
var ErrState = errors.New("deferred: operation not allowed in current state")

// State is the coordinator's lifecycle position.
type State uint8

const (
	// StateIdle: no run in progress.
	StateIdle State = iota
	// StateCollecting: a run is accumulating deltas.
	StateCollecting
	// StateFlushing: accumulated deltas are merging into the shelf.
	StateFlushing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCollecting:
		return "collecting"
	case StateFlushing:
		return "flushing"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// pairKey identifies one (field, key) delta bucket. The key bytes are held
// as a string so the struct is a map key.
type pairKey struct {
	field string
	key   string
}

func (p pairKey) compare(q pairKey) int {
	if v := strings.Compare(p.field, q.field); v != 0 {
		return v
	}
	return strings.Compare(p.key, q.key)
}

// delta holds the pending offset sets for one (field, key, segment)
// triple. An offset is never in both sets: recording one direction cancels
// a pending entry in the other.
type delta struct {
	add    map[uint16]struct{}
	remove map[uint16]struct{}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithFlushLimitBytes bounds the estimated in-memory delta footprint;
// crossing the bound triggers an automatic checkpoint. Zero disables
// automatic checkpoints.
func WithFlushLimitBytes(n int64) Option {
	return func(c *Coordinator) { c.limit = n }
}

// WithLogger sets the logger for flush progress. Nil disables logging.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// Coordinator accumulates secondary-index deltas during a deferred-update
// run and merges them into the shelf at checkpoints.
type Coordinator struct {
	shelf  *shelf.Shelf
	codec  *segment.Codec
	fields map[string]struct{}
	limit  int64
	logger *slog.Logger

	state   State
	pending map[pairKey]map[segment.SegmentNumber]*delta
	bytes   int64
}

// New returns an idle coordinator writing through sh.
func New(sh *shelf.Shelf, opts ...Option) (*Coordinator, error) {
	if sh == nil {
		return nil, errors.New("deferred: nil shelf")
	}
	c := &Coordinator{
		shelf:  sh,
		codec:  sh.Codec(),
		fields: make(map[string]struct{}),
		limit:  DefaultFlushLimitBytes,
	}
	for _, f := range sh.Fields() {
		c.fields[f] = struct{}{}
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limit < 0 {
		return nil, fmt.Errorf("deferred: negative flush limit %d", c.limit)
	}
	return c, nil
}

// Begin enters Collecting. Only an idle coordinator can begin a run.
func (c *Coordinator) Begin() error {
	if c.state != StateIdle {
		return fmt.Errorf("deferred: begin while %s: %w", c.state, ErrState)
	}
	c.state = StateCollecting
	c.pending = make(map[pairKey]map[segment.SegmentNumber]*delta)
	c.bytes = 0
	return nil
}

// Add records that record r gained (field, key).
func (c *Coordinator) Add(field string, key []byte, r segment.RecordNumber) error {
	return c.record(field, key, r, segment.OpAdd)
}

// Remove records that record r lost (field, key).
func (c *Coordinator) Remove(field string, key []byte, r segment.RecordNumber) error {
	return c.record(field, key, r, segment.OpRemove)
}

func (c *Coordinator) record(field string, key []byte, r segment.RecordNumber, op segment.Op) error {
	if c.state != StateCollecting {
		return fmt.Errorf("deferred: %s while %s: %w", op, c.state, ErrState)
	}
	if _, ok := c.fields[field]; !ok {
		return fmt.Errorf("deferred: %w: %q", shelf.ErrUnknownField, field)
	}

	pk := pairKey{field: field, key: string(key)}
	segs, ok := c.pending[pk]
	if !ok {
		segs = make(map[segment.SegmentNumber]*delta)
		c.pending[pk] = segs
		c.bytes += keyFootprint + int64(len(field)+len(key))
	}
	segNo := c.codec.SegmentOf(r)
	d := segs[segNo]
	if d == nil {
		d = &delta{add: make(map[uint16]struct{}), remove: make(map[uint16]struct{})}
		segs[segNo] = d
		c.bytes += segmentFootprint
	}

	into, inverse := d.add, d.remove
	if op == segment.OpRemove {
		into, inverse = d.remove, d.add
	}
	off := c.codec.OffsetOf(r)
	if _, dup := into[off]; dup {
		return nil
	}
	if _, flipped := inverse[off]; flipped {
		// The record flipped back within the run; the entries annihilate.
		delete(inverse, off)
		c.bytes -= offsetFootprint
		return nil
	}
	into[off] = struct{}{}
	c.bytes += offsetFootprint

	if c.limit > 0 && c.bytes >= c.limit {
		return c.flush(context.Background(), "limit")
	}
	return nil
}

// Checkpoint merges every pending delta into the shelf and resumes
// collecting. A flush failure discards the pending deltas and idles the
// coordinator; see Abort.
func (c *Coordinator) Checkpoint(ctx context.Context) error {
	if c.state != StateCollecting {
		return fmt.Errorf("deferred: checkpoint while %s: %w", c.state, ErrState)
	}
	return c.flush(ctx, "checkpoint")
}

// End runs the final flush and returns the coordinator to Idle.
func (c *Coordinator) End(ctx context.Context) error {
	if c.state != StateCollecting {
		return fmt.Errorf("deferred: end while %s: %w", c.state, ErrState)
	}
	if err := c.flush(ctx, "end"); err != nil {
		return err
	}
	c.pending = nil
	c.state = StateIdle
	return nil
}

// Abort discards pending deltas and returns to Idle from any state. The
// shelf keeps whatever earlier checkpoints wrote; restoring the file is
// the caller's job.
func (c *Coordinator) Abort() error {
	c.discard()
	return nil
}

func (c *Coordinator) discard() {
	c.pending = nil
	c.bytes = 0
	c.state = StateIdle
}

// State reports the lifecycle position.
func (c *Coordinator) State() State { return c.state }

// PendingBytes reports the estimated footprint of unflushed deltas.
func (c *Coordinator) PendingBytes() int64 { return c.bytes }

// PendingKeys reports the number of (field, key) pairs with unflushed
// deltas.
func (c *Coordinator) PendingKeys() int { return len(c.pending) }

// flush merges pending deltas in ascending (field, key, segment) order, so
// the write pattern is deterministic for a given pending set. Cancellation
// is honored between keys, never inside a segment merge. On any failure
// the pending deltas are discarded and the coordinator lands in Idle.
func (c *Coordinator) flush(ctx context.Context, trigger string) error {
	if len(c.pending) == 0 {
		return nil
	}
	c.state = StateFlushing

	pairs := slices.SortedFunc(maps.Keys(c.pending), pairKey.compare)

	start := time.Now()
	if c.logger != nil {
		c.logger.Debug("deferred flush started",
			"trigger", trigger,
			"keys", len(pairs),
			"pending_bytes", c.bytes,
		)
	}

	progress := rate.Sometimes{Interval: time.Second}
	for i, pk := range pairs {
		if err := ctx.Err(); err != nil {
			c.discard()
			return fmt.Errorf("deferred: flush canceled after %d of %d keys: %w", i, len(pairs), err)
		}
		segs := c.pending[pk]
		for _, segNo := range slices.Sorted(maps.Keys(segs)) {
			d := segs[segNo]
			if err := c.shelf.MergeSegment(pk.field, []byte(pk.key), segNo, sortedOffsets(d.remove), sortedOffsets(d.add)); err != nil {
				c.discard()
				return fmt.Errorf("deferred: flush %q segment %d: %w", pk.field, segNo, err)
			}
		}
		if c.logger != nil {
			done := i + 1
			progress.Do(func() {
				c.logger.Info("deferred flush progress",
					"trigger", trigger,
					"done", done,
					"total", len(pairs),
				)
			})
		}
	}

	if c.logger != nil {
		c.logger.Info("deferred flush completed",
			"trigger", trigger,
			"keys", len(pairs),
			"elapsed", time.Since(start),
		)
	}

	c.pending = make(map[pairKey]map[segment.SegmentNumber]*delta)
	c.bytes = 0
	c.state = StateCollecting
	return nil
}

func sortedOffsets(set map[uint16]struct{}) []uint16 {
	if len(set) == 0 {
		return nil
	}
	return slices.Sorted(maps.Keys(set))
}

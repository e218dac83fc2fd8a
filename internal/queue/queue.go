// Package queue implements the MessageQueue (spec §4.2): FIFO ordering
// of in-flight requests per agent type, with different agent types
// running fully concurrently. The original Python used a threading
// lock plus a sleep-until-ready poll loop; DESIGN NOTES §9 calls for a
// per-type condition variable instead, so each agentType gets its own
// lane guarded by a sync.Cond that wakes waiters on completion rather
// than spinning.
package queue

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Sender is the thing a submission is ultimately delivered to: an LLM
// client, a manager dispatch, or any other per-agentType work function.
// The queue only orders calls to it; it does not know their payload.
type Sender func(ctx context.Context) (any, error)

type entry struct {
	seq      uint64
	started  bool
	finished bool
}

type lane struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entries []*entry
}

func newLane() *lane {
	l := &lane{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// eligible reports whether e is the oldest unfinished entry in the lane,
// i.e. no entry with a smaller seq is unfinished (spec §4.2 eligibility
// test), called with l.mu held.
func (l *lane) eligible(e *entry) bool {
	for _, other := range l.entries {
		if other.seq < e.seq && !other.finished {
			return false
		}
	}
	return true
}

func (l *lane) remove(e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, other := range l.entries {
		if other == e {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			break
		}
	}
	l.cond.Broadcast()
}

// Queue is the MessageQueue: arbitrary concurrent submitters, FIFO
// ordering enforced only within a shared agentType.
type Queue struct {
	mu    sync.Mutex
	lanes map[string]*lane
	seq   uint64
}

// New creates an empty MessageQueue.
func New() *Queue {
	return &Queue{lanes: make(map[string]*lane)}
}

func (q *Queue) laneFor(agentType string) *lane {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.lanes[agentType]
	if !ok {
		l = newLane()
		q.lanes[agentType] = l
	}
	return l
}

func (q *Queue) nextSeq() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	return q.seq
}

// Send enqueues payload's delivery to send under agentType's FIFO lane
// and blocks until it is this submission's turn, then runs send and
// marks the entry finished regardless of outcome. Different agentTypes
// never block each other (spec §4.2).
func (q *Queue) Send(ctx context.Context, agentID string, send Sender, agentType string) (any, error) {
	l := q.laneFor(agentType)
	e := &entry{seq: q.nextSeq()}

	l.mu.Lock()
	l.entries = append(l.entries, e)
	for !l.eligible(e) {
		// A queued-but-not-started entry whose caller's context has
		// already been cancelled is dropped rather than waiting
		// forever for its turn (spec §4.2 Cancellation).
		if ctx.Err() != nil {
			l.entries = removeEntry(l.entries, e)
			l.cond.Broadcast()
			l.mu.Unlock()
			return nil, ctx.Err()
		}
		l.cond.Wait()
	}
	e.started = true
	l.mu.Unlock()

	log.Debug().Str("agent_id", agentID).Str("agent_type", agentType).Uint64("seq", e.seq).Msg("queue: dispatching")
	resp, err := send(ctx)

	e.finished = true
	l.remove(e)
	return resp, err
}

func removeEntry(entries []*entry, target *entry) []*entry {
	out := entries[:0]
	for _, e := range entries {
		if e != target {
			out = append(out, e)
		}
	}
	return out
}

// QueueDepth reports the number of in-flight (not yet finished)
// submissions for agentType.
func (q *Queue) QueueDepth(agentType string) int {
	q.mu.Lock()
	l, ok := q.lanes[agentType]
	q.mu.Unlock()
	if !ok {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if !e.finished {
			n++
		}
	}
	return n
}

// Idle reports whether every lane is currently empty, the precondition
// Coordinator.ClearOldScreenshots checks before touching the shared
// uri_to_create_time map (spec §4.6).
func (q *Queue) Idle() bool {
	q.mu.Lock()
	lanes := make([]*lane, 0, len(q.lanes))
	for _, l := range q.lanes {
		lanes = append(lanes, l)
	}
	q.mu.Unlock()
	for _, l := range lanes {
		l.mu.Lock()
		n := len(l.entries)
		l.mu.Unlock()
		if n > 0 {
			return false
		}
	}
	return true
}

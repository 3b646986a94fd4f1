package aggregation

// Edge is an (upper, target) pair whose ordering needs checking, together
// with the aggregation numbers the caller last saw for both ends.
type Edge[I comparable] struct {
	Upper        I
	UpperNumber  uint32
	Target       I
	TargetNumber uint32
}

// Balancer fixes a single edge. It may enqueue further edges on q and
// returns the numbers it observed or assigned for both ends.
type Balancer[I comparable] interface {
	BalanceEdge(q *BalanceQueue[I], upper I, upperNumber uint32, target I, targetNumber uint32) (newUpper, newTarget uint32)
}

type edgeKey[I comparable] struct {
	upper, target I
}

// BalanceQueue is a worklist of edges that may violate the aggregation
// number ordering. It is owned by a single operation and is not safe for
// concurrent use.
type BalanceQueue[I comparable] struct {
	queue   []edgeKey[I]
	queued  map[edgeKey[I]]struct{}
	numbers map[I]uint32
}

// NewBalanceQueue returns an empty queue.
func NewBalanceQueue[I comparable]() *BalanceQueue[I] {
	return &BalanceQueue[I]{
		queued:  make(map[edgeKey[I]]struct{}),
		numbers: make(map[I]uint32),
	}
}

// Balance records that the edge upper -> target needs checking.
// Repeated requests for an edge that is already queued are merged.
func (q *BalanceQueue[I]) Balance(upper I, upperNumber uint32, target I, targetNumber uint32) {
	q.raise(upper, upperNumber)
	q.raise(target, targetNumber)
	k := edgeKey[I]{upper: upper, target: target}
	if _, ok := q.queued[k]; ok {
		return
	}
	q.queued[k] = struct{}{}
	q.queue = append(q.queue, k)
}

// BalanceAll records every edge in edges.
func (q *BalanceQueue[I]) BalanceAll(edges []Edge[I]) {
	for _, e := range edges {
		q.Balance(e.Upper, e.UpperNumber, e.Target, e.TargetNumber)
	}
}

// Len returns the number of queued edges.
func (q *BalanceQueue[I]) Len() int { return len(q.queue) }

// Number returns the largest number recorded for id, or 0.
func (q *BalanceQueue[I]) Number(id I) uint32 { return q.numbers[id] }

// Process drains the queue to a fixed point. Edges enqueued by b while a
// batch is running are handled in a later batch.
func (q *BalanceQueue[I]) Process(b Balancer[I]) {
	for len(q.queue) > 0 {
		for _, k := range q.take() {
			un := q.numbers[k.upper]
			tn := q.numbers[k.target]
			nu, nt := b.BalanceEdge(q, k.upper, un, k.target, tn)
			if nu != un {
				q.raise(k.upper, nu)
			}
			if nt != tn {
				q.raise(k.target, nt)
			}
		}
	}
}

func (q *BalanceQueue[I]) take() []edgeKey[I] {
	batch := q.queue
	q.queue = nil
	clear(q.queued)
	return batch
}

func (q *BalanceQueue[I]) raise(id I, n uint32) {
	if cur, ok := q.numbers[id]; !ok || n > cur {
		q.numbers[id] = n
	}
}

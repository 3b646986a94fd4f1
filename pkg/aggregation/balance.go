package aggregation

import "fmt"

var _ Balancer[int] = (*run[int, struct{}, struct{}])(nil)

// BalanceEdge restores the ordering between upper and target. The numbers
// passed in are hints; the current numbers are re-read one node at a time.
// If target is not below upper, upper is raised to target+1, which may in
// turn queue the edges above upper.
func (r *run[I, D, C]) BalanceEdge(_ *BalanceQueue[I], upper I, _ uint32, target I, _ uint32) (uint32, uint32) {
	g := r.e.ctx.Node(target)
	tn := g.State().AggregationNumber()
	linked := g.State().uppers.Contains(upper)
	g.Unlock()

	g = r.e.ctx.Node(upper)
	un := g.State().AggregationNumber()
	g.Unlock()

	if !linked || un == RootNumber || tn == RootNumber || tn < un {
		r.e.observe().OnBalanceEdge(upper, target, false)
		return un, tn
	}
	want := tn + 1
	if want == RootNumber {
		panic(fmt.Sprintf("aggregation: number of %v would overflow into the root range; the graph likely has a cycle", upper))
	}
	r.e.observe().OnBalanceEdge(upper, target, true)
	r.increase(upper, want)
	r.drainSteps()
	return want, tn
}

// increase raises id to at least number. A leaf is promoted; an aggregator
// that moves up queues a check of every edge to its uppers.
func (r *run[I, D, C]) increase(id I, number uint32) {
	g := r.e.ctx.Node(id)
	n := g.State()
	if n.agg == nil {
		r.promoteLocked(g, id, number)
		g.Unlock()
		return
	}
	from := n.agg.number
	if from >= number {
		g.Unlock()
		return
	}
	n.agg.number = number
	uppers := n.uppers.Items()
	g.Unlock()

	r.e.logger.Debug("raised aggregation number", "id", id, "from", from, "to", number)
	r.e.observe().OnNumberRaised(id, from, number)
	if number == RootNumber {
		return
	}
	for _, u := range uppers {
		r.queue.Balance(u, 0, id, number)
	}
}

// promoteLocked turns the leaf held by g into an aggregator. The new
// aggregator takes over the node's children as followers and every upper
// drops the children it had absorbed through the leaf. g stays locked.
func (r *run[I, D, C]) promoteLocked(g NodeGuard[I, D, C], id I, number uint32) {
	n := g.State()
	n.promote(number, g.InitialData())
	children := g.Children()
	uppers := n.uppers.Items()

	// Old uppers let go of the children before the new aggregator picks
	// them up, so the children do not briefly count both as uppers.
	for _, u := range uppers {
		for _, c := range children {
			r.push(&removeFollower[I, D, C]{upper: u, follower: c, count: 1})
		}
		if number != RootNumber {
			r.queue.Balance(u, 0, id, number)
		}
	}
	for _, c := range children {
		if n.agg.followers.Add(c, 1) {
			r.pushLater(&notifyNewFollower[I, D, C]{upper: id, follower: c, upperNumber: number})
		}
	}

	r.e.logger.Debug("promoted leaf", "id", id, "number", number, "children", len(children), "uppers", len(uppers))
	r.e.observe().OnPromote(id, number)
}

// increaseTo raises id to number and runs everything that follows.
func (e *Engine[I, D, C]) increaseTo(id I, number uint32) {
	r := e.newRun()
	r.increase(id, number)
	r.drain()
}

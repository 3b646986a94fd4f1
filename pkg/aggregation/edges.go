package aggregation

// =============================================================================
// Follower maintenance
// =============================================================================

// PrepareAddFollower adds one reference from aggregator id to follower.
// g must be the guard of id; it stays locked.
func (e *Engine[I, D, C]) PrepareAddFollower(g NodeGuard[I, D, C], id, follower I) Prepared[I, D, C] {
	return e.PrepareAddFollowerCount(g, id, follower, 1)
}

// PrepareAddFollowerCount adds count references from aggregator id to
// follower.
func (e *Engine[I, D, C]) PrepareAddFollowerCount(g NodeGuard[I, D, C], id, follower I, count int) Prepared[I, D, C] {
	n := mustAggregate(g, id)
	r := e.newRun()
	if n.agg.followers.Add(follower, count) {
		r.push(&notifyNewFollower[I, D, C]{upper: id, follower: follower, upperNumber: n.agg.number})
	}
	return r.prepared()
}

// PrepareRemoveFollower drops one reference from aggregator id to follower.
// When the last reference goes, the follower's contribution is subtracted
// from id and from everything above it.
func (e *Engine[I, D, C]) PrepareRemoveFollower(g NodeGuard[I, D, C], id, follower I) Prepared[I, D, C] {
	return e.PrepareRemoveFollowerCount(g, id, follower, 1)
}

// PrepareRemoveFollowerCount drops count references at once.
func (e *Engine[I, D, C]) PrepareRemoveFollowerCount(g NodeGuard[I, D, C], id, follower I, count int) Prepared[I, D, C] {
	n := mustAggregate(g, id)
	r := e.newRun()
	if n.agg.followers.Remove(follower, count) == Removed {
		r.lostFollower(id, follower)
	}
	return r.prepared()
}

// PrepareRemoveFollowerAllCount detaches follower from id entirely and
// returns how many references it had.
func (e *Engine[I, D, C]) PrepareRemoveFollowerAllCount(g NodeGuard[I, D, C], id, follower I) (Prepared[I, D, C], int) {
	n := mustAggregate(g, id)
	r := e.newRun()
	count := n.agg.followers.RemoveAll(follower)
	if count > 0 {
		r.lostFollower(id, follower)
	}
	return r.prepared(), count
}

// =============================================================================
// Host edges
// =============================================================================

// PrepareNewEdge must be called after the host added child to id's
// children while holding g. An aggregator takes the child as follower. A
// leaf hands the child to each of its uppers.
func (e *Engine[I, D, C]) PrepareNewEdge(g NodeGuard[I, D, C], id, child I) Prepared[I, D, C] {
	n := g.State()
	r := e.newRun()
	if n.agg != nil {
		if n.agg.followers.Add(child, 1) {
			r.push(&notifyNewFollower[I, D, C]{upper: id, follower: child, upperNumber: n.agg.number})
		}
		return r.prepared()
	}
	for _, u := range n.uppers.Items() {
		r.push(&addFollower[I, D, C]{upper: u, follower: child, count: 1})
	}
	return r.prepared()
}

// PrepareLostEdge must be called after the host removed one occurrence of
// child from id's children while holding g.
func (e *Engine[I, D, C]) PrepareLostEdge(g NodeGuard[I, D, C], id, child I) Prepared[I, D, C] {
	n := g.State()
	r := e.newRun()
	if n.agg != nil {
		if n.agg.followers.Remove(child, 1) == Removed {
			r.lostFollower(id, child)
		}
		return r.prepared()
	}
	for _, u := range n.uppers.Items() {
		r.push(&removeFollower[I, D, C]{upper: u, follower: child, count: 1})
	}
	return r.prepared()
}

// PrepareChange must be called after the host changed id's own
// contribution by change while holding g.
func (e *Engine[I, D, C]) PrepareChange(g NodeGuard[I, D, C], id I, change C) Prepared[I, D, C] {
	n := g.State()
	r := e.newRun()
	if n.agg != nil {
		next, ok := e.ctx.ApplyChange(&n.agg.data, change)
		if !ok {
			return r.prepared()
		}
		change = next
	}
	r.forward(n, change)
	return r.prepared()
}

// HandleNewEdge is PrepareNewEdge followed by releasing g and applying.
func (e *Engine[I, D, C]) HandleNewEdge(g NodeGuard[I, D, C], id, child I) {
	p := e.PrepareNewEdge(g, id, child)
	g.Unlock()
	p.Apply()
}

// HandleLostEdge is PrepareLostEdge followed by releasing g and applying.
func (e *Engine[I, D, C]) HandleLostEdge(g NodeGuard[I, D, C], id, child I) {
	p := e.PrepareLostEdge(g, id, child)
	g.Unlock()
	p.Apply()
}

// HandleChange is PrepareChange followed by releasing g and applying.
func (e *Engine[I, D, C]) HandleChange(g NodeGuard[I, D, C], id I, change C) {
	p := e.PrepareChange(g, id, change)
	g.Unlock()
	p.Apply()
}

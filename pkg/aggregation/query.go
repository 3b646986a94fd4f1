package aggregation

// QueryRootInfo walks upwards from id, breadth first, and evaluates q on the
// data of every aggregator it meets, id itself included. Each node is
// visited once even when several paths lead to it. The walk stops early
// when q returns Break.
func (e *Engine[I, D, C]) QueryRootInfo(id I, q RootQuery[D]) {
	visited := map[I]struct{}{id: {}}
	queue := []I{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		g := e.ctx.Node(cur)
		n := g.State()
		flow := Continue
		if n.agg != nil {
			flow = q.Query(&n.agg.data)
		}
		uppers := n.uppers.Items()
		g.Unlock()

		if flow == Break {
			return
		}
		for _, u := range uppers {
			if _, ok := visited[u]; ok {
				continue
			}
			visited[u] = struct{}{}
			queue = append(queue, u)
		}
	}
}

// Package tree groups a large, flat set of members into a balanced hierarchy
// of small clusters so that no aggregate ever has more than a handful of
// direct inputs.
//
// Members live in bottom clusters ([BottomTree]) of bounded capacity. Bottom
// clusters are grouped three at a time by ternary top clusters ([TopTree]),
// which in turn are grouped the same way. Every cluster carries the aggregate
// of everything below it, so a change to one member touches one bottom
// cluster and at most Height top clusters.
//
// Data flows through an [Aggregator] the same way it does in the parent
// aggregation package: changes are folded into data and the resulting change
// is handed upwards.
//
//	t := tree.New[string, int, int](sum{})
//	t.Insert("web#build", 3)
//	t.Update("web#build", -1)
//	t.View(func(total *int) { fmt.Println(*total) }) // 2
//
// A [Tree] is safe for concurrent use.
package tree

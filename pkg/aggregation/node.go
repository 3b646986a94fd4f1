package aggregation

import (
	"fmt"
	"math"
)

// RootNumber is the aggregation number of a root aggregator.
const RootNumber uint32 = math.MaxUint32

// Kind is the state of a [Node].
type Kind uint8

const (
	KindLeaf Kind = iota
	KindAggregating
)

func (k Kind) String() string {
	if k == KindAggregating {
		return "aggregating"
	}
	return "leaf"
}

// Node is the aggregation state a host embeds in each of its nodes.
// The zero value is a leaf without uppers.
//
// A Node is only accessed through a [NodeGuard], so it carries no lock of
// its own.
type Node[I comparable, D any] struct {
	uppers CountSet[I]
	waiter PotentialWaiter
	agg    *aggregating[I, D]
}

type aggregating[I comparable, D any] struct {
	number    uint32
	followers CountSet[I]
	data      D
}

// Kind returns whether the node is a leaf or an aggregator.
func (n *Node[I, D]) Kind() Kind {
	if n.agg != nil {
		return KindAggregating
	}
	return KindLeaf
}

// IsLeaf reports whether the node has not been promoted yet.
func (n *Node[I, D]) IsLeaf() bool { return n.agg == nil }

// AggregationNumber returns the node's rank. Leaves have number 0.
func (n *Node[I, D]) AggregationNumber() uint32 {
	if n.agg == nil {
		return 0
	}
	return n.agg.number
}

// IsRoot reports whether the node is a root aggregator.
func (n *Node[I, D]) IsRoot() bool {
	return n.agg != nil && n.agg.number == RootNumber
}

// Uppers returns the aggregators this node reports into.
func (n *Node[I, D]) Uppers() []I { return n.uppers.Items() }

// UpperCount returns the count of upper u.
func (n *Node[I, D]) UpperCount(u I) int { return n.uppers.Count(u) }

// Followers returns the followers of an aggregator. Leaves have none.
func (n *Node[I, D]) Followers() []I {
	if n.agg == nil {
		return nil
	}
	return n.agg.followers.Items()
}

// FollowerCount returns how many edges currently justify follower f.
func (n *Node[I, D]) FollowerCount(f I) int {
	if n.agg == nil {
		return 0
	}
	return n.agg.followers.Count(f)
}

// Data returns the aggregated data. It panics on a leaf.
func (n *Node[I, D]) Data() *D {
	if n.agg == nil {
		panic("aggregation: data requested from a leaf node")
	}
	return &n.agg.data
}

// promote turns a leaf into an aggregator with the given number and data.
func (n *Node[I, D]) promote(number uint32, data D) {
	if n.agg != nil {
		panic(fmt.Sprintf("aggregation: promote of aggregator with number %d", n.agg.number))
	}
	n.agg = &aggregating[I, D]{number: number, data: data}
}

// NodeInfo is a point-in-time copy of a node's aggregation state.
type NodeInfo[I comparable] struct {
	ID         I
	Kind       Kind
	Number     uint32
	Uppers     map[I]int
	Followers  map[I]int
	InProgress uint32
}

func (n *Node[I, D]) info(id I, inProgress uint32) NodeInfo[I] {
	info := NodeInfo[I]{
		ID:         id,
		Kind:       n.Kind(),
		Number:     n.AggregationNumber(),
		Uppers:     n.uppers.Counts(),
		InProgress: inProgress,
	}
	if n.agg != nil {
		info.Followers = n.agg.followers.Counts()
	}
	return info
}

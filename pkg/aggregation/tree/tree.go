package tree

import (
	"fmt"
	"sync"
)

const (
	// DefaultBottomCapacity is the number of members per bottom cluster.
	DefaultBottomCapacity = 4
	// MinBottomCapacity is the smallest accepted bottom capacity.
	MinBottomCapacity = 2

	topArity = 3
)

// Aggregator folds changes into data.
type Aggregator[D, C any] interface {
	// ApplyChange folds change into data and returns the change the
	// enclosing cluster should see, if any.
	ApplyChange(data *D, change C) (C, bool)
	// DataToAddChange returns the change that adds data to a cluster.
	DataToAddChange(data *D) (C, bool)
	// DataToRemoveChange returns the change that removes data from a cluster.
	DataToRemoveChange(data *D) (C, bool)
	// NewData returns the data of an empty cluster.
	NewData() D
}

// ChildLocation is the slot a cluster occupies in its parent top cluster.
type ChildLocation int

const (
	Left ChildLocation = iota
	Middle
	Right
)

func (l ChildLocation) String() string {
	switch l {
	case Left:
		return "left"
	case Middle:
		return "middle"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("ChildLocation(%d)", int(l))
	}
}

type cluster[K comparable, D any] interface {
	height() int
	parentRef() *TopTree[K, D]
	setParent(p *TopTree[K, D], loc ChildLocation)
	location() ChildLocation
	aggregate() *D
}

// BottomTree is a cluster of members.
type BottomTree[K comparable, D any] struct {
	members map[K]*D
	data    D
	parent  *TopTree[K, D]
	loc     ChildLocation
}

// Len returns the number of members.
func (b *BottomTree[K, D]) Len() int { return len(b.members) }

func (b *BottomTree[K, D]) height() int               { return 0 }
func (b *BottomTree[K, D]) parentRef() *TopTree[K, D] { return b.parent }
func (b *BottomTree[K, D]) location() ChildLocation   { return b.loc }
func (b *BottomTree[K, D]) aggregate() *D             { return &b.data }
func (b *BottomTree[K, D]) setParent(p *TopTree[K, D], loc ChildLocation) {
	b.parent, b.loc = p, loc
}

// TopTree groups up to three clusters of the next lower height.
type TopTree[K comparable, D any] struct {
	h        int
	children []cluster[K, D]
	data     D
	parent   *TopTree[K, D]
	loc      ChildLocation
}

func (t *TopTree[K, D]) height() int               { return t.h }
func (t *TopTree[K, D]) parentRef() *TopTree[K, D] { return t.parent }
func (t *TopTree[K, D]) location() ChildLocation   { return t.loc }
func (t *TopTree[K, D]) aggregate() *D             { return &t.data }
func (t *TopTree[K, D]) setParent(p *TopTree[K, D], loc ChildLocation) {
	t.parent, t.loc = p, loc
}

func (t *TopTree[K, D]) full() bool { return len(t.children) == topArity }

func (t *TopTree[K, D]) append(c cluster[K, D]) {
	c.setParent(t, ChildLocation(len(t.children)))
	t.children = append(t.children, c)
}

// remove drops c and shifts the clusters to its right one slot left.
func (t *TopTree[K, D]) remove(c cluster[K, D]) {
	i := int(c.location())
	t.children = append(t.children[:i], t.children[i+1:]...)
	for j := i; j < len(t.children); j++ {
		t.children[j].setParent(t, ChildLocation(j))
	}
	c.setParent(nil, Left)
}

// TopRef refers to a top cluster. Two refs are equal when they point at the
// same cluster. The zero TopRef refers to no cluster.
type TopRef[K comparable, D any] struct {
	top *TopTree[K, D]
}

// Equal reports whether r and o refer to the same cluster.
func (r TopRef[K, D]) Equal(o TopRef[K, D]) bool { return r.top == o.top }

// IsZero reports whether r refers to no cluster.
func (r TopRef[K, D]) IsZero() bool { return r.top == nil }

// Height returns the height of the referenced cluster, or 0.
func (r TopRef[K, D]) Height() int {
	if r.top == nil {
		return 0
	}
	return r.top.h
}

// Parent returns a ref to the enclosing top cluster.
func (r TopRef[K, D]) Parent() TopRef[K, D] {
	if r.top == nil {
		return r
	}
	return TopRef[K, D]{top: r.top.parent}
}

// Option configures a [Tree].
type Option func(*options)

type options struct {
	capacity int
}

// WithBottomCapacity sets how many members a bottom cluster holds. Values
// below MinBottomCapacity are raised to it.
func WithBottomCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// Tree is a balanced two-tier clustering of members keyed by K.
type Tree[K comparable, D, C any] struct {
	mu       sync.RWMutex
	agg      Aggregator[D, C]
	capacity int
	root     cluster[K, D]
	index    map[K]*BottomTree[K, D]
}

// New returns an empty tree.
func New[K comparable, D, C any](agg Aggregator[D, C], opts ...Option) *Tree[K, D, C] {
	o := options{capacity: DefaultBottomCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	if o.capacity < MinBottomCapacity {
		o.capacity = MinBottomCapacity
	}
	return &Tree[K, D, C]{
		agg:      agg,
		capacity: o.capacity,
		index:    make(map[K]*BottomTree[K, D]),
	}
}

// Insert adds key with its own data. Inserting an existing key replaces
// its data.
func (t *Tree[K, D, C]) Insert(key K, data D) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if b, ok := t.index[key]; ok {
		t.dropMember(b, key)
	}
	b := t.rightmostBottom()
	if b == nil || len(b.members) >= t.capacity {
		b = t.newBottom()
	}
	d := data
	b.members[key] = &d
	t.index[key] = b
	if change, ok := t.agg.DataToAddChange(&d); ok {
		t.propagate(b, change)
	}
}

// Update applies change to the data of key. It reports whether key exists.
func (t *Tree[K, D, C]) Update(key K, change C) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.index[key]
	if !ok {
		return false
	}
	if next, ok := t.agg.ApplyChange(b.members[key], change); ok {
		t.propagate(b, next)
	}
	return true
}

// Remove deletes key. It reports whether key existed.
func (t *Tree[K, D, C]) Remove(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.index[key]
	if !ok {
		return false
	}
	t.dropMember(b, key)
	return true
}

// Get calls fn with the data of key while holding the read lock.
func (t *Tree[K, D, C]) Get(key K, fn func(*D)) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	b, ok := t.index[key]
	if !ok {
		return false
	}
	fn(b.members[key])
	return true
}

// View calls fn with the aggregate of all members while holding the read
// lock. fn must not retain the pointer.
func (t *Tree[K, D, C]) View(fn func(*D)) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.root == nil {
		empty := t.agg.NewData()
		fn(&empty)
		return
	}
	fn(t.root.aggregate())
}

// Len returns the number of members.
func (t *Tree[K, D, C]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.index)
}

// Height returns the number of top levels above the bottom clusters.
func (t *Tree[K, D, C]) Height() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.root == nil {
		return 0
	}
	return t.root.height()
}

// Locate returns the top cluster holding key's bottom cluster and the slot
// the bottom cluster occupies in it. The ref is zero while the tree has a
// single bottom cluster.
func (t *Tree[K, D, C]) Locate(key K) (TopRef[K, D], ChildLocation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	b, ok := t.index[key]
	if !ok {
		return TopRef[K, D]{}, Left, false
	}
	return TopRef[K, D]{top: b.parent}, b.loc, true
}

// Root returns a ref to the root cluster, or the zero ref when the root is
// a bottom cluster or the tree is empty.
func (t *Tree[K, D, C]) Root() TopRef[K, D] {
	t.mu.RLock()
	defer t.mu.RUnlock()

	top, _ := t.root.(*TopTree[K, D])
	return TopRef[K, D]{top: top}
}

// =============================================================================
// Internals (callers hold t.mu)
// =============================================================================

// propagate applies change to b and hands the result up the top chain.
func (t *Tree[K, D, C]) propagate(b *BottomTree[K, D], change C) {
	next, ok := t.agg.ApplyChange(&b.data, change)
	for p := b.parent; ok && p != nil; p = p.parent {
		next, ok = t.agg.ApplyChange(&p.data, next)
	}
}

func (t *Tree[K, D, C]) dropMember(b *BottomTree[K, D], key K) {
	if change, ok := t.agg.DataToRemoveChange(b.members[key]); ok {
		t.propagate(b, change)
	}
	delete(b.members, key)
	delete(t.index, key)
	if len(b.members) == 0 {
		t.detach(b)
	}
}

func (t *Tree[K, D, C]) rightmostBottom() *BottomTree[K, D] {
	c := t.root
	for c != nil {
		switch n := c.(type) {
		case *BottomTree[K, D]:
			return n
		case *TopTree[K, D]:
			if len(n.children) == 0 {
				return nil
			}
			c = n.children[len(n.children)-1]
		}
	}
	return nil
}

// newBottom attaches an empty bottom cluster at the right edge.
func (t *Tree[K, D, C]) newBottom() *BottomTree[K, D] {
	b := &BottomTree[K, D]{members: make(map[K]*D), data: t.agg.NewData()}
	if t.root == nil {
		t.root = b
		return b
	}

	// The lowest top on the right spine with a free slot takes the new
	// cluster, wrapped so that every bottom stays at the same depth.
	var slot *TopTree[K, D]
	for c := t.root; c != nil; {
		top, ok := c.(*TopTree[K, D])
		if !ok {
			break
		}
		if !top.full() {
			slot = top
		}
		c = top.children[len(top.children)-1]
	}

	if slot == nil {
		old := t.root
		grown := &TopTree[K, D]{h: old.height() + 1, data: t.agg.NewData()}
		t.adopt(grown, old)
		t.root = grown
		slot = grown
	}
	slot.append(t.wrap(b, slot.h-1))
	return b
}

// adopt makes c the first child of an empty top, carrying c's aggregate.
func (t *Tree[K, D, C]) adopt(top *TopTree[K, D], c cluster[K, D]) {
	top.append(c)
	if change, ok := t.agg.DataToAddChange(c.aggregate()); ok {
		t.agg.ApplyChange(&top.data, change)
	}
}

// wrap stacks empty tops over c until it reaches height h.
func (t *Tree[K, D, C]) wrap(c cluster[K, D], h int) cluster[K, D] {
	for c.height() < h {
		top := &TopTree[K, D]{h: c.height() + 1, data: t.agg.NewData()}
		top.append(c)
		c = top
	}
	return c
}

// detach removes an empty cluster and every ancestor it leaves empty, then
// collapses single-child roots.
func (t *Tree[K, D, C]) detach(c cluster[K, D]) {
	for {
		p := c.parentRef()
		if p == nil {
			t.root = nil
			return
		}
		p.remove(c)
		if len(p.children) > 0 {
			break
		}
		c = p
	}
	for {
		top, ok := t.root.(*TopTree[K, D])
		if !ok || len(top.children) != 1 {
			return
		}
		only := top.children[0]
		only.setParent(nil, Left)
		t.root = only
	}
}

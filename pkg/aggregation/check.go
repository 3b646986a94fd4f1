package aggregation

import (
	"errors"
	"fmt"

	errs "github.com/vercel/turborepo-sub010/pkg/errors"
)

// CheckInvariants verifies the mirrored follower/upper relation, the
// ordering of aggregation numbers and the absence of pending work across
// ids. It should only be called on a quiescent graph: concurrent updates
// show up as violations. Nodes outside ids are only looked at when some
// node in ids points at them.
func (e *Engine[I, D, C]) CheckInvariants(ids []I) error {
	infos := make(map[I]NodeInfo[I], len(ids))
	load := func(id I) NodeInfo[I] {
		if info, ok := infos[id]; ok {
			return info
		}
		info := e.Inspect(id)
		infos[id] = info
		return info
	}

	var violations []error
	for _, id := range ids {
		info := load(id)
		if info.InProgress != 0 {
			violations = append(violations, fmt.Errorf("%v: in-progress counter is %d", id, info.InProgress))
		}
		for u, c := range info.Uppers {
			if c < 0 {
				violations = append(violations, fmt.Errorf("%v: upper %v has negative count %d", id, u, c))
				continue
			}
			up := load(u)
			if up.Kind != KindAggregating {
				violations = append(violations, fmt.Errorf("%v: upper %v is a leaf", id, u))
				continue
			}
			if up.Followers[id] <= 0 {
				violations = append(violations, fmt.Errorf("%v: upper %v does not list it as follower", id, u))
			}
			if !ordered(up.Number, info.Number) {
				violations = append(violations, fmt.Errorf("%v: number %d not below upper %v with %d", id, info.Number, u, up.Number))
			}
		}
		for f, c := range info.Followers {
			if c < 0 {
				violations = append(violations, fmt.Errorf("%v: follower %v has negative count %d", id, f, c))
				continue
			}
			if load(f).Uppers[id] <= 0 {
				violations = append(violations, fmt.Errorf("%v: follower %v does not list it as upper", id, f))
			}
		}
	}
	if len(violations) == 0 {
		return nil
	}
	return errs.Wrap(errs.ErrCodeInvalidState, errors.Join(violations...), "%d aggregation invariant violations", len(violations))
}

// ordered reports whether the edge upper -> target respects the ordering.
func ordered(upper, target uint32) bool {
	return upper == RootNumber || target == RootNumber || target < upper
}

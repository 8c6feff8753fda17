package chooser

import "strconv"

// offsetReachesTarget reports whether observed has caught up to target
// for bootstrap purposes: observed >= target when both parse as
// integers (true for every transport this package ships an adapter
// for — see internal/streammsg), falling back to string equality when
// either does not parse, which degrades gracefully for an opaque
// offset format rather than panicking.
func offsetReachesTarget(observed, target Offset) bool {
	if target == OffsetNone {
		return true
	}
	if observed == OffsetNone {
		return false
	}

	observedN, errO := strconv.ParseInt(string(observed), 10, 64)
	targetN, errT := strconv.ParseInt(string(target), 10, 64)
	if errO == nil && errT == nil {
		return observedN >= targetN
	}

	return observed == target
}

package iterator

import "github.com/arvindrs/invidx/row"

// generalizedIntersection evaluates intersection over the non-negated
// children as in Intersection, then probes each negated child with
// Seek(candidate): a match rejects the candidate and advances the driving
// intersection. A negated child carrying a Bloom sidecar probe skips the
// Seek entirely when the filter proves the candidate absent.

// negatedChild pairs a negated iterator with its optional Bloom sidecar
// probe, so converge can skip a Seek when the probe proves a candidate
// cannot be present on that child.
type negatedChild struct {
	it    Iterator
	probe BloomProbe
}

type generalizedIntersection struct {
	positive  Iterator
	negatives []negatedChild
	current   row.Row
	exhausted bool
}

// NewGeneralizedIntersection splits children into positive and negated
// (via the Negator interface set by Negate/NegateWithBloom) and builds the
// combined iterator. Returns ErrNoChildren if no non-negated child is
// present.
func NewGeneralizedIntersection(children []Iterator) (Iterator, error) {
	var positives []Iterator
	var negatives []negatedChild
	for _, c := range children {
		if neg, ok := c.(Negator); ok {
			child := negatedChild{it: neg.Unwrap()}
			if p, ok := c.(interface{ Probe() BloomProbe }); ok {
				child.probe = p.Probe()
			}
			negatives = append(negatives, child)
		} else {
			positives = append(positives, c)
		}
	}

	if len(positives) == 0 {
		return nil, ErrNoChildren
	}

	pos, err := NewIntersection(positives)
	if err != nil {
		return nil, err
	}

	it := &generalizedIntersection{positive: pos, negatives: negatives}
	if err := it.converge(); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *generalizedIntersection) Current() (row.Row, bool) {
	if it.exhausted {
		return nil, false
	}
	return it.current, true
}

func (it *generalizedIntersection) Exhausted() bool { return it.exhausted }

func (it *generalizedIntersection) Close() error {
	err := it.positive.Close()
	for _, n := range it.negatives {
		if e := n.it.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

func (it *generalizedIntersection) Seek(r row.Row) error {
	if !it.exhausted && it.current != nil && it.current.Compare(r) >= 0 {
		return nil
	}
	if err := it.positive.Seek(r); err != nil {
		return err
	}
	return it.converge()
}

func (it *generalizedIntersection) Advance() error {
	if it.exhausted {
		return nil
	}
	if err := it.positive.Advance(); err != nil {
		return err
	}
	return it.converge()
}

// converge walks the positive intersection forward until a candidate
// matches none of the negated children.
func (it *generalizedIntersection) converge() error {
	for {
		if it.positive.Exhausted() {
			it.current = nil
			it.exhausted = true
			return nil
		}
		candidate, _ := it.positive.Current()

		rejected := false
		for _, n := range it.negatives {
			if n.probe != nil && !n.probe.MightContain(candidate) {
				// Bloom sidecar proves candidate cannot be on this child:
				// skip the seek entirely.
				continue
			}
			if err := n.it.Seek(candidate); err != nil {
				return err
			}
			if n.it.Exhausted() {
				continue
			}
			cur, _ := n.it.Current()
			if cur.Compare(candidate) == 0 {
				rejected = true
				break
			}
		}

		if !rejected {
			it.current = candidate
			return nil
		}
		if err := it.positive.Advance(); err != nil {
			return err
		}
	}
}

package ir

import "fmt"

// Validate checks the CFG invariants:
//
//  1. every block ends in exactly one jump;
//  2. incoming sets match outgoing edges on both endpoints;
//  3. phis lead their block and carry exactly one pair per predecessor;
//  4. phis only appear in blocks with at least one predecessor.
func (f *Fn) Validate() error {
	for _, b := range f.blocks {
		if b.term == nil {
			return fmt.Errorf("block %d has no terminator", b.id)
		}
		for _, target := range b.term.targets() {
			if !target.HasIncoming(b) {
				return fmt.Errorf("edge %d -> %d missing from incoming set", b.id, target.id)
			}
		}
		for pred := range b.incoming {
			found := false
			for _, target := range pred.term.targets() {
				if target == b {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("stale incoming edge %d -> %d", pred.id, b.id)
			}
		}

		inPhiPrefix := true
		for _, instr := range b.instrs {
			phi, isPhi := instr.(*Phi)
			if !isPhi {
				inPhiPrefix = false
				continue
			}
			if !inPhiPrefix {
				return fmt.Errorf("block %d: phi after non-phi instruction", b.id)
			}
			if len(b.incoming) == 0 {
				return fmt.Errorf("block %d: phi in a block without predecessors", b.id)
			}
			if len(phi.Pairs) != len(b.incoming) {
				return fmt.Errorf("block %d: phi has %d pairs for %d predecessors",
					b.id, len(phi.Pairs), len(b.incoming))
			}
			seen := make(map[*Block]bool, len(phi.Pairs))
			for _, pair := range phi.Pairs {
				if !b.HasIncoming(pair.Pred) {
					return fmt.Errorf("block %d: phi names non-predecessor %d", b.id, pair.Pred.id)
				}
				if seen[pair.Pred] {
					return fmt.Errorf("block %d: phi names predecessor %d twice", b.id, pair.Pred.id)
				}
				seen[pair.Pred] = true
			}
		}
	}
	return nil
}

package markov

import (
	"fmt"
)

// Build folds a token sequence into a frequency table of order k.
//
// The states are every run of k consecutive tokens that starts before the
// last k tokens. For each pair of neighbouring states, the last token of the
// second is recorded as a successor of the first, so the final state has no
// successors unless it was seen earlier. States already present in existing
// keep their data; new ones are appended in the order they first appear.
//
// existing may be nil, in which case a new table is created. Otherwise it is
// updated in place and returned.
func Build(tokens []string, k int, existing *Table) (*Table, error) {
	if k <= 0 || k >= len(tokens) {
		return nil, fmt.Errorf("%w: %d for %d tokens", ErrInvalidOrder, k, len(tokens))
	}

	table := existing
	if table == nil {
		table = NewTable(k)
	}
	if table.Len() == 0 && table.order == 0 {
		table.order = k
	}
	if table.order != k {
		return nil, fmt.Errorf("%w: table has order %d, got %d", ErrOrderMismatch, table.order, k)
	}

	states := make([]string, len(tokens)-k)
	for i := range states {
		states[i] = stateKey(tokens[i : i+k])
		if err := table.AddState(states[i]); err != nil {
			return nil, err
		}
	}

	for i := 0; i < len(states)-1; i++ {
		// The last token of states[i+1] is tokens[i+k].
		if err := table.Observe(states[i], tokens[i+k], 1); err != nil {
			return nil, err
		}
	}

	return table, nil
}

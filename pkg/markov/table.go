package markov

import (
	"fmt"
	"strings"
)

// Transition is one observed successor of a state and how often it was seen.
type Transition struct {
	Token string
	Count int
}

// entry holds the successors of a single state in first-observed order.
type entry struct {
	index map[string]int
	next  []Transition
}

func newEntry() *entry {
	return &entry{index: make(map[string]int)}
}

func (e *entry) add(token string, count int) {
	if i, ok := e.index[token]; ok {
		e.next[i].Count += count
		return
	}
	e.index[token] = len(e.next)
	e.next = append(e.next, Transition{Token: token, Count: count})
}

func (e *entry) total() int {
	var total int
	for _, t := range e.next {
		total += t.Count
	}
	return total
}

// Table is a frequency table mapping each state (k tokens joined by single
// spaces) to the tokens observed after it. States and successors keep the
// order in which they were first added, so walking a table is deterministic.
//
// The zero value is an empty table whose order is fixed by the first state
// added. A Table is not safe for concurrent use.
type Table struct {
	order  int
	keys   []string
	states map[string]*entry
}

// NewTable returns an empty table for states of the given length. An order
// of 0 leaves the length unset until the first state is added.
func NewTable(order int) *Table {
	return &Table{
		order:  order,
		states: make(map[string]*entry),
	}
}

// Order returns the number of tokens per state.
func (t *Table) Order() int {
	return t.order
}

// Len returns the number of states in the table.
func (t *Table) Len() int {
	return len(t.keys)
}

// Keys returns all states in insertion order.
func (t *Table) Keys() []string {
	keys := make([]string, len(t.keys))
	copy(keys, t.keys)
	return keys
}

// Has reports whether state is a key of the table.
func (t *Table) Has(state string) bool {
	_, ok := t.states[state]
	return ok
}

// Successors returns a copy of the transitions recorded for state. The
// boolean is false when the state is not a key.
func (t *Table) Successors(state string) ([]Transition, bool) {
	e, ok := t.states[state]
	if !ok {
		return nil, false
	}
	next := make([]Transition, len(e.next))
	copy(next, e.next)
	return next, true
}

// Count returns how often next was observed after state.
func (t *Table) Count(state, next string) int {
	e, ok := t.states[state]
	if !ok {
		return 0
	}
	if i, ok := e.index[next]; ok {
		return e.next[i].Count
	}
	return 0
}

// AddState inserts state with no successors. Existing states are left as is.
func (t *Table) AddState(state string) error {
	if _, ok := t.states[state]; ok {
		return nil
	}
	if err := t.checkOrder(state); err != nil {
		return err
	}
	if t.states == nil {
		t.states = make(map[string]*entry)
	}
	t.keys = append(t.keys, state)
	t.states[state] = newEntry()
	return nil
}

// Observe records count more occurrences of next following state, adding
// the state first when needed. Counts must be positive.
func (t *Table) Observe(state, next string, count int) error {
	if count < 1 {
		return fmt.Errorf("%w: count %d for %q -> %q", ErrInvalidTable, count, state, next)
	}
	if err := t.AddState(state); err != nil {
		return err
	}
	t.states[state].add(next, count)
	return nil
}

// Merge adds every state and transition of other into t, summing counts.
// Both tables must share the same order.
func (t *Table) Merge(other *Table) error {
	if other.Len() == 0 {
		return nil
	}
	if t.order != 0 && other.order != t.order {
		return fmt.Errorf("%w: cannot merge order %d into order %d", ErrOrderMismatch, other.order, t.order)
	}
	for _, key := range other.keys {
		if err := t.AddState(key); err != nil {
			return err
		}
		for _, tr := range other.states[key].next {
			t.states[key].add(tr.Token, tr.Count)
		}
	}
	return nil
}

func (t *Table) checkOrder(state string) error {
	n := len(strings.Split(state, " "))
	if t.order == 0 {
		t.order = n
		return nil
	}
	if n != t.order {
		return fmt.Errorf("%w: state %q has %d tokens, table order is %d", ErrOrderMismatch, state, n, t.order)
	}
	return nil
}

// stateKey joins tokens into the canonical state representation.
func stateKey(tokens []string) string {
	return strings.Join(tokens, " ")
}

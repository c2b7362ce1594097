package inventory

import "sync"

// ItemChange describes the transition of one slot within an operation.
//
// After is always the final state of the slot at After.Index; mirror state by
// After.Index. Before is usually the same slot, except when contents moved:
// a swap records the other slot's previous contents, and the record for a
// merge target holds the source slot with only the quantity absorbed. Both
// report IsMoved, and a merge also reports IsMerged.
type ItemChange struct {
	// Before is the slot state before the change.
	Before Snapshot `json:"before"`
	// After is the slot state after the change.
	After Snapshot `json:"after"`
	// Discarded is set when slots were removed and no slot could take the
	// item. After holds the quantity that was lost.
	Discarded bool `json:"discarded"`
}

// IsMoved reports whether the contents changed slot position.
func (c ItemChange) IsMoved() bool {
	return c.Before.Index != c.After.Index
}

// IsMerged reports whether the contents moved and were stacked onto items
// already at the destination.
func (c ItemChange) IsMerged() bool {
	return c.IsMoved() && c.Before.Quantity < c.After.Quantity
}

// DiscardedQuantity returns the quantity dropped by this change, if any.
func (c ItemChange) DiscardedQuantity() int {
	if !c.Discarded || c.After.Quantity < 0 {
		return 0
	}
	return c.After.Quantity
}

// Change is the batch of item changes produced by a single operation.
//
// A Change is only valid for the duration of the listener call it is passed
// to. Items is backed by a pooled buffer that is reused as soon as every
// listener has returned; copy what you need to keep.
type Change struct {
	Items           []ItemChange
	SlotCountBefore int
	SlotCountAfter  int
}

// IsSlotCountChanged reports whether the operation resized the inventory.
func (c Change) IsSlotCountChanged() bool {
	return c.SlotCountBefore != c.SlotCountAfter
}

// DiscardedQuantity sums the quantity of every discarded item change.
func (c Change) DiscardedQuantity() int {
	total := 0
	for _, ic := range c.Items {
		total += ic.DiscardedQuantity()
	}
	return total
}

// Listener receives inventory changes synchronously.
type Listener interface {
	OnInventoryChanged(change Change)
}

var changeBufferPool = sync.Pool{
	New: func() any {
		buf := make([]ItemChange, 0, 16)
		return &buf
	},
}

// acquireChanges returns a pooled copy of src.
func acquireChanges(src []ItemChange) *[]ItemChange {
	buf := changeBufferPool.Get().(*[]ItemChange)
	*buf = append((*buf)[:0], src...)
	return buf
}

func releaseChanges(buf *[]ItemChange) {
	clear(*buf)
	*buf = (*buf)[:0]
	changeBufferPool.Put(buf)
}

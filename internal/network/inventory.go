package network

import "github.com/alimertcetin/xiv.filo.inventorysystem/pkg/inventory"

// Inventory is the read side the converters need.
type Inventory interface {
	SlotCount() int
	Capacity() int
	At(index int) inventory.Snapshot
}

// SlotFromSnapshot converts a snapshot to its wire form.
func SlotFromSnapshot(s inventory.Snapshot) SlotState {
	if s.IsEmpty() {
		return SlotState{Index: s.Index}
	}
	return SlotState{Index: s.Index, ItemID: string(s.Item.ID), Quantity: s.Quantity}
}

// StateOf copies the full contents of inv.
func StateOf(inv Inventory) InventoryStatePayload {
	n := inv.SlotCount()
	state := InventoryStatePayload{
		SlotCount: n,
		Capacity:  inv.Capacity(),
		Slots:     make([]SlotState, n),
	}
	for i := 0; i < n; i++ {
		state.Slots[i] = SlotFromSnapshot(inv.At(i))
	}
	return state
}

// ChangedFromBatch copies a change batch. The result does not alias the
// batch, so it stays valid after the listener returns.
func ChangedFromBatch(c inventory.Change) InventoryChangedPayload {
	out := InventoryChangedPayload{
		SlotCountBefore: c.SlotCountBefore,
		SlotCountAfter:  c.SlotCountAfter,
		Changes:         make([]SlotChange, len(c.Items)),
	}
	for i, ic := range c.Items {
		out.Changes[i] = SlotChange{
			Before:    SlotFromSnapshot(ic.Before),
			After:     SlotFromSnapshot(ic.After),
			Moved:     ic.IsMoved(),
			Merged:    ic.IsMerged(),
			Discarded: ic.Discarded,
		}
	}
	return out
}

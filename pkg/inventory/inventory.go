package inventory

import (
	"fmt"
	"math"
	"math/bits"
)

// DefaultSlotCount is the slot count used when none is configured.
const DefaultSlotCount = 8

// maxSlotCount is the largest power of two an int can hold, the ceiling for
// capacity doubling.
const maxSlotCount = 1 << (bits.UintSize - 2)

// Option configures inventory construction.
type Option func(*Inventory)

// WithSlotCount sets the initial number of slots. Negative values are
// treated as zero.
func WithSlotCount(n int) Option {
	return func(inv *Inventory) {
		inv.slotCount = max(n, 0)
	}
}

// WithListener registers a listener at construction time.
func WithListener(l Listener) Option {
	return func(inv *Inventory) {
		inv.Register(l)
	}
}

// WithInformListeners sets the initial notification state.
func WithInformListeners(enabled bool) Option {
	return func(inv *Inventory) {
		inv.informListeners = enabled
	}
}

// Inventory is a fixed-slot container of stackable items.
//
// An Inventory is not safe for concurrent use. Listeners run synchronously on
// the caller's goroutine; a listener may call back into the inventory, in
// which case the resulting changes are delivered as a separate batch once the
// current batch has reached every listener.
type Inventory struct {
	slots     []slot
	slotCount int

	informListeners bool
	listeners       []Listener

	// changes accumulates records until the next delivery.
	changes []ItemChange
	// deliveredSlotCount is the slot count at the last delivery.
	deliveredSlotCount int
	delivering         bool
}

// New creates an inventory with DefaultSlotCount slots unless configured
// otherwise. All slots start empty and listeners are informed by default.
func New(opts ...Option) *Inventory {
	inv := &Inventory{
		slotCount:       DefaultSlotCount,
		informListeners: true,
	}
	applyOptions(inv, opts...)

	capacity := nextPowerOfTwo(max(inv.slotCount, 2))
	inv.slots = make([]slot, capacity)
	inv.changes = make([]ItemChange, 0, capacity)
	inv.resetSlots(0, capacity)
	inv.deliveredSlotCount = inv.slotCount
	return inv
}

func applyOptions(inv *Inventory, opts ...Option) {
	for _, opt := range opts {
		if opt != nil {
			opt(inv)
		}
	}
}

// SlotCount returns the number of usable slots.
func (inv *Inventory) SlotCount() int { return inv.slotCount }

// Capacity returns the size of the backing slot array. It grows by doubling
// and never shrinks.
func (inv *Inventory) Capacity() int { return len(inv.slots) }

// At returns a snapshot of the slot at index. It panics if index is outside
// [0, SlotCount()).
func (inv *Inventory) At(index int) Snapshot {
	inv.mustBeValid(index)
	return inv.slots[index].snapshot()
}

// InformListeners reports whether listeners are currently notified.
func (inv *Inventory) InformListeners() bool { return inv.informListeners }

// SetInformListeners enables or disables notification. Changes are still
// recorded while disabled and are delivered as one batch when notification is
// enabled again. Call ClearRecordedChanges before enabling to drop them.
func (inv *Inventory) SetInformListeners(enabled bool) {
	inv.informListeners = enabled
	inv.notify()
}

// Register adds a listener. Registering the same listener twice has no
// effect; listeners must be comparable, typically pointers.
func (inv *Inventory) Register(l Listener) {
	if l == nil {
		return
	}
	for _, existing := range inv.listeners {
		if existing == l {
			return
		}
	}
	inv.listeners = append(inv.listeners, l)
}

// Unregister removes a listener.
func (inv *Inventory) Unregister(l Listener) {
	for i, existing := range inv.listeners {
		if existing != l {
			continue
		}
		// copy so an in-flight delivery keeps iterating the old list
		next := make([]Listener, 0, len(inv.listeners)-1)
		next = append(next, inv.listeners[:i]...)
		inv.listeners = append(next, inv.listeners[i+1:]...)
		return
	}
}

// ClearRecordedChanges drops every change recorded since the last delivery,
// including a pending slot count transition.
func (inv *Inventory) ClearRecordedChanges() {
	clear(inv.changes)
	inv.changes = inv.changes[:0]
	inv.deliveredSlotCount = inv.slotCount
}

// Contains reports whether any slot holds item.
func (inv *Inventory) Contains(item Item) bool {
	for i := 0; i < inv.slotCount; i++ {
		if inv.slots[i].holds(item) {
			return true
		}
	}
	return false
}

// Add stores as much of quantity as possible, first topping up slots that
// already hold item and then filling empty slots in index order.
// It returns the quantity that could not be added.
func (inv *Inventory) Add(item Item, quantity int) int {
	if quantity <= 0 {
		return quantity
	}
	for i := 0; i < inv.slotCount && quantity > 0; i++ {
		if !inv.slots[i].holds(item) {
			continue
		}
		quantity = inv.addExisting(i, quantity)
	}
	if quantity > 0 {
		quantity = inv.addNew(item, quantity)
	}
	inv.notify()
	return quantity
}

// Remove takes as much of quantity as possible from slots holding item, in
// index order. It returns the quantity that could not be removed.
func (inv *Inventory) Remove(item Item, quantity int) int {
	if quantity <= 0 {
		return quantity
	}
	for i := 0; i < inv.slotCount && quantity > 0; i++ {
		if !inv.slots[i].holds(item) {
			continue
		}
		quantity = inv.removeAt(i, quantity)
	}
	inv.notify()
	return quantity
}

// Clear empties every slot.
func (inv *Inventory) Clear() {
	inv.clearSlots()
	inv.notify()
}

// AddSlot appends count empty slots. It panics if the slot count would
// exceed the largest power-of-two capacity an int can hold.
func (inv *Inventory) AddSlot(count int) {
	if count <= 0 {
		return
	}
	if count > maxSlotCount-inv.slotCount {
		panic(fmt.Sprintf("inventory: cannot add %d slots to %d, limit is %d", count, inv.slotCount, maxSlotCount))
	}
	newSlotCount := inv.slotCount + count
	if capacity := len(inv.slots); capacity < newSlotCount {
		for capacity < newSlotCount {
			capacity *= 2
		}
		grown := make([]slot, capacity)
		copy(grown, inv.slots)
		inv.slots = grown
	}
	inv.resetSlots(inv.slotCount, newSlotCount)
	inv.slotCount = newSlotCount
	inv.notify()
}

// RemoveSlot removes the last count slots. Items in removed slots are merged
// into equal items of the remaining slots, starting from the last one, and
// whatever is left is moved to the highest empty slot. Items that fit nowhere
// are dropped and reported with ItemChange.Discarded set.
func (inv *Inventory) RemoveSlot(count int) {
	if count <= 0 {
		return
	}
	newSlotCount := inv.slotCount - count
	if newSlotCount > 0 {
		inv.removeSlots(newSlotCount)
		inv.notify()
		return
	}
	inv.clearSlots()
	inv.slotCount = 0
	inv.notify()
}

// Swap exchanges the contents of two slots, whether they are empty or not.
// It panics if an index is out of range.
func (inv *Inventory) Swap(index1, index2 int) {
	inv.mustBeValid(index1)
	inv.mustBeValid(index2)
	if index1 == index2 {
		return
	}
	inv.swap(index1, index2)
	inv.notify()
}

// CanMerge reports whether the items at index1 and index2 are equal and both
// slots are occupied. It panics if an index is out of range.
func (inv *Inventory) CanMerge(index1, index2 int) bool {
	inv.mustBeValid(index1)
	inv.mustBeValid(index2)
	return inv.canMerge(index1, index2)
}

// Merge moves as much as possible of index1 onto index2. It returns the
// quantity left at index1, or -1 when the slots cannot be merged.
func (inv *Inventory) Merge(index1, index2 int) int {
	if !inv.CanMerge(index1, index2) {
		return -1
	}
	remaining := inv.merge(index1, index2)
	inv.notify()
	return remaining
}

// Move drops the contents of index1 onto index2: equal items are merged,
// anything else is swapped.
func (inv *Inventory) Move(index1, index2 int) {
	if inv.CanMerge(index1, index2) {
		inv.Merge(index1, index2)
		return
	}
	inv.Swap(index1, index2)
}

func (inv *Inventory) mustBeValid(index int) {
	if index < 0 || index >= inv.slotCount {
		panic(fmt.Sprintf("inventory: slot index %d out of range [0,%d)", index, inv.slotCount))
	}
}

func (inv *Inventory) canMerge(index1, index2 int) bool {
	if index1 == index2 {
		return false
	}
	s1, s2 := &inv.slots[index1], &inv.slots[index2]
	return !s1.isEmpty() && !s2.isEmpty() && s1.item.Equal(s2.item)
}

// addExisting tops up the slot at index and returns the amount left over.
func (inv *Inventory) addExisting(index, amount int) int {
	s := &inv.slots[index]
	stackLeft := s.item.StackableQuantity - s.quantity
	if stackLeft <= 0 || amount <= 0 {
		return amount
	}
	before := s.snapshot()
	add := min(stackLeft, amount)
	s.quantity += add
	inv.record(before, index, false)
	return amount - add
}

// addNew fills empty slots with item and returns the amount left over.
func (inv *Inventory) addNew(item Item, amount int) int {
	for i := 0; i < inv.slotCount && amount > 0; i++ {
		s := &inv.slots[i]
		if !s.isEmpty() {
			continue
		}
		before := s.snapshot()
		add := min(item.StackableQuantity, amount)
		s.quantity = add
		s.item = item
		amount -= add
		inv.record(before, i, false)
	}
	return amount
}

// removeAt takes up to amount from the slot at index and returns the amount
// that could not be taken.
func (inv *Inventory) removeAt(index, amount int) int {
	s := &inv.slots[index]
	take := min(s.quantity, amount)
	if take <= 0 {
		return amount
	}
	before := s.snapshot()
	s.quantity -= take
	if s.quantity <= 0 {
		s.item = Item{}
	}
	inv.record(before, index, false)
	return amount - take
}

func (inv *Inventory) clearSlots() {
	for i := 0; i < inv.slotCount; i++ {
		inv.removeAt(i, math.MaxInt)
	}
}

// swap records each side as a move: the contents of index1 end up at index2
// and vice versa.
func (inv *Inventory) swap(index1, index2 int) {
	before1 := inv.slots[index1].snapshot()
	before2 := inv.slots[index2].snapshot()

	s1, s2 := &inv.slots[index1], &inv.slots[index2]
	s1.quantity, s2.quantity = s2.quantity, s1.quantity
	s1.item, s2.item = s2.item, s1.item

	inv.record(before1, index2, false)
	inv.record(before2, index1, false)
}

// merge pushes index1 onto index2 and returns what is left at index1. The
// record for index2 starts at index1 and carries only the absorbed quantity.
func (inv *Inventory) merge(index1, index2 int) int {
	source := inv.slots[index1].snapshot()
	target := &inv.slots[index2]
	moved := min(target.item.StackableQuantity-target.quantity, source.Quantity)
	if moved <= 0 {
		return source.Quantity
	}
	inv.removeAt(index1, moved)
	target.quantity += moved

	absorbed := source
	absorbed.Quantity = moved
	inv.record(absorbed, index2, false)
	return source.Quantity - moved
}

func (inv *Inventory) removeSlots(newSlotCount int) {
	for i := inv.slotCount - 1; i >= newSlotCount; i-- {
		if inv.slots[i].isEmpty() {
			continue
		}
		before := inv.slots[i].snapshot()
		if inv.distribute(i, newSlotCount) == 0 {
			continue
		}
		if empty := inv.lastEmptyIndex(newSlotCount); empty != -1 {
			inv.swap(i, empty)
			continue
		}
		inv.record(before, i, true)
		inv.slots[i] = slot{index: i}
	}
	inv.slotCount = newSlotCount
}

// distribute merges the slot at index into the slots below limit, starting
// from the last one, and returns the quantity left at index.
func (inv *Inventory) distribute(index, limit int) int {
	remaining := inv.slots[index].quantity
	for j := limit - 1; j >= 0 && remaining > 0; j-- {
		if inv.canMerge(index, j) {
			remaining = inv.merge(index, j)
		}
	}
	return remaining
}

func (inv *Inventory) lastEmptyIndex(limit int) int {
	for i := limit - 1; i >= 0; i-- {
		if inv.slots[i].isEmpty() {
			return i
		}
	}
	return -1
}

func (inv *Inventory) resetSlots(from, to int) {
	for i := from; i < to; i++ {
		inv.slots[i] = slot{index: i}
	}
}

func (inv *Inventory) record(before Snapshot, index int, discarded bool) {
	inv.changes = append(inv.changes, ItemChange{
		Before:    before,
		After:     inv.slots[index].snapshot(),
		Discarded: discarded,
	})
}

// notify delivers pending changes. Calls made while a delivery is in progress
// only queue their records; the outer call flushes them afterwards.
func (inv *Inventory) notify() {
	if inv.delivering {
		return
	}
	inv.delivering = true
	defer func() { inv.delivering = false }()

	for inv.informListeners && (len(inv.changes) > 0 || inv.deliveredSlotCount != inv.slotCount) {
		buf := acquireChanges(inv.changes)
		change := Change{
			Items:           *buf,
			SlotCountBefore: inv.deliveredSlotCount,
			SlotCountAfter:  inv.slotCount,
		}
		clear(inv.changes)
		inv.changes = inv.changes[:0]
		inv.deliveredSlotCount = inv.slotCount

		for _, l := range inv.listeners {
			l.OnInventoryChanged(change)
		}
		releaseChanges(buf)
	}
}

func nextPowerOfTwo(v int) int {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(v-1))
}

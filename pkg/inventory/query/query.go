// Package query provides read-only helpers over an inventory.
//
// Every function only relies on SlotCount and At, so any type exposing those
// two methods can be queried. Functions that return indices take a dst slice
// and append to it, letting hot paths reuse a buffer across calls.
package query

import (
	"sync"

	"github.com/alimertcetin/xiv.filo.inventorysystem/pkg/inventory"
)

// Reader is the read side of an inventory.
type Reader interface {
	SlotCount() int
	At(index int) inventory.Snapshot
}

// Match reports whether an item should be selected.
type Match func(item inventory.Item) bool

var indexPool = sync.Pool{
	New: func() any {
		buf := make([]int, 0, 32)
		return &buf
	},
}

func borrowIndices() *[]int {
	buf := indexPool.Get().(*[]int)
	*buf = (*buf)[:0]
	return buf
}

func returnIndices(buf *[]int) {
	indexPool.Put(buf)
}

func isItem(item inventory.Item) Match {
	return func(other inventory.Item) bool { return other.Equal(item) }
}

func isKind(kind inventory.Kind) Match {
	return func(other inventory.Item) bool { return other.Kind == kind }
}

func and(a, b Match) Match {
	if b == nil {
		return a
	}
	return func(item inventory.Item) bool { return a(item) && b(item) }
}

// OccupiedIndices appends the index of every occupied slot to dst.
func OccupiedIndices(r Reader, dst []int) []int {
	for i, n := 0, r.SlotCount(); i < n; i++ {
		if !r.At(i).IsEmpty() {
			dst = append(dst, i)
		}
	}
	return dst
}

// EmptyIndices appends the index of every empty slot to dst.
func EmptyIndices(r Reader, dst []int) []int {
	for i, n := 0, r.SlotCount(); i < n; i++ {
		if r.At(i).IsEmpty() {
			dst = append(dst, i)
		}
	}
	return dst
}

// OccupiedSlotCount returns the number of occupied slots.
func OccupiedSlotCount(r Reader) int {
	buf := borrowIndices()
	defer returnIndices(buf)
	*buf = OccupiedIndices(r, *buf)
	return len(*buf)
}

// EmptySlotCount returns the number of empty slots.
func EmptySlotCount(r Reader) int {
	buf := borrowIndices()
	defer returnIndices(buf)
	*buf = EmptyIndices(r, *buf)
	return len(*buf)
}

// IndicesOfFunc appends the index of every occupied slot whose item satisfies
// match.
func IndicesOfFunc(r Reader, dst []int, match Match) []int {
	for i, n := 0, r.SlotCount(); i < n; i++ {
		s := r.At(i)
		if !s.IsEmpty() && match(s.Item) {
			dst = append(dst, i)
		}
	}
	return dst
}

// IndicesOf appends the index of every slot holding item.
func IndicesOf(r Reader, item inventory.Item, dst []int) []int {
	return IndicesOfFunc(r, dst, isItem(item))
}

// IndicesOfKind appends the index of every slot holding an item of kind.
func IndicesOfKind(r Reader, kind inventory.Kind, dst []int) []int {
	return IndicesOfFunc(r, dst, isKind(kind))
}

// IndicesOfKindFunc narrows IndicesOfKind with match.
func IndicesOfKindFunc(r Reader, kind inventory.Kind, dst []int, match Match) []int {
	return IndicesOfFunc(r, dst, and(isKind(kind), match))
}

// ItemsOfFunc returns snapshots of every occupied slot whose item satisfies
// match, in index order.
func ItemsOfFunc(r Reader, match Match) []inventory.Snapshot {
	buf := borrowIndices()
	defer returnIndices(buf)
	*buf = IndicesOfFunc(r, *buf, match)
	if len(*buf) == 0 {
		return nil
	}
	out := make([]inventory.Snapshot, len(*buf))
	for i, idx := range *buf {
		out[i] = r.At(idx)
	}
	return out
}

// ItemsOf returns snapshots of every slot holding item.
func ItemsOf(r Reader, item inventory.Item) []inventory.Snapshot {
	return ItemsOfFunc(r, isItem(item))
}

// ItemsOfKind returns snapshots of every slot holding an item of kind.
func ItemsOfKind(r Reader, kind inventory.Kind) []inventory.Snapshot {
	return ItemsOfFunc(r, isKind(kind))
}

// ItemsOfKindFunc narrows ItemsOfKind with match.
func ItemsOfKindFunc(r Reader, kind inventory.Kind, match Match) []inventory.Snapshot {
	return ItemsOfFunc(r, and(isKind(kind), match))
}

// FirstOfFunc returns the lowest-index occupied slot whose item satisfies
// match.
func FirstOfFunc(r Reader, match Match) (inventory.Snapshot, bool) {
	for i, n := 0, r.SlotCount(); i < n; i++ {
		s := r.At(i)
		if !s.IsEmpty() && match(s.Item) {
			return s, true
		}
	}
	return inventory.InvalidSnapshot, false
}

// FirstOf returns the first slot holding item.
func FirstOf(r Reader, item inventory.Item) (inventory.Snapshot, bool) {
	return FirstOfFunc(r, isItem(item))
}

// FirstOfKind returns the first slot holding an item of kind.
func FirstOfKind(r Reader, kind inventory.Kind) (inventory.Snapshot, bool) {
	return FirstOfFunc(r, isKind(kind))
}

// CountOfFunc returns the number of occupied slots whose item satisfies
// match. It counts slots, not quantity.
func CountOfFunc(r Reader, match Match) int {
	count := 0
	for i, n := 0, r.SlotCount(); i < n; i++ {
		s := r.At(i)
		if !s.IsEmpty() && match(s.Item) {
			count++
		}
	}
	return count
}

// CountOf returns the number of slots holding item.
func CountOf(r Reader, item inventory.Item) int {
	return CountOfFunc(r, isItem(item))
}

// CountOfKind returns the number of slots holding an item of kind.
func CountOfKind(r Reader, kind inventory.Kind) int {
	return CountOfFunc(r, isKind(kind))
}

// CountOfKindFunc narrows CountOfKind with match.
func CountOfKindFunc(r Reader, kind inventory.Kind, match Match) int {
	return CountOfFunc(r, and(isKind(kind), match))
}

func quantityOf(r Reader, match Match) int {
	total := 0
	for i, n := 0, r.SlotCount(); i < n; i++ {
		s := r.At(i)
		if !s.IsEmpty() && match(s.Item) {
			total += s.Quantity
		}
	}
	return total
}

// QuantityOf sums the quantity of item across all slots.
func QuantityOf(r Reader, item inventory.Item) int {
	return quantityOf(r, isItem(item))
}

// QuantityOfKind sums the quantity of every item of kind.
func QuantityOfKind(r Reader, kind inventory.Kind) int {
	return quantityOf(r, isKind(kind))
}

// extreme scans matching slots and keeps the last one that ties or beats the
// current pick, so among equal quantities the highest index wins.
func extreme(r Reader, match Match, searchMax bool) (inventory.Snapshot, bool) {
	buf := borrowIndices()
	defer returnIndices(buf)
	*buf = IndicesOfFunc(r, *buf, match)

	current, found := inventory.InvalidSnapshot, false
	for _, idx := range *buf {
		s := r.At(idx)
		if !found || (searchMax && s.Quantity >= current.Quantity) || (!searchMax && s.Quantity <= current.Quantity) {
			current, found = s, true
		}
	}
	return current, found
}

// MinQuantityOf returns the slot holding item with the smallest quantity.
func MinQuantityOf(r Reader, item inventory.Item) (inventory.Snapshot, bool) {
	return extreme(r, isItem(item), false)
}

// MaxQuantityOf returns the slot holding item with the largest quantity.
func MaxQuantityOf(r Reader, item inventory.Item) (inventory.Snapshot, bool) {
	return extreme(r, isItem(item), true)
}

// MinQuantityOfKind returns the slot of kind with the smallest quantity.
func MinQuantityOfKind(r Reader, kind inventory.Kind) (inventory.Snapshot, bool) {
	return extreme(r, isKind(kind), false)
}

// MaxQuantityOfKind returns the slot of kind with the largest quantity.
func MaxQuantityOfKind(r Reader, kind inventory.Kind) (inventory.Snapshot, bool) {
	return extreme(r, isKind(kind), true)
}

// remainingAfterAdd mirrors Inventory.Add: matching stacks are topped up
// first, then empty slots are filled with stacks of size stackable.
func remainingAfterAdd(r Reader, match Match, stackable, quantity int) int {
	buf := borrowIndices()
	defer returnIndices(buf)

	*buf = IndicesOfFunc(r, *buf, match)
	for _, idx := range *buf {
		if quantity <= 0 {
			break
		}
		s := r.At(idx)
		if left := s.Item.StackableQuantity - s.Quantity; left > 0 {
			quantity -= min(left, quantity)
		}
	}
	if quantity <= 0 || stackable <= 0 {
		return quantity
	}

	*buf = EmptyIndices(r, (*buf)[:0])
	for range *buf {
		if quantity <= 0 {
			break
		}
		quantity -= min(stackable, quantity)
	}
	return quantity
}

func remainingAfterRemove(r Reader, match Match, quantity int) int {
	for i, n := 0, r.SlotCount(); i < n && quantity > 0; i++ {
		s := r.At(i)
		if !s.IsEmpty() && match(s.Item) {
			quantity -= min(s.Quantity, quantity)
		}
	}
	return quantity
}

// RemainingAfterAdd returns what Add(item, quantity) would leave over without
// mutating anything.
func RemainingAfterAdd(r Reader, item inventory.Item, quantity int) int {
	return remainingAfterAdd(r, isItem(item), item.StackableQuantity, quantity)
}

// RemainingAfterAddKind is RemainingAfterAdd for any item of kind. Existing
// stacks of kind are topped up to their own capacity and new stacks hold at
// most stackable.
func RemainingAfterAddKind(r Reader, kind inventory.Kind, stackable, quantity int) int {
	return remainingAfterAdd(r, isKind(kind), stackable, quantity)
}

// RemainingAfterRemove returns what Remove(item, quantity) would fail to take.
func RemainingAfterRemove(r Reader, item inventory.Item, quantity int) int {
	return remainingAfterRemove(r, isItem(item), quantity)
}

// RemainingAfterRemoveKind returns the quantity of kind that could not be
// taken.
func RemainingAfterRemoveKind(r Reader, kind inventory.Kind, quantity int) int {
	return remainingAfterRemove(r, isKind(kind), quantity)
}

// CanAdd reports whether all of quantity fits.
func CanAdd(r Reader, item inventory.Item, quantity int) bool {
	return RemainingAfterAdd(r, item, quantity) == 0
}

// CanAddKind reports whether all of quantity of kind fits.
func CanAddKind(r Reader, kind inventory.Kind, stackable, quantity int) bool {
	return RemainingAfterAddKind(r, kind, stackable, quantity) == 0
}

// CanRemove reports whether quantity of item can be removed completely.
func CanRemove(r Reader, item inventory.Item, quantity int) bool {
	return RemainingAfterRemove(r, item, quantity) == 0
}

// CanRemoveKind reports whether quantity of kind can be removed completely.
func CanRemoveKind(r Reader, kind inventory.Kind, quantity int) bool {
	return RemainingAfterRemoveKind(r, kind, quantity) == 0
}

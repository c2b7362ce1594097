package inventory

import (
	"errors"
	"sort"
	"sync"
)

// RegistryID is a numeric handle suitable for compact wire or storage use.
// IDs start at 1 and increment as new items are registered unless explicitly
// provided.
type RegistryID int64

var (
	ErrMissingID         = errors.New("inventory: item missing id")
	ErrInvalidStackSize  = errors.New("inventory: stackable quantity must be positive")
	ErrNumericIDMismatch = errors.New("inventory: numeric id mismatch for existing item")
	ErrNumericIDTaken    = errors.New("inventory: numeric id already assigned to another item")
	ErrNegativeNumericID = errors.New("inventory: numeric id must be positive")
)

type registryEntry struct {
	item      Item
	numericID RegistryID
}

// Registry stores item descriptors keyed by ItemID. It is safe for concurrent
// use, so a single registry can back every inventory of a server.
type Registry struct {
	mu     sync.RWMutex
	items  map[ItemID]registryEntry
	byID   map[RegistryID]ItemID
	nextID RegistryID
}

// NewRegistry constructs a registry seeded with items. Invalid items are
// skipped.
func NewRegistry(items ...Item) *Registry {
	r := &Registry{
		items: make(map[ItemID]registryEntry, len(items)),
		byID:  make(map[RegistryID]ItemID, len(items)),
	}
	for _, it := range items {
		_ = r.Register(it)
	}
	return r
}

// Register inserts or replaces an item and assigns it the next numeric id.
func (r *Registry) Register(item Item) error {
	return r.RegisterWithID(item, 0)
}

// RegisterWithID inserts or replaces an item under an explicit numeric id.
// A zero id keeps the existing id or assigns the next free one.
func (r *Registry) RegisterWithID(item Item, numericID RegistryID) error {
	if item.ID == "" {
		return ErrMissingID
	}
	if item.StackableQuantity <= 0 {
		return ErrInvalidStackSize
	}
	if numericID < 0 {
		return ErrNegativeNumericID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items == nil {
		r.items = make(map[ItemID]registryEntry)
	}
	if r.byID == nil {
		r.byID = make(map[RegistryID]ItemID)
	}

	if existing, ok := r.items[item.ID]; ok {
		if numericID == 0 {
			numericID = existing.numericID
		} else if numericID != existing.numericID {
			return ErrNumericIDMismatch
		}
	}

	if numericID == 0 {
		r.nextID++
		numericID = r.nextID
	} else {
		if owner, taken := r.byID[numericID]; taken && owner != item.ID {
			return ErrNumericIDTaken
		}
		if numericID > r.nextID {
			r.nextID = numericID
		}
	}

	r.items[item.ID] = registryEntry{item: item, numericID: numericID}
	r.byID[numericID] = item.ID
	return nil
}

// Lookup returns the item registered under id.
func (r *Registry) Lookup(id ItemID) (Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[id]
	return e.item, ok
}

// RegistryIDOf returns the numeric handle of id.
func (r *Registry) RegistryIDOf(id ItemID) (RegistryID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[id]
	return e.numericID, ok
}

// LookupByRegistryID returns an item using its numeric handle.
func (r *Registry) LookupByRegistryID(id RegistryID) (Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.byID[id]
	if !ok {
		return Item{}, false
	}
	e, ok := r.items[key]
	return e.item, ok
}

// Find reports whether an item equal to item is registered.
func (r *Registry) Find(item Item) (Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[item.ID]
	if !ok || !e.item.Equal(item) {
		return Item{}, false
	}
	return e.item, true
}

// ByKind returns every registered item of kind ordered by numeric id.
func (r *Registry) ByKind(kind Kind) []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var entries []registryEntry
	for _, e := range r.items {
		if e.item.Kind == kind {
			entries = append(entries, e)
		}
	}
	return sortedItems(entries)
}

// Export copies registry contents ordered by numeric id, suitable for
// sending to clients.
func (r *Registry) Export() []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.items) == 0 {
		return nil
	}
	entries := make([]registryEntry, 0, len(r.items))
	for _, e := range r.items {
		entries = append(entries, e)
	}
	return sortedItems(entries)
}

func sortedItems(entries []registryEntry) []Item {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].numericID < entries[j].numericID
	})
	out := make([]Item, len(entries))
	for i, e := range entries {
		out[i] = e.item
	}
	return out
}

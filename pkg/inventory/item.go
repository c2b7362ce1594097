// Package inventory provides a fixed-slot stacking inventory. Slots hold a
// quantity of a single item; equal items stack up to their stackable quantity.
// Every mutation is reported to registered listeners as a batched Change.
package inventory

// ItemID represents an application-defined identifier for an item.
type ItemID string

// Kind groups items into concrete categories (weapon, potion, ...). Queries
// "by type" match on Kind.
type Kind string

// Item describes a stackable item. Items are compared by value: two slots
// holding equal items can be stacked and merged.
type Item struct {
	ID          ItemID `json:"id" yaml:"id"`
	Kind        Kind   `json:"kind" yaml:"kind"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
	// StackableQuantity is the maximum quantity of this item in one slot.
	// It must be greater than zero.
	StackableQuantity int `json:"stackable_quantity" yaml:"stackable_quantity"`
}

// Equal reports whether two items are the same item for stacking purposes.
func (it Item) Equal(other Item) bool {
	return it == other
}

// IsZero reports whether the item is the zero descriptor held by empty slots.
func (it Item) IsZero() bool {
	return it == Item{}
}

package inventory

// slot is a single position of the inventory array.
type slot struct {
	index    int
	quantity int
	item     Item
}

func (s *slot) isEmpty() bool { return s.quantity <= 0 }

// holds reports whether the slot is occupied by an item equal to item.
func (s *slot) holds(item Item) bool {
	return !s.isEmpty() && s.item.Equal(item)
}

func (s *slot) snapshot() Snapshot {
	return Snapshot{Index: s.index, Quantity: s.quantity, Item: s.item}
}

// Snapshot is a read-only copy of a slot at a point in time.
type Snapshot struct {
	// Index points to the slot position in the inventory.
	Index int `json:"index"`
	// Quantity of the item. Zero or less means the slot is empty.
	Quantity int `json:"quantity"`
	// Item stored in the slot. Meaningless when the slot is empty.
	Item Item `json:"item"`
}

// InvalidSnapshot is returned where no slot could be resolved.
var InvalidSnapshot = Snapshot{Index: -1, Quantity: -1}

// IsEmpty reports whether the snapshot describes an empty slot.
func (s Snapshot) IsEmpty() bool { return s.Quantity <= 0 }

// Equal reports whether index, quantity and item all match.
func (s Snapshot) Equal(other Snapshot) bool {
	return s.Index == other.Index && s.Quantity == other.Quantity && s.Item.Equal(other.Item)
}

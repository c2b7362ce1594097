package catalog

// DefaultKit is the built-in catalog's kit that config selects when neither a
// catalog file nor a starter kit is configured.
const DefaultKit = "starter"

// Default returns a small, sci-fi flavored catalog used when no catalog file
// is configured.
func Default() *Catalog {
	items := []ItemEntry{
		{ID: "smartmatter", NumericID: 1, Kind: "resource", Name: "Smart Matter Feedstock", StackableQuantity: 50},
		{ID: "diamondite", NumericID: 2, Kind: "resource", Name: "Diamondite Bulk", StackableQuantity: 20},
		{ID: "energy-cell", NumericID: 3, Kind: "resource", Name: "Energy Cell Pack", StackableQuantity: 25},
		{ID: "nanoforge", NumericID: 4, Kind: "module", Name: "Nanoforge Unit", StackableQuantity: 1},
		{ID: "knife-missile", NumericID: 5, Kind: "weapon", Name: "Knife Missile", StackableQuantity: 4},
		{ID: "field-projector", NumericID: 6, Kind: "module", Name: "Field Projector", StackableQuantity: 1},
		{ID: "gridfire-projector", NumericID: 7, Kind: "weapon", Name: "Gridfire Projector", StackableQuantity: 1},
		{ID: "drone-bay", NumericID: 8, Kind: "module", Name: "Drone Bay", StackableQuantity: 1},
	}
	kits := map[string]Kit{
		DefaultKit: {
			SlotCount: 8,
			Items: []KitEntry{
				{Item: "smartmatter", Quantity: 10},
				{Item: "diamondite", Quantity: 3},
				{Item: "energy-cell", Quantity: 20},
				{Item: "knife-missile", Quantity: 2},
			},
		},
		"engineer": {
			SlotCount: 4,
			Items: []KitEntry{
				{Item: "nanoforge", Quantity: 1},
				{Item: "field-projector", Quantity: 1},
				{Item: "drone-bay", Quantity: 1},
			},
		},
	}

	c, err := build(items, kits)
	if err != nil {
		panic(err)
	}
	return c
}

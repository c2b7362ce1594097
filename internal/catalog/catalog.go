// Package catalog loads item definitions and starter kits from YAML and seeds
// new inventories from them.
package catalog

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/alimertcetin/xiv.filo.inventorysystem/pkg/inventory"
)

var (
	ErrUnknownKit  = errors.New("catalog: unknown kit")
	ErrUnknownItem = errors.New("catalog: unknown item")
	ErrDuplicateID = errors.New("catalog: duplicate item id")
)

// ItemEntry is an item definition as written in a catalog file.
type ItemEntry struct {
	ID                string `yaml:"id"`
	NumericID         int64  `yaml:"numeric_id"`
	Kind              string `yaml:"kind"`
	Name              string `yaml:"name"`
	Description       string `yaml:"description"`
	StackableQuantity int    `yaml:"stackable_quantity"`
}

func (e ItemEntry) item() inventory.Item {
	return inventory.Item{
		ID:                inventory.ItemID(e.ID),
		Kind:              inventory.Kind(e.Kind),
		Name:              e.Name,
		Description:       e.Description,
		StackableQuantity: e.StackableQuantity,
	}
}

// KitEntry is one starting stack of a kit.
type KitEntry struct {
	Item     string `yaml:"item"`
	Quantity int    `yaml:"quantity"`
}

// Kit describes the initial layout of an inventory.
type Kit struct {
	SlotCount int        `yaml:"slot_count"`
	Items     []KitEntry `yaml:"items"`
}

type document struct {
	Items []ItemEntry    `yaml:"items"`
	Kits  map[string]Kit `yaml:"kits"`
}

// Catalog couples an item registry with named starter kits.
type Catalog struct {
	registry *inventory.Registry
	kits     map[string]Kit
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse builds a catalog from YAML. Every kit entry must reference a defined
// item.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return build(doc.Items, doc.Kits)
}

func build(items []ItemEntry, kits map[string]Kit) (*Catalog, error) {
	reg := inventory.NewRegistry()
	for _, e := range items {
		if _, exists := reg.Lookup(inventory.ItemID(e.ID)); exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, e.ID)
		}
		if err := reg.RegisterWithID(e.item(), inventory.RegistryID(e.NumericID)); err != nil {
			return nil, fmt.Errorf("item %q: %w", e.ID, err)
		}
	}

	for name, kit := range kits {
		for _, entry := range kit.Items {
			if _, ok := reg.Lookup(inventory.ItemID(entry.Item)); !ok {
				return nil, fmt.Errorf("kit %q: %w: %s", name, ErrUnknownItem, entry.Item)
			}
		}
	}
	if kits == nil {
		kits = map[string]Kit{}
	}
	return &Catalog{registry: reg, kits: kits}, nil
}

// Registry returns the item registry backing the catalog.
func (c *Catalog) Registry() *inventory.Registry { return c.registry }

// Kit returns the named kit.
func (c *Catalog) Kit(name string) (Kit, bool) {
	kit, ok := c.kits[name]
	return kit, ok
}

// KitNames lists kit names in lexical order.
func (c *Catalog) KitNames() []string {
	names := make([]string, 0, len(c.kits))
	for name := range c.kits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewInventory creates an inventory sized and seeded from the named kit. An
// empty name yields an empty inventory with the default slot count. opts are
// applied after the kit's slot count, so they may override it.
func (c *Catalog) NewInventory(kitName string, opts ...inventory.Option) (*inventory.Inventory, error) {
	if kitName == "" {
		return inventory.New(opts...), nil
	}
	kit, ok := c.kits[kitName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKit, kitName)
	}

	all := make([]inventory.Option, 0, len(opts)+1)
	if kit.SlotCount > 0 {
		all = append(all, inventory.WithSlotCount(kit.SlotCount))
	}
	inv := inventory.New(append(all, opts...)...)
	c.Seed(inv, kitName, kit)
	return inv, nil
}

// Seed adds the kit's stacks to inv in order. Entries with a non-positive
// quantity are logged and skipped. When the inventory overflows the leftover
// is logged and seeding stops.
func (c *Catalog) Seed(inv *inventory.Inventory, kitName string, kit Kit) {
	for i, entry := range kit.Items {
		if entry.Quantity <= 0 {
			log.Printf("catalog: kit %q entry %d (%s) has quantity %d, skipping", kitName, i, entry.Item, entry.Quantity)
			continue
		}
		item, ok := c.registry.Lookup(inventory.ItemID(entry.Item))
		if !ok {
			log.Printf("catalog: kit %q entry %d references unknown item %s, skipping", kitName, i, entry.Item)
			continue
		}
		if remaining := inv.Add(item, entry.Quantity); remaining > 0 {
			log.Printf("catalog: kit %q does not fit, %d of %s left over, stopping", kitName, remaining, entry.Item)
			return
		}
	}
}

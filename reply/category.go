package reply

import (
	"fmt"

	"github.com/arin-halvorsen/scoped/errs"
)

// Category is a labelled bucket for results within a single reply. Its id
// is unique within that reply and its lifetime matches the reply's.
type Category struct {
	ID               string
	Title            string
	Icon             string
	RendererTemplate string
}

// categoryTable is a per-reply mapping from category id to Category. It is
// not thread-safe on its own — Reply serialises access with its own mutex,
// the same division of responsibility as the teacher's service.Registry
// (a bare map guarded entirely by the owning object's lock).
type categoryTable struct {
	byID map[string]Category
}

func newCategoryTable() *categoryTable {
	return &categoryTable{byID: make(map[string]Category)}
}

// register inserts cat, failing if its id is already present.
func (t *categoryTable) register(cat Category) error {
	if cat.ID == "" {
		return fmt.Errorf("reply: register category: %w: empty id", errs.ErrInvalidArgument)
	}
	if _, exists := t.byID[cat.ID]; exists {
		return fmt.Errorf("reply: register category: %w: category %q already registered", errs.ErrInvalidArgument, cat.ID)
	}
	t.byID[cat.ID] = cat
	return nil
}

// lookup returns the category for id, if registered.
func (t *categoryTable) lookup(id string) (Category, bool) {
	cat, ok := t.byID[id]
	return cat, ok
}

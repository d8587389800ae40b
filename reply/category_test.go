package reply

import (
	"errors"
	"testing"

	"github.com/arin-halvorsen/scoped/errs"
)

func TestCategoryTableRegisterRejectsEmptyID(t *testing.T) {
	tbl := newCategoryTable()
	err := tbl.register(Category{Title: "Files"})
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
}

func TestCategoryTableRegisterRejectsDuplicate(t *testing.T) {
	tbl := newCategoryTable()
	if err := tbl.register(Category{ID: "c"}); err != nil {
		t.Fatal(err)
	}
	err := tbl.register(Category{ID: "c"})
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
}

func TestCategoryTableLookup(t *testing.T) {
	tbl := newCategoryTable()
	cat := Category{ID: "c", Title: "Files"}
	if err := tbl.register(cat); err != nil {
		t.Fatal(err)
	}

	got, ok := tbl.lookup("c")
	if !ok || got != cat {
		t.Fatalf("lookup(%q) = %v, %v; want %v, true", "c", got, ok, cat)
	}

	if _, ok := tbl.lookup("missing"); ok {
		t.Fatal("lookup(missing) = true, want false")
	}
}

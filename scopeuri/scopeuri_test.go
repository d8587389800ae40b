package scopeuri_test

import (
	"errors"
	"testing"

	"github.com/arin-halvorsen/scoped/errs"
	"github.com/arin-halvorsen/scoped/scopeuri"
)

func TestRoundTrip(t *testing.T) {
	cases := []scopeuri.CannedQuery{
		{ScopeID: "files", Query: "budget.xlsx"},
		{ScopeID: "files", Query: "q1 report", Department: "finance"},
		{ScopeID: "music", Query: "", Department: "", FilterState: "artist=radiohead"},
		{ScopeID: "web", Query: "golang concurrency patterns & tips"},
	}
	for _, want := range cases {
		got, err := scopeuri.FromURI(scopeuri.ToURI(want))
		if err != nil {
			t.Fatalf("FromURI(ToURI(%+v)): %v", want, err)
		}
		if got != want {
			t.Fatalf("round trip = %+v, want %+v", got, want)
		}
	}
}

func TestToURIPreservesFieldOrder(t *testing.T) {
	q := scopeuri.CannedQuery{ScopeID: "s", Query: "x y", Department: "d"}
	want := "scope://s?q=x+y&dept=d"
	if got := scopeuri.ToURI(q); got != want {
		t.Fatalf("ToURI(%+v) = %q, want %q", q, got, want)
	}
}

func TestFromURIRejectsWrongScheme(t *testing.T) {
	if _, err := scopeuri.FromURI("http://files?q=x"); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestFromURIRejectsMissingScopeID(t *testing.T) {
	if _, err := scopeuri.FromURI("scope://"); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestFromURIRejectsGarbage(t *testing.T) {
	if _, err := scopeuri.FromURI("://not a url"); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

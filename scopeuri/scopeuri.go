// Package scopeuri codecs canned queries to and from the scope:// URI
// scheme: scope://SCOPE_ID?q=QUERY&dept=DEPT&filters=STATE.
package scopeuri

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/arin-halvorsen/scoped/errs"
)

const scheme = "scope"

// CannedQuery is a fully-described search request: a scope id, query text,
// and optional department and filter state.
type CannedQuery struct {
	ScopeID     string
	Query       string
	Department  string
	FilterState string
}

// ToURI serialises q to its canonical scope:// form. The query string is
// built by hand rather than via url.Values.Encode, which sorts parameters
// alphabetically: the canonical form preserves q, then dept, then filters,
// the order CannedQuery's own fields are declared in.
func ToURI(q CannedQuery) string {
	u := url.URL{Scheme: scheme, Host: q.ScopeID}

	var pairs []string
	if q.Query != "" {
		pairs = append(pairs, "q="+url.QueryEscape(q.Query))
	}
	if q.Department != "" {
		pairs = append(pairs, "dept="+url.QueryEscape(q.Department))
	}
	if q.FilterState != "" {
		pairs = append(pairs, "filters="+url.QueryEscape(q.FilterState))
	}
	u.RawQuery = strings.Join(pairs, "&")
	return u.String()
}

// FromURI parses a scope:// URI back into a CannedQuery. FromURI(ToURI(q))
// always reproduces q for any well-formed q.
func FromURI(raw string) (CannedQuery, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return CannedQuery{}, fmt.Errorf("scopeuri: parse %q: %w: %v", raw, errs.ErrInvalidArgument, err)
	}
	if u.Scheme != scheme {
		return CannedQuery{}, fmt.Errorf("scopeuri: parse %q: %w: scheme must be %q", raw, errs.ErrInvalidArgument, scheme)
	}
	if u.Host == "" {
		return CannedQuery{}, fmt.Errorf("scopeuri: parse %q: %w: missing scope id", raw, errs.ErrInvalidArgument)
	}

	values, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return CannedQuery{}, fmt.Errorf("scopeuri: parse %q: %w: %v", raw, errs.ErrInvalidArgument, err)
	}

	return CannedQuery{
		ScopeID:     u.Host,
		Query:       values.Get("q"),
		Department:  values.Get("dept"),
		FilterState: values.Get("filters"),
	}, nil
}

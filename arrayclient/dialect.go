package arrayclient

import "net/url"

// namesQuery builds the v2-style query-string encoding of a names filter.
// v1 call sites instead append the name as a path segment; each resource
// file picks whichever of namesQuery/path-segment fits its own version
// branch rather than centralizing that choice here, since the two dialects
// don't just rename a parameter, they move it between URL and query.
func namesQuery(names ...string) url.Values {
	v := url.Values{}
	if len(names) > 0 {
		v.Set("names", joinComma(names))
	}
	return v
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

// filterQuery builds a v2 "filter" expression for glob-style listing, e.g.
// name matching a prefix pattern. v1 has no server-side glob and relies on
// the caller listing everything and filtering client-side.
func filterQuery(expr string) url.Values {
	v := url.Values{}
	if expr != "" {
		v.Set("filter", expr)
	}
	return v
}

// v2Envelope unwraps the v2 "{items: [...]}" collection envelope. v1 resource
// files unmarshal directly into a bare slice and never call this.
type v2Envelope[T any] struct {
	Items []T `json:"items"`
}

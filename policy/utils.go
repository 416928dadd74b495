package policy

import (
	"strings"
)

// Lookup resolves a dotted path such as "this.owner" against the context.
// The first segment selects the requester, this or params document.
func (c RequestContext) Lookup(path string) (any, bool) {
	root, rest, _ := strings.Cut(path, ".")

	var doc map[string]any
	switch root {
	case "requester":
		doc = c.Requester
	case "this":
		doc = c.This
	case "params":
		doc = c.Params
	default:
		return nil, false
	}
	if rest == "" {
		return doc, doc != nil
	}

	var value any = doc
	for _, segment := range strings.Split(rest, ".") {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}
		value, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return value, true
}

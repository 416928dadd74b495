package policy

type Conclusion int

const (
	UNSET Conclusion = iota
	OK
	NG
	ALLOW
	DENY
)

var conclusionNames = map[Conclusion]string{
	UNSET: "unset",
	OK:    "ok",
	NG:    "ng",
	ALLOW: "allow",
	DENY:  "deny",
}

// ParseConclusion maps a statement's emit value. Unknown values are UNSET.
func ParseConclusion(s string) Conclusion {
	for c, name := range conclusionNames {
		if name == s {
			return c
		}
	}
	return UNSET
}

func (c Conclusion) String() string {
	if name, ok := conclusionNames[c]; ok {
		return name
	}
	return "unset"
}

// strong reports whether c is a hard decision. Hard decisions outrank soft
// ones (OK, NG) regardless of order.
func (c Conclusion) strong() bool {
	return c == ALLOW || c == DENY
}

// Or merges two conclusions. Opposing decisions of the same strength cancel
// out to UNSET, DENY outranks everything else.
func (c Conclusion) Or(other Conclusion) Conclusion {
	switch {
	case c == UNSET:
		return other
	case other == UNSET, c == other:
		return c
	case c.strong() && other.strong():
		return UNSET
	case c == DENY || other == DENY:
		return DENY
	case c.strong():
		return c
	case other.strong():
		return other
	}
	// OK against NG
	return UNSET
}

// RequestContext is the document the Load operator reads from.
type RequestContext struct {
	Requester map[string]any `json:"requester"`
	This      map[string]any `json:"this"`
	Params    map[string]any `json:"params"`
}

type PolicyDocument struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Versions    map[string]Policy `json:"versions"`
}

type Policy struct {
	Statements map[string][]Stmt `json:"statements"`
	Defaults   map[string]bool   `json:"defaults"`
}

type Stmt struct {
	Emit      string `json:"emit"`
	Condition Expr   `json:"condition"`
}

type Expr struct {
	Operator string `json:"op"`
	Args     []Expr `json:"args"`
	Const    any    `json:"const,omitempty"`
}

type EvalResult struct {
	Operator string       `json:"op"`
	Args     []EvalResult `json:"args"`
	Result   any          `json:"result"`
	Error    string       `json:"error"`
}

package mapper

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrDenied marks errors caused by a type name the policy rejects.
var ErrDenied = errors.New("mapper: type denied by policy")

type rule struct {
	pattern string
	allow   bool
}

// Policy decides which object type names may be encoded or decoded. Rules
// are checked in order and the first match wins. A pattern ending in '*'
// matches any name with that prefix; other patterns match exactly.
type Policy struct {
	rules        []rule
	defaultAllow bool
}

// NewPolicy returns a policy that allows names no rule matches when
// defaultAllow is set.
func NewPolicy(defaultAllow bool) *Policy {
	return &Policy{defaultAllow: defaultAllow}
}

// Allow appends an allow rule.
func (p *Policy) Allow(pattern string) *Policy {
	p.rules = append(p.rules, rule{pattern: pattern, allow: true})
	return p
}

// Deny appends a deny rule.
func (p *Policy) Deny(pattern string) *Policy {
	p.rules = append(p.rules, rule{pattern: pattern})
	return p
}

// Allowed reports whether name passes the policy. A nil policy allows
// everything.
func (p *Policy) Allowed(name string) bool {
	if p == nil {
		return true
	}
	for _, r := range p.rules {
		if match(r.pattern, name) {
			return r.allow
		}
	}
	return p.defaultAllow
}

// Check returns an error marked ErrDenied if name is not allowed.
func (p *Policy) Check(name string) error {
	if p.Allowed(name) {
		return nil
	}
	return errors.Mark(errors.Newf("mapper: type %q is not allowed", name), ErrDenied)
}

func match(pattern, name string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(name, prefix)
	}
	return pattern == name
}

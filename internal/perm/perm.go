// Package perm implements the permission grammar used by role definitions and
// the authorization pipeline. A permission is "<resource>:<action>", the
// resource wildcard "<resource>:*", or the unrestricted grant "*".
package perm

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Wildcard grants every permission check.
const Wildcard = "*"

const separator = ":"

// ErrMalformed indicates a permission string that does not follow the grammar.
var ErrMalformed = errors.New("perm: malformed permission")

// Closed action keyword set. "manage" is accepted on input and collapses to
// "write" during normalization.
var actions = map[string]struct{}{
	"read":   {},
	"write":  {},
	"delete": {},
	"export": {},
	Wildcard: {},
}

const manageAlias = "manage"

// Validate reports whether p is a well-formed permission string. Validation
// happens at role create/update time only; Grants never validates.
func Validate(p string) error {
	p = strings.TrimSpace(p)
	if p == Wildcard {
		return nil
	}
	resource, action, ok := strings.Cut(p, separator)
	if !ok {
		return fmt.Errorf("%w: %q missing separator", ErrMalformed, p)
	}
	if resource == "" {
		return fmt.Errorf("%w: %q has empty resource", ErrMalformed, p)
	}
	if action == "" {
		return fmt.Errorf("%w: %q has empty action", ErrMalformed, p)
	}
	if strings.Contains(action, separator) {
		return fmt.Errorf("%w: %q has multiple separators", ErrMalformed, p)
	}
	if action == manageAlias {
		return nil
	}
	if _, known := actions[action]; !known {
		return fmt.Errorf("%w: %q has unknown action", ErrMalformed, p)
	}
	return nil
}

// Normalize validates every entry, collapses aliases, lower-cases, removes
// duplicates and returns a sorted canonical list. A single "*" swallows the
// rest of the list.
func Normalize(list []string) ([]string, error) {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, p := range list {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if err := Validate(p); err != nil {
			return nil, err
		}
		if p == Wildcard {
			return []string{Wildcard}, nil
		}
		resource, action, _ := strings.Cut(p, separator)
		if action == manageAlias {
			action = "write"
		}
		canonical := resource + separator + action
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	sort.Strings(out)
	return out, nil
}

// Grants reports whether the held permission satisfies the required one.
// Grants is a total function: malformed input already in storage can only
// fail to match, never error.
func Grants(held, required string) bool {
	if held == Wildcard {
		return true
	}
	if held == required {
		return true
	}
	heldResource, heldAction, ok := strings.Cut(held, separator)
	if !ok || heldAction != Wildcard {
		return false
	}
	requiredResource, _, ok := strings.Cut(required, separator)
	if !ok {
		return false
	}
	return heldResource == requiredResource
}

// SetGrants reports whether any permission in the held set satisfies required.
func SetGrants(held []string, required string) bool {
	for _, h := range held {
		if Grants(h, required) {
			return true
		}
	}
	return false
}

// FirstUnmet returns the first required permission not satisfied by the held
// set, or "" when everything is granted. The pipeline uses it to name the
// missing permission in a rejection.
func FirstUnmet(held, required []string) string {
	for _, req := range required {
		if !SetGrants(held, req) {
			return req
		}
	}
	return ""
}

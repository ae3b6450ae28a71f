package depgraph

import (
	"slices"
	"strings"
)

// splitGeneric splits "pkg.Repo[pkg.User, int]" into "pkg.Repo" and its type arguments.
func splitGeneric(s string) (name string, args []string, ok bool) {
	open := strings.IndexByte(s, '[')
	if open <= 0 || !strings.HasSuffix(s, "]") {
		return s, nil, false
	}
	name = s[:open]
	inner := s[open+1 : len(s)-1]
	depth := 0
	start := 0
	for i, r := range inner {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(inner[start:i]))
				start = i + 1
			}
		}
	}
	args = append(args, strings.TrimSpace(inner[start:]))
	return name, args, true
}

// matchGeneric returns true if target is an instantiation of pattern, where params are the type parameters of
// pattern.
func matchGeneric(pattern, target string, params []string) bool {
	return unify(pattern, target, params, map[string]string{})
}

func unify(pattern, target string, params []string, bindings map[string]string) bool {
	if slices.Contains(params, pattern) {
		if bound, ok := bindings[pattern]; ok {
			return bound == target
		}
		bindings[pattern] = target
		return true
	}
	pname, pargs, pok := splitGeneric(pattern)
	tname, targs, tok := splitGeneric(target)
	if !pok || !tok {
		return pattern == target
	}
	if pname != tname || len(pargs) != len(targs) {
		return false
	}
	for i := range pargs {
		if !unify(pargs[i], targs[i], params, bindings) {
			return false
		}
	}
	return true
}

// GenericName strips type arguments, eg. "pkg.Repo[pkg.User]" becomes "pkg.Repo".
func GenericName(s string) string {
	name, _, _ := splitGeneric(s)
	return name
}

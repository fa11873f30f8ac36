package wire

import "strings"

// Switch is one (name, value) pair extracted from the client's argument
// vector, per spec.md §3. Names are stored without their leading dashes;
// short forms are canonicalised to their long names per spec.md's explicit
// rule for -e/-E/-L.
type Switch struct {
	Name  string
	Value string
}

// shortToLong canonicalises the three short switches spec.md §3 names
// explicitly. Other short switches (-v, -h, -i, -q) are left as their bare
// single-letter name; callers match both forms when checking for them.
var shortToLong = map[string]string{
	"e": "eval",
	"E": "print",
	"L": "load",
}

// valueSwitches lists switch names (long form) that consume the following
// token as their value, per spec.md §6's switch table.
var valueSwitches = map[string]bool{
	"eval":         true,
	"print":        true,
	"load":         true,
	"project":      true,
	"banner":       true,
	"color":        true,
	"history-file": true,
	"status":       true,
}

// ClientArgs is the result of parsing a client's raw argument vector per
// spec.md §3: the ordered switches, the optional program file, and the
// program's own arguments (everything after the program file, or after a
// bare "--").
type ClientArgs struct {
	Switches    []Switch
	ProgramFile *string
	ProgramArgs []string
}

// ParseSwitches implements spec.md §3's switch-parsing rule: switches are
// consumed in order until a bare "--" (which terminates switch parsing and
// makes the next token the program file) or a token that isn't recognised
// as a switch (which becomes the program file directly, keeping the "--"
// semantics symmetric for programs invoked without it).
func ParseSwitches(args []string) ClientArgs {
	var result ClientArgs

	i := 0
	for i < len(args) {
		tok := args[i]

		if tok == "--" {
			i++
			if i < len(args) {
				pf := args[i]
				result.ProgramFile = &pf
				i++
			}
			result.ProgramArgs = append(result.ProgramArgs, args[i:]...)
			return result
		}

		name, eqValue, hasEq, ok := switchName(tok)
		if !ok {
			// First non-switch token is the program file; everything after
			// it is the program's own argument list, untouched.
			pf := tok
			result.ProgramFile = &pf
			result.ProgramArgs = append(result.ProgramArgs, args[i+1:]...)
			return result
		}

		if canon, isShort := shortToLong[name]; isShort {
			name = canon
		}

		sw := Switch{Name: name}
		switch {
		case hasEq:
			sw.Value = eqValue
			i++
		case valueSwitches[name]:
			if i+1 < len(args) {
				sw.Value = args[i+1]
				i += 2
			} else {
				sw.Value = ""
				i++
			}
		default:
			i++
		}

		result.Switches = append(result.Switches, sw)
	}

	return result
}

// switchName reports whether tok looks like a switch, returning its bare
// name (without dashes), any "--name=value" inline value, and whether an
// inline value was present.
func switchName(tok string) (name string, value string, hasValue bool, ok bool) {
	if len(tok) < 2 || tok[0] != '-' {
		return "", "", false, false
	}
	if tok[1] == '-' {
		if len(tok) == 2 {
			return "", "", false, false // bare "--" handled by caller
		}
		body := tok[2:]
		if idx := strings.IndexByte(body, '='); idx >= 0 {
			return body[:idx], body[idx+1:], true, true
		}
		return body, "", false, true
	}
	return tok[1:2], "", false, true
}

// Has reports whether switches contains either name or its short form
// (single-letter) occurrence — used for the client-served dispatch checks
// in spec.md §4.4 ("Contains -h/--help" etc.).
func Has(switches []Switch, long string, short string) bool {
	for _, s := range switches {
		if s.Name == long || (short != "" && s.Name == short) {
			return true
		}
	}
	return false
}

// Last returns the value and true for the last occurrence of name among
// switches, scanning the whole slice — spec.md §9 explicitly forbids
// short-circuiting on the first occurrence when resolving --project.
func Last(switches []Switch, name string) (string, bool) {
	value, ok := "", false
	for _, s := range switches {
		if s.Name == name {
			value, ok = s.Value, true
		}
	}
	return value, ok
}

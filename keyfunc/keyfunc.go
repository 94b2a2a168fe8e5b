// Package keyfunc turns a function identity plus call arguments into a cache key.
//
// Keys are deterministic: the same identity and arguments always produce the same
// key, and named arguments are sorted by name before encoding, so their order at the
// call site does not matter.
package keyfunc

import (
	"fmt"
	"reflect"
	"runtime"
	"sort"

	"github.com/goccy/go-json"
	"github.com/krisalay/memo-cache/types"
)

// Func derives a cache key from a function identity and its call arguments.
type Func interface {
	Key(identity string, args ...any) (any, error)
}

// Named carries named arguments. Every Named value among the call arguments
// contributes its entries; later values win on duplicate names.
type Named map[string]any

// NoArguments is the Args value of a structural key for a call without arguments.
const NoArguments = ""

/*
Split separates positional arguments from named ones.
Named values are pulled out wherever they appear in args.
*/
func Split(args ...any) ([]any, Named) {
	var (
		positional []any
		named      Named
	)
	for _, a := range args {
		n, ok := a.(Named)
		if !ok {
			positional = append(positional, a)
			continue
		}
		if named == nil {
			named = make(Named, len(n))
		}
		for k, v := range n {
			named[k] = v
		}
	}
	return positional, named
}

/*
Canonical encodes call arguments as a canonical JSON object:

	{"args":[positional...],"kwargs":[[name, value]...]}

with named pairs sorted by name and empty sections omitted. Keeping the two sections
apart means a positional []any{"a", 1} never encodes like Named{"a": 1}. Map values
nested inside arguments are encoded with sorted keys. ok is false when there are no
arguments at all.
*/
func Canonical(args ...any) (encoded []byte, ok bool, err error) {
	positional, named := Split(args...)
	if len(positional) == 0 && len(named) == 0 {
		return nil, false, nil
	}

	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)

	call := canonicalCall{Args: positional}
	for _, name := range names {
		call.Kwargs = append(call.Kwargs, []any{name, named[name]})
	}

	encoded, err = json.Marshal(call)
	if err != nil {
		return nil, false, fmt.Errorf("%w: encode arguments: %w", types.ErrSerialization, err)
	}
	return encoded, true, nil
}

type canonicalCall struct {
	Args   []any   `json:"args,omitempty"`
	Kwargs [][]any `json:"kwargs,omitempty"`
}

// Identity returns the runtime symbol name of a function or method value, or "" if fn
// is not a function.
func Identity(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return ""
	}
	return f.Name()
}

func validateIdentity(identity string) error {
	if identity == "" {
		return fmt.Errorf("%w: function identity must not be empty", types.ErrValidation)
	}
	return nil
}

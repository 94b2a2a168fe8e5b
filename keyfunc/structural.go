package keyfunc

// FuncKey is the structural key of a call: the function identity and the canonical
// JSON of its arguments. It is comparable, so it can key a Go map directly, and it
// stays human-readable when encoded for a remote store.
type FuncKey struct {
	Func string `json:"func" msgpack:"func"`
	Args string `json:"args" msgpack:"args"`
}

func (k FuncKey) String() string {
	return k.Func + "(" + k.Args + ")"
}

// Structural derives FuncKey values. A call without arguments maps to
// FuncKey{Func: identity, Args: NoArguments}.
type Structural struct{}

func (Structural) Key(identity string, args ...any) (any, error) {
	if err := validateIdentity(identity); err != nil {
		return nil, err
	}
	encoded, ok, err := Canonical(args...)
	if err != nil {
		return nil, err
	}
	if !ok {
		return FuncKey{Func: identity, Args: NoArguments}, nil
	}
	return FuncKey{Func: identity, Args: string(encoded)}, nil
}

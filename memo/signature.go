package memo

import "fmt"

// Control parameter names recognized in keyword arguments. They alter caching
// behavior at run time and are never part of a call's fingerprint.
const (
	// ControlRecompute forces re-execution and overwrites any stored result.
	ControlRecompute = "recompute"
	// ControlCacheResults disables caching entirely for one call.
	ControlCacheResults = "cache_results"
	// ControlCachePath redirects one call to a different cache location.
	ControlCachePath = "cache_path"
)

var controlNames = [...]string{ControlRecompute, ControlCacheResults, ControlCachePath}

// Param describes one declared parameter of a wrapped function.
type Param struct {
	Name       string
	Default    any
	HasDefault bool
}

// Required declares a parameter without a default value.
func Required(name string) Param {
	return Param{Name: name}
}

// Optional declares a parameter with a default value.
func Optional(name string, def any) Param {
	return Param{Name: name, Default: def, HasDefault: true}
}

// Signature describes a wrapped function: its identity and ordered parameter
// list. It is built once per function and reused across calls.
//
// Contract:
// - Determinism: Bind produces the same mapping for equivalent calls
//   regardless of positional/keyword spelling.
// - Concurrency: a Signature is immutable after construction and safe for
//   concurrent use.
type Signature struct {
	// Name identifies the function. It is part of every fingerprint, so two
	// functions sharing a store must not share a name.
	Name string

	// Params are the declared parameters, in positional order.
	Params []Param
}

// NewSignature creates a validated signature.
func NewSignature(name string, params ...Param) (Signature, error) {
	sig := Signature{Name: name, Params: params}
	if err := sig.Validate(); err != nil {
		return Signature{}, err
	}
	return sig, nil
}

// Validate checks the signature for an empty name, unnamed parameters, and
// duplicate parameter names.
func (s Signature) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSignature)
	}
	seen := make(map[string]bool, len(s.Params))
	for _, p := range s.Params {
		if p.Name == "" {
			return fmt.Errorf("%w: %s has an unnamed parameter", ErrInvalidSignature, s.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: %s declares parameter %q twice", ErrInvalidSignature, s.Name, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// Declares reports whether name is a declared parameter.
func (s Signature) Declares(name string) bool {
	for _, p := range s.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Args is the canonical argument mapping for one call: parameter name to
// value, independent of how the arguments were spelled at the call site.
type Args map[string]any

// Bind maps positional and keyword arguments onto declared parameter names
// and fills in defaults for declared parameters that were not supplied.
// Parameters without defaults that were not supplied are absent from the
// result.
//
// A name supplied both positionally and by keyword is caller error but does
// not fail: the keyword value wins (last-write-wins).
func (s Signature) Bind(positional []any, keyword map[string]any) (Args, error) {
	if len(positional) > len(s.Params) {
		return nil, fmt.Errorf("%w: %s takes %d parameters, got %d positional arguments",
			ErrSignatureMismatch, s.Name, len(s.Params), len(positional))
	}
	for name := range keyword {
		if !s.Declares(name) {
			return nil, fmt.Errorf("%w: %s has no parameter %q", ErrSignatureMismatch, s.Name, name)
		}
	}

	args := make(Args, len(s.Params))
	for i, v := range positional {
		args[s.Params[i].Name] = v
	}
	for name, v := range keyword {
		args[name] = v
	}
	for _, p := range s.Params {
		if _, ok := args[p.Name]; !ok && p.HasDefault {
			args[p.Name] = p.Default
		}
	}
	return args, nil
}

// fingerprintArgs returns a copy of args with declared control parameters
// removed. Control names the function never declared are consumed from the
// keyword arguments before binding and never reach the mapping at all.
func (s Signature) fingerprintArgs(args Args) Args {
	out := make(Args, len(args))
	for k, v := range args {
		out[k] = v
	}
	for _, name := range controlNames {
		if s.Declares(name) {
			delete(out, name)
		}
	}
	return out
}

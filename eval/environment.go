package eval

import "github.com/chazu/abacus/compiler"

// Environment holds the variables of one function activation. Functions do
// not capture their caller's variables, so there is no parent chain; the
// predefined constants are the only names visible everywhere.
type Environment struct {
	vars     map[string]float64
	declared map[string]bool
}

// NewEnvironment creates the environment of an activation whose body
// resolved to scope. Every name the body assigns exists from the start and
// reads 0 until its first assignment, as a stack slot would.
func NewEnvironment(scope *compiler.Scope) *Environment {
	env := &Environment{
		vars:     make(map[string]float64, len(scope.Vars)),
		declared: make(map[string]bool, len(scope.Vars)),
	}
	for name := range scope.Vars {
		env.vars[name] = 0
		env.declared[name] = true
	}
	return env
}

// Get looks up a variable, falling back to the predefined constants.
func (e *Environment) Get(name string) (float64, bool) {
	if e.declared[name] {
		return e.vars[name], true
	}
	v, ok := compiler.Constants[name]
	return v, ok
}

// Set assigns a variable in this activation.
func (e *Environment) Set(name string, v float64) {
	e.vars[name] = v
	e.declared[name] = true
}

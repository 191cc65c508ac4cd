package compiler

// ---------------------------------------------------------------------------
// Symbol resolution: slots for locals, indices for functions
// ---------------------------------------------------------------------------

// Scope is the resolved symbol table of one function body. It is produced
// by Resolve and never shared between functions. Funcs records the
// definitions nested in this body; call sites take their indices from the
// program-wide FuncTable instead.
type Scope struct {
	Vars     map[string]int // variable name -> slot index
	NumVars  int            // slots needed, parameters included
	Params   int            // slots 0..Params-1 hold parameters
	Funcs    map[string]int // function defined in this body -> first-seen index
	NumFuncs int
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{
		Vars:  make(map[string]int),
		Funcs: make(map[string]int),
	}
}

// AddVar assigns name the next slot unless it already has one, and returns
// its slot.
func (s *Scope) AddVar(name string) int {
	if slot, ok := s.Vars[name]; ok {
		return slot
	}
	slot := s.NumVars
	s.Vars[name] = slot
	s.NumVars++
	return slot
}

// AddFunc assigns name the next function index unless it already has one.
func (s *Scope) AddFunc(name string) int {
	if idx, ok := s.Funcs[name]; ok {
		return idx
	}
	idx := s.NumFuncs
	s.Funcs[name] = idx
	s.NumFuncs++
	return idx
}

// Slot returns the slot of a variable.
func (s *Scope) Slot(name string) (int, bool) {
	slot, ok := s.Vars[name]
	return slot, ok
}

// Locals returns the number of non-parameter slots.
func (s *Scope) Locals() int {
	return s.NumVars - s.Params
}

// Resolve walks a function body once and assigns parameters the first
// slots, then every assignment target a slot in evaluation order. Names
// that are only read are left alone; reporting them is the code
// generator's job. Nested definitions are recorded by name but their
// bodies belong to their own scopes.
func Resolve(params []string, body *Block) *Scope {
	s := NewScope()
	for _, p := range params {
		s.AddVar(p)
	}
	s.Params = s.NumVars
	s.resolveBlock(body)
	return s
}

func (s *Scope) resolveBlock(b *Block) {
	if b == nil {
		return
	}
	for _, e := range b.Exprs {
		s.resolveExpr(e)
	}
}

func (s *Scope) resolveExpr(e Expr) {
	switch n := e.(type) {
	case *Binary:
		s.resolveExpr(n.Left)
		s.resolveExpr(n.Right)
	case *Assign:
		// The value runs before the store.
		s.resolveExpr(n.Value)
		s.AddVar(n.Name)
	case *FuncCall:
		for _, a := range n.Args {
			s.resolveExpr(a)
		}
	case *FuncDef:
		s.AddFunc(n.Name)
	case *If:
		s.resolveExpr(n.Cond)
		s.resolveBlock(n.Then)
		s.resolveBlock(n.Else)
	}
}

// ---------------------------------------------------------------------------
// Function declarations: the program-wide function namespace
// ---------------------------------------------------------------------------

// FuncDecl is one user function of a program.
type FuncDecl struct {
	Index int
	Def   *FuncDef
	Scope *Scope
}

// FuncTable holds every function of a program, indexed in the order their
// definitions appear (depth first, outer before nested).
type FuncTable struct {
	Decls  []*FuncDecl
	byName map[string]*FuncDecl
}

// Lookup returns the declaration of a function.
func (t *FuncTable) Lookup(name string) (*FuncDecl, bool) {
	d, ok := t.byName[name]
	return d, ok
}

// Len returns the number of declared functions.
func (t *FuncTable) Len() int {
	return len(t.Decls)
}

// Declare collects every function definition in the program, wherever it is
// nested, into one flat namespace and resolves each body. Every function is
// visible to every call site once declared, so calls may precede the
// definition and functions may recurse.
func Declare(program *Block) (*FuncTable, error) {
	t := &FuncTable{byName: make(map[string]*FuncDecl)}
	var err error

	Walk(program, func(e Expr) bool {
		if err != nil {
			return false
		}
		def, ok := e.(*FuncDef)
		if !ok {
			return true
		}
		if _, builtin := LookupIntrinsic(def.Name); builtin {
			err = &DuplicateFunctionError{Name: def.Name, Line: def.Line()}
			return false
		}
		if prev, dup := t.byName[def.Name]; dup {
			err = &DuplicateFunctionError{Name: def.Name, Line: def.Line(), PrevLine: prev.Def.Line()}
			return false
		}
		seen := make(map[string]bool, len(def.Params))
		for _, p := range def.Params {
			if seen[p] {
				err = &DuplicateParameterError{Func: def.Name, Name: p, Line: def.Line()}
				return false
			}
			seen[p] = true
		}

		d := &FuncDecl{Index: len(t.Decls), Def: def, Scope: Resolve(def.Params, def.Body)}
		t.Decls = append(t.Decls, d)
		t.byName[def.Name] = d
		return true
	})

	if err != nil {
		return nil, err
	}
	return t, nil
}

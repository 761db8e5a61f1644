package ir

// Arity bounds a built-in function's argument count. Max < 0 means
// unbounded.
type Arity struct {
	Min int
	Max int
}

// BuiltinFunctions lists the math functions understood by loaders and the
// runtime. Any other call name must refer to a FunctionDefinition.
var BuiltinFunctions = map[string]Arity{
	"abs":       {1, 1},
	"exp":       {1, 1},
	"ln":        {1, 1},
	"log":       {1, 2}, // log(x) is base 10; log(base, x)
	"log10":     {1, 1},
	"sqrt":      {1, 1},
	"root":      {2, 2}, // root(degree, x)
	"floor":     {1, 1},
	"ceil":      {1, 1},
	"ceiling":   {1, 1},
	"factorial": {1, 1},
	"sin":       {1, 1},
	"cos":       {1, 1},
	"tan":       {1, 1},
	"sec":       {1, 1},
	"csc":       {1, 1},
	"cot":       {1, 1},
	"sinh":      {1, 1},
	"cosh":      {1, 1},
	"tanh":      {1, 1},
	"arcsin":    {1, 1},
	"arccos":    {1, 1},
	"arctan":    {1, 1},
	"arcsinh":   {1, 1},
	"arccosh":   {1, 1},
	"arctanh":   {1, 1},
	"min":       {1, -1},
	"max":       {1, -1},
	"rem":       {2, 2},
	"quotient":  {2, 2},
}

// Constants lists the named constants understood by loaders and the runtime.
var Constants = map[string]bool{
	"pi":           true,
	"exponentiale": true,
	"true":         true,
	"false":        true,
	"infinity":     true,
	"notanumber":   true,
	"avogadro":     true,
}

// Accepts reports whether n arguments satisfy a.
func (a Arity) Accepts(n int) bool {
	return n >= a.Min && (a.Max < 0 || n <= a.Max)
}

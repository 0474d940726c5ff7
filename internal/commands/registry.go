package commands

import (
	"fmt"
	"strings"
)

// Shape describes which arguments a command takes.
type Shape int

const (
	ShapeNone          Shape = iota // no argument, no form
	ShapeForm                       // form only
	ShapeString                     // string argument only
	ShapeStringAndForm              // string argument and form
)

func (s Shape) String() string {
	switch s {
	case ShapeNone:
		return "NONE"
	case ShapeForm:
		return "FORM_ONLY"
	case ShapeString:
		return "STRING_ONLY"
	case ShapeStringAndForm:
		return "STRING_AND_FORM"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// NeedsArgument reports whether the shape requires a string argument.
func (s Shape) NeedsArgument() bool {
	return s == ShapeString || s == ShapeStringAndForm
}

// NeedsForm reports whether the shape requires a record form.
func (s Shape) NeedsForm() bool {
	return s == ShapeForm || s == ShapeStringAndForm
}

// Descriptor is the static description of one command.
type Descriptor struct {
	Name        string
	Usage       string // argument placeholder, e.g. "<id> {element}"
	Description string
	Shape       Shape
}

// Synopsis returns the name followed by its usage placeholder.
func (d Descriptor) Synopsis() string {
	if d.Usage == "" {
		return d.Name
	}
	return d.Name + " " + d.Usage
}

// Kind classifies the result of validating a command.
type Kind int

const (
	KindOK Kind = iota
	KindEmpty
	KindNotFound
	KindUsage
)

// Result is the outcome of resolving and validating a command name.
type Result struct {
	Kind       Kind
	Name       string // canonical name when recognized, raw input otherwise
	Descriptor Descriptor
	Message    string // operator-facing message for non-OK kinds
}

func (r Result) OK() bool {
	return r.Kind == KindOK
}

// Recognized reports whether the name resolved to a registered command.
func (r Result) Recognized() bool {
	return r.Kind == KindOK || r.Kind == KindUsage
}

// Registry maps command names to descriptors and remembers recently used
// commands. It is not safe for concurrent use.
type Registry struct {
	descriptors map[string]Descriptor
	order       []string
	aliases     map[string]string
	history     *History
}

func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]Descriptor),
		aliases:     make(map[string]string),
		history:     NewHistory(HistorySize),
	}
}

// Register adds a descriptor. Names must be unique.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("command name must not be empty")
	}
	if _, ok := r.descriptors[d.Name]; ok {
		return fmt.Errorf("command %q already registered", d.Name)
	}
	r.descriptors[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// Alias makes alias resolve to the registered command name.
func (r *Registry) Alias(alias, name string) error {
	if _, ok := r.descriptors[name]; !ok {
		return fmt.Errorf("alias %q targets unknown command %q", alias, name)
	}
	if _, ok := r.descriptors[alias]; ok {
		return fmt.Errorf("alias %q shadows a command", alias)
	}
	r.aliases[alias] = name
	return nil
}

// Resolve maps raw input to a canonical command name. Layout typos are
// corrected first, then shorthand aliases are expanded. Unknown names are
// returned transliterated but otherwise unchanged.
func (r *Registry) Resolve(name string) string {
	name = strings.TrimSpace(name)
	if _, ok := r.descriptors[name]; ok {
		return name
	}
	if alias, ok := r.aliases[name]; ok {
		return alias
	}
	fixed := FixLayout(name)
	if alias, ok := r.aliases[fixed]; ok {
		return alias
	}
	return fixed
}

// Lookup returns the descriptor of a canonical name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.descriptors[name]
	return d, ok
}

// Descriptors returns every descriptor in registration order.
func (r *Registry) Descriptors() []Descriptor {
	list := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.descriptors[name])
	}
	return list
}

// Classify resolves name and checks the string side of its shape. The form
// side is left to the caller, which builds the form after classification.
func (r *Registry) Classify(name, argument string) Result {
	name = strings.TrimSpace(name)
	if name == "" {
		return Result{Kind: KindEmpty}
	}
	canonical := r.Resolve(name)
	d, ok := r.descriptors[canonical]
	if !ok {
		return Result{
			Kind:    KindNotFound,
			Name:    name,
			Message: fmt.Sprintf("Command '%s' not found. Use command 'help' for advice.", name),
		}
	}

	res := Result{Kind: KindOK, Name: canonical, Descriptor: d}
	hasArgument := strings.TrimSpace(argument) != ""
	if hasArgument != d.Shape.NeedsArgument() {
		res.Kind = KindUsage
		res.Message = usageMessage(d)
	}
	return res
}

// Validate resolves name and checks both sides of its shape.
func (r *Registry) Validate(name, argument string, hasForm bool) Result {
	res := r.Classify(name, argument)
	if res.Kind == KindOK && hasForm != res.Descriptor.Shape.NeedsForm() {
		res.Kind = KindUsage
		res.Message = usageMessage(res.Descriptor)
	}
	return res
}

// Record appends a canonical name to the history.
func (r *Registry) Record(name string) {
	if name == "" {
		return
	}
	r.history.Add(name)
}

// History returns recorded names, newest first.
func (r *Registry) History() []string {
	return r.history.Last(0)
}

func usageMessage(d Descriptor) string {
	return fmt.Sprintf("Usage: '%s'", d.Synopsis())
}

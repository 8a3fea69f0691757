// Package greet builds greetings.
package greet

// Greeter greets one name.
type Greeter struct {
	name string
}

// New returns a Greeter for name.
func New(name string) *Greeter {
	return &Greeter{name: name}
}

// Hello returns the greeting.
func (g *Greeter) Hello() string {
	return prefix() + g.name
}

func prefix() string {
	return "hello, "
}

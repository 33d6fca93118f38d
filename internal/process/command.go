package process

import "strings"

// Command describes one external program invocation.
// It is immutable once constructed; the zero value has an empty program.
type Command struct {
	program  string
	args     []string
	elevated bool
}

// NewCommand returns a Command for program with the given arguments.
// The argument slice is copied.
func NewCommand(program string, args ...string) Command {
	return Command{
		program: program,
		args:    append([]string(nil), args...),
	}
}

// NewElevatedCommand returns a Command that must be launched through the
// runner's elevation wrapper.
func NewElevatedCommand(program string, args ...string) Command {
	c := NewCommand(program, args...)
	c.elevated = true
	return c
}

// Program returns the executable name or path.
func (c Command) Program() string {
	return c.program
}

// Args returns a copy of the argument list.
func (c Command) Args() []string {
	return append([]string(nil), c.args...)
}

// Elevated reports whether the command runs under the elevation wrapper.
func (c Command) Elevated() bool {
	return c.elevated
}

// String returns the command line for logs and debugging.
func (c Command) String() string {
	if len(c.args) == 0 {
		return c.program
	}
	return c.program + " " + strings.Join(c.args, " ")
}

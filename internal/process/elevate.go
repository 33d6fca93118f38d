package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Elevator launches and terminates processes under another privilege
// level. Cancellation of an elevated handle goes through the same
// Elevator that started it.
type Elevator interface {
	// Name returns the wrapper name for logs ("pkexec", "sudo").
	Name() string

	// Authorize runs before spawn. It fails with an error wrapping
	// ErrElevationDenied when the operating user cannot elevate, or
	// exec.ErrNotFound when the wrapper is missing.
	Authorize(ctx context.Context) error

	// Wrap returns the wrapper program and arguments that run path
	// with args at the elevated level.
	Wrap(path string, args []string) (string, []string)

	// Terminate sends SIGTERM to process group pgid with the wrapper's
	// privileges. An emptied group is reported as unix.ESRCH.
	Terminate(ctx context.Context, pgid int) error

	// Denied reports whether an exit code of the wrapped process means
	// the wrapper refused authorization instead of running the program.
	Denied(exitCode int) bool
}

// NewElevator returns the elevator registered under name.
func NewElevator(name string) (Elevator, error) {
	switch strings.ToLower(name) {
	case "", "pkexec":
		return NewPkexec(), nil
	case "sudo":
		return NewSudo(), nil
	default:
		return nil, fmt.Errorf("unknown elevator %q (want pkexec or sudo)", name)
	}
}

// Pkexec elevates through polkit. Authentication happens inside the
// wrapped process, so a declined prompt is reported at exit through
// Denied rather than by Authorize.
//
// The wrapped process runs in its own background process group with no
// stdin, so pkexec's textual agent cannot prompt. A polkit agent must be
// registered for the session (a desktop agent, or pkttyagent on a
// headless host).
type Pkexec struct {
	// Path is the pkexec binary. Defaults to "pkexec".
	Path string
}

// NewPkexec returns a Pkexec elevator using pkexec from PATH.
func NewPkexec() *Pkexec {
	return &Pkexec{Path: "pkexec"}
}

// Name returns "pkexec".
func (p *Pkexec) Name() string { return "pkexec" }

// Authorize checks that pkexec can be resolved.
func (p *Pkexec) Authorize(ctx context.Context) error {
	if _, err := exec.LookPath(p.Path); err != nil {
		return fmt.Errorf("pkexec: %w", err)
	}
	return nil
}

// Wrap returns pkexec <path> <args...>.
func (p *Pkexec) Wrap(path string, args []string) (string, []string) {
	return p.Path, append([]string{path}, args...)
}

// Terminate runs pkexec kill -TERM -- -<pgid>.
func (p *Pkexec) Terminate(ctx context.Context, pgid int) error {
	return runKill(ctx, p.Path, nil, pgid)
}

// Denied reports pkexec's "dialog dismissed" (126) and "not authorized"
// (127) exit codes.
func (p *Pkexec) Denied(exitCode int) bool {
	return exitCode == 126 || exitCode == 127
}

// Sudo elevates through sudo. Credentials are validated up front with
// sudo -v, so the wrapped process never prompts.
type Sudo struct {
	// Path is the sudo binary. Defaults to "sudo".
	Path string
}

// NewSudo returns a Sudo elevator using sudo from PATH.
func NewSudo() *Sudo {
	return &Sudo{Path: "sudo"}
}

// Name returns "sudo".
func (s *Sudo) Name() string { return "sudo" }

// Authorize runs sudo -v on the controlling terminal.
func (s *Sudo) Authorize(ctx context.Context) error {
	path, err := exec.LookPath(s.Path)
	if err != nil {
		return fmt.Errorf("sudo: %w", err)
	}
	cmd := exec.CommandContext(ctx, path, "-v")
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("sudo -v: %w: %v", ErrElevationDenied, err)
	}
	return nil
}

// Wrap returns sudo -n -- <path> <args...>.
func (s *Sudo) Wrap(path string, args []string) (string, []string) {
	return s.Path, append([]string{"-n", "--", path}, args...)
}

// Terminate runs sudo -n kill -TERM -- -<pgid>.
func (s *Sudo) Terminate(ctx context.Context, pgid int) error {
	return runKill(ctx, s.Path, []string{"-n"}, pgid)
}

// Denied is always false: sudo refusals surface from Authorize.
func (s *Sudo) Denied(int) bool { return false }

func runKill(ctx context.Context, wrapper string, wrapperArgs []string, pgid int) error {
	args := append(append([]string(nil), wrapperArgs...), "kill", "-TERM", "--", "-"+strconv.Itoa(pgid))
	out, err := exec.CommandContext(ctx, wrapper, args...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if strings.Contains(strings.ToLower(msg), "no such process") {
			return fmt.Errorf("%s kill: %w: %s", wrapper, unix.ESRCH, msg)
		}
		if msg != "" {
			return fmt.Errorf("%s kill: %w: %s", wrapper, err, msg)
		}
		return fmt.Errorf("%s kill: %w", wrapper, err)
	}
	return nil
}

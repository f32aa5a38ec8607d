package reconstruction

import (
	"context"
	"errors"
	"os/exec"
	"strings"
)

// CommandExecutor runs one external command.
// This abstraction enables unit testing without real COLMAP installs.
type CommandExecutor interface {
	// Run executes the command and returns the combined output (stdout+stderr).
	Run() ([]byte, error)
}

// CommandBuilder builds external commands.
type CommandBuilder interface {
	// BuildCommand creates a CommandExecutor running name in dir. An empty
	// dir keeps the current working directory.
	BuildCommand(ctx context.Context, dir, name string, args ...string) CommandExecutor
}

// RealCommandExecutor wraps exec.Cmd to implement CommandExecutor.
type RealCommandExecutor struct {
	cmd *exec.Cmd
}

// Run executes the command and returns combined output.
func (r *RealCommandExecutor) Run() ([]byte, error) {
	return r.cmd.CombinedOutput()
}

// RealCommandBuilder implements CommandBuilder using exec.CommandContext.
type RealCommandBuilder struct{}

// NewRealCommandBuilder creates a new RealCommandBuilder.
func NewRealCommandBuilder() *RealCommandBuilder {
	return &RealCommandBuilder{}
}

// BuildCommand creates a CommandExecutor for the given command and arguments.
func (b *RealCommandBuilder) BuildCommand(ctx context.Context, dir, name string, args ...string) CommandExecutor {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return &RealCommandExecutor{cmd: cmd}
}

// exitCode extracts the exit status from err, or -1 when the command never
// produced one (not found, killed, cancelled).
func exitCode(err error) (int, bool) {
	var ec interface{ ExitCode() int }
	if errors.As(err, &ec) {
		if code := ec.ExitCode(); code >= 0 {
			return code, true
		}
	}
	return -1, false
}

// MockCommandExecutor implements CommandExecutor for testing.
type MockCommandExecutor struct {
	// Output is the output to return from Run.
	Output []byte
	// Err is the error to return from Run.
	Err error
	// RunFunc replaces Output and Err when set, letting a test simulate the
	// files a tool would write.
	RunFunc func() ([]byte, error)
	// RunCalled indicates whether Run was called.
	RunCalled bool
}

// Run returns the configured output and error.
func (m *MockCommandExecutor) Run() ([]byte, error) {
	m.RunCalled = true
	if m.RunFunc != nil {
		return m.RunFunc()
	}
	return m.Output, m.Err
}

// MockBuiltCommand records details of a built command.
type MockBuiltCommand struct {
	Dir  string
	Name string
	Args []string
}

// Line returns the command and its arguments joined by spaces.
func (c MockBuiltCommand) Line() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// MockCommandBuilder implements CommandBuilder for testing.
type MockCommandBuilder struct {
	// Commands records all commands that were built.
	Commands []MockBuiltCommand
	// ExecutorFactory allows creating executors dynamically based on command.
	ExecutorFactory func(name string, args []string) *MockCommandExecutor
}

// NewMockCommandBuilder creates a new MockCommandBuilder.
func NewMockCommandBuilder() *MockCommandBuilder {
	return &MockCommandBuilder{}
}

// BuildCommand creates a MockCommandExecutor and records the command details.
func (b *MockCommandBuilder) BuildCommand(_ context.Context, dir, name string, args ...string) CommandExecutor {
	b.Commands = append(b.Commands, MockBuiltCommand{Dir: dir, Name: name, Args: args})
	if b.ExecutorFactory != nil {
		return b.ExecutorFactory(name, args)
	}
	return &MockCommandExecutor{}
}

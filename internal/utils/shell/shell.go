package shell

import (
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"
)

var commandMap = map[string]string{
	"bash": "/usr/bin/bash",
	"cat":  "/usr/bin/cat",
	"echo": "/usr/bin/echo",
	"git":  "/usr/bin/git",
	"make": "/usr/bin/make",
	"true": "/usr/bin/true",
	// Add more mappings as needed
}

// Executor runs a fully resolved command line and returns its stdout.
type Executor interface {
	Exec(fullCmdStr string) (string, error)
}

// BashExecutor runs commands through "bash -c".
type BashExecutor struct{}

// Exec implements Executor.
func (BashExecutor) Exec(fullCmdStr string) (string, error) {
	cmd := exec.Command("bash", "-c", fullCmdStr)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return string(output), fmt.Errorf("%w: %s", err, msg)
		}
		return string(output), err
	}
	return string(output), nil
}

// Default is the executor used by ExecCmd. Tests swap it for a MockExecutor.
var Default Executor = BashExecutor{}

// MockCommand is one canned response of a MockExecutor. Pattern is a regular
// expression matched against the full command line.
type MockCommand struct {
	Pattern string
	Output  string
	Error   error
}

// MockExecutor answers commands from a fixed table and records what it ran.
type MockExecutor struct {
	mu       sync.Mutex
	commands []MockCommand
	Executed []string
}

// NewMockExecutor returns an executor that answers with the first matching
// MockCommand; unmatched commands fail.
func NewMockExecutor(commands []MockCommand) *MockExecutor {
	return &MockExecutor{commands: commands}
}

// Exec implements Executor.
func (m *MockExecutor) Exec(fullCmdStr string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Executed = append(m.Executed, fullCmdStr)

	for _, c := range m.commands {
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			if strings.Contains(fullCmdStr, c.Pattern) {
				return c.Output, c.Error
			}
			continue
		}
		if re.MatchString(fullCmdStr) {
			return c.Output, c.Error
		}
	}
	return "", fmt.Errorf("mock executor: no response for command %q", fullCmdStr)
}

func verifyCmdWithFullPath(cmd string) (string, error) {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty command")
	}
	bin := fields[0]
	fullPath, ok := commandMap[bin]
	if !ok {
		return "", fmt.Errorf("command %s not found in commandMap", bin)
	}
	return fullPath + strings.TrimPrefix(strings.TrimLeft(cmd, " \t"), bin), nil
}

// GetFullCmdStr resolves the binary of cmdStr to its full path and prefixes
// the environment assignments in envVal.
func GetFullCmdStr(cmdStr string, envVal []string) (string, error) {
	fullPathCmdStr, err := verifyCmdWithFullPath(cmdStr)
	if err != nil {
		return "", fmt.Errorf("failed to verify command with full path: %w", err)
	}
	if len(envVal) == 0 {
		return fullPathCmdStr, nil
	}
	return strings.Join(envVal, " ") + " " + fullPathCmdStr, nil
}

// ExecCmd executes a command through Default and returns its stdout.
func ExecCmd(cmdStr string, envVal []string) (string, error) {
	fullCmdStr, err := GetFullCmdStr(cmdStr, envVal)
	if err != nil {
		return "", fmt.Errorf("failed to get full command string: %w", err)
	}

	output, err := Default.Exec(fullCmdStr)
	if err != nil {
		return output, fmt.Errorf("failed to exec %s: %w", fullCmdStr, err)
	}
	return output, nil
}

// Quote wraps s in single quotes for bash.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

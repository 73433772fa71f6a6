package tools

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

const maxLineSize = 64 * 1024 * 1024

// Output streams.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// ToolSpec defines how to invoke an external tool.
type ToolSpec struct {
	Name       string
	BinaryName string
	Args       []string
	Dir        string
	Timeout    time.Duration
}

// ToolResult captures the outcome of a tool execution.
type ToolResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
	Error    error
}

// OutputLine represents a single line of real-time output.
type OutputLine struct {
	Timestamp time.Time `json:"timestamp"`
	Stream    string    `json:"stream"`
	Line      string    `json:"line"`
	Done      bool      `json:"done,omitempty"`
}

// CheckInstalled verifies that a tool binary exists on PATH.
func CheckInstalled(binaryName string) (string, error) {
	path, err := exec.LookPath(binaryName)
	if err != nil {
		return "", fmt.Errorf("%s is not installed or not on PATH: %w", binaryName, err)
	}
	return path, nil
}

// Run executes a tool and sends each line of output to the channel.
// The channel is closed when the tool exits.
func Run(ctx context.Context, spec ToolSpec, output chan<- OutputLine) *ToolResult {
	defer close(output)

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	start := time.Now()

	cmd := exec.CommandContext(ctx, spec.BinaryName, spec.Args...)
	cmd.Dir = spec.Dir

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return &ToolResult{ExitCode: -1, Error: fmt.Errorf("stdout pipe: %w", err), Duration: time.Since(start)}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return &ToolResult{ExitCode: -1, Error: fmt.Errorf("stderr pipe: %w", err), Duration: time.Since(start)}
	}

	if err := cmd.Start(); err != nil {
		return &ToolResult{ExitCode: -1, Error: fmt.Errorf("start: %w", err), Duration: time.Since(start)}
	}

	var stdoutBuf, stderrBuf strings.Builder

	done := make(chan struct{})

	// Semgrep and ESLint print their whole JSON report on one line.
	pump := func(r io.Reader, stream string, buf *strings.Builder) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 256*1024), maxLineSize)
		for scanner.Scan() {
			line := scanner.Text()
			buf.WriteString(line)
			buf.WriteByte('\n')
			output <- OutputLine{Timestamp: time.Now(), Stream: stream, Line: line}
		}
		done <- struct{}{}
	}
	go pump(stdoutPipe, StreamStdout, &stdoutBuf)
	go pump(stderrPipe, StreamStderr, &stderrBuf)

	// Wait for both readers to finish
	<-done
	<-done

	exitCode := 0
	waitErr := cmd.Wait()
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	return &ToolResult{
		ExitCode: exitCode,
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: time.Since(start),
		TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
		Error:    waitErr,
	}
}

package transport

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// StdioTransport runs a debug adapter as a child process and exposes its
// stdin/stdout as the connection byte stream. This is the usual deployment
// mode: the client owns the adapter's lifetime. The adapter's stderr passes
// through to ours, since adapters log diagnostics there.
type StdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

// StartStdio launches the adapter command and wires up its pipes.
func StartStdio(name string, args ...string) (*StdioTransport, error) {
	cmd := exec.Command(name, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start adapter %q: %w", name, err)
	}

	return &StdioTransport{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// Read delivers inbound bytes from the adapter's stdout.
func (t *StdioTransport) Read(p []byte) (int, error) {
	return t.stdout.Read(p)
}

// Write sends outbound bytes to the adapter's stdin.
func (t *StdioTransport) Write(p []byte) (int, error) {
	return t.stdin.Write(p)
}

// Close ends the session: stdin is closed so a well-behaved adapter exits on
// EOF, and the process is killed if it lingers past the grace period.
func (t *StdioTransport) Close() error {
	t.stdin.Close()

	exited := make(chan error, 1)
	go func() { exited <- t.cmd.Wait() }()

	select {
	case err := <-exited:
		return err
	case <-time.After(5 * time.Second):
		t.cmd.Process.Kill()
		return <-exited
	}
}

// Pid returns the adapter's process id.
func (t *StdioTransport) Pid() int {
	return t.cmd.Process.Pid
}

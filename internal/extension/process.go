package extension

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/dshills/exthost/internal/jsonrpc"
	"go.uber.org/zap"
)

// DefaultKillDelay is how long Close waits for a process to exit on its own
// before killing it.
const DefaultKillDelay = 2 * time.Second

// Process runs an extension executable that speaks the protocol on stdin
// and stdout. Stderr lines are written to the logger.
type Process struct {
	Command string
	Args    []string
	Env     map[string]string
	Dir     string

	// KillDelay overrides DefaultKillDelay.
	KillDelay time.Duration

	Logger *zap.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
	err    error
}

// Kind implements Runtime.
func (p *Process) Kind() string { return "process" }

// Open starts the process.
func (p *Process) Open(ctx context.Context) (jsonrpc.Stream, error) {
	if p.Command == "" {
		return nil, ErrNoCommand
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return nil, ErrAlreadyStarted
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(p.Command, p.Args...)
	cmd.Env = os.Environ()
	for k, v := range p.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Dir = p.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("start %s: %w", p.Command, err)
	}

	p.cmd = cmd
	p.exited = make(chan struct{})
	go p.drainStderr(stderr)
	go p.wait()

	return jsonrpc.NewHeaderStream(stdout, stdin, stdin), nil
}

func (p *Process) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func (p *Process) drainStderr(r io.Reader) {
	logger := p.logger()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		logger.Info("extension stderr", zap.String("line", sc.Text()))
	}
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	close(p.exited)
	if err != nil {
		p.logger().Debug("extension process exited", zap.Error(err))
	}
}

// Exited is closed when the process has exited. It is nil before Open.
func (p *Process) Exited() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

// Close waits up to KillDelay for the process to exit, then kills it.
func (p *Process) Close() error {
	p.mu.Lock()
	cmd, exited := p.cmd, p.exited
	delay := p.KillDelay
	p.mu.Unlock()
	if cmd == nil {
		return nil
	}
	if delay <= 0 {
		delay = DefaultKillDelay
	}

	select {
	case <-exited:
	case <-time.After(delay):
		if err := cmd.Process.Kill(); err != nil {
			p.logger().Warn("kill extension process", zap.Error(err))
		}
		<-exited
	}
	return nil
}

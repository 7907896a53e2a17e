package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shirou/gopsutil/v3/process"
)

// maxKillWait bounds how long TerminateTree polls for the tree to die
// before giving up.
const maxKillWait = 5 * time.Second

// Command describes a child process to launch.
type Command struct {
	Argv []string
	Dir  string
	Env  []string // extra KEY=VALUE entries appended to the parent environment
}

// Process is a handle to a launched child.
type Process interface {
	PID() int
	Stdout() io.Reader
	// Wait reaps the child after it has exited. All reads from Stdout must
	// complete first.
	Wait() error
}

// Spawner launches child processes.
type Spawner interface {
	Spawn(cmd Command) (Process, error)
}

// Killer terminates a child process together with all of its descendants.
type Killer interface {
	// TerminateTree kills the tree rooted at pid and blocks until its
	// descendants are gone. The root itself must still be reaped by the
	// owner's Wait. A tree that is already dead is not an error.
	TerminateTree(ctx context.Context, pid int) error
}

// System implements Spawner and Killer with real operating system processes.
// Children are placed in their own process group so the whole subtree can be
// signalled and tracked.
type System struct{}

// NewSystem creates a System.
func NewSystem() *System {
	return &System{}
}

// Spawn starts the command with its stdout piped back to the caller and
// stderr passed through to the terminal.
func (s *System) Spawn(c Command) (Process, error) {
	cmd, err := s.newCmd(c)
	if err != nil {
		return nil, err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.Argv[0], err)
	}

	return &child{cmd: cmd, stdout: stdout}, nil
}

// Run starts the command wired to the terminal and blocks until it exits.
// On context cancellation the whole child tree is terminated.
func (s *System) Run(ctx context.Context, c Command) error {
	cmd, err := s.newCmd(c)
	if err != nil {
		return err
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.Argv[0], err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.TerminateTree(context.Background(), cmd.Process.Pid)
		case <-done:
		}
	}()

	err = cmd.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return fmt.Errorf("%s exited: %w", c.Argv[0], err)
	}
	return nil
}

func (s *System) newCmd(c Command) (*exec.Cmd, error) {
	if len(c.Argv) == 0 {
		return nil, errors.New("empty command")
	}
	cmd := exec.Command(c.Argv[0], c.Argv[1:]...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	setSysProcAttr(cmd)
	return cmd, nil
}

// TerminateTree kills pid's descendants and then pid itself, polling until
// the descendants have disappeared from the process table. Processes that
// exit between enumeration and the signal are fine; only a tree that refuses
// to die within maxKillWait is an error.
func (s *System) TerminateTree(ctx context.Context, pid int) error {
	root, err := process.NewProcess(int32(pid))
	if err != nil {
		// Already gone, nothing to do.
		return nil
	}

	kids := descendants(root)
	for _, p := range kids {
		_ = p.Kill()
	}
	_ = root.Kill()

	pids := make([]int32, 0, len(kids))
	for _, p := range kids {
		pids = append(pids, p.Pid)
	}
	return waitGone(ctx, pids)
}

// descendants returns every process below root, breadth-first.
func descendants(root *process.Process) []*process.Process {
	var all []*process.Process
	queue := []*process.Process{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		kids, err := cur.Children()
		if err != nil {
			continue
		}
		all = append(all, kids...)
		queue = append(queue, kids...)
	}
	return all
}

// waitGone polls the process table until none of the pids exist anymore.
func waitGone(ctx context.Context, pids []int32) error {
	if len(pids) == 0 {
		return nil
	}

	check := func() error {
		for _, pid := range pids {
			alive, err := process.PidExists(pid)
			if err != nil {
				return backoff.Permanent(fmt.Errorf("poll pid %d: %w", pid, err))
			}
			if alive {
				return fmt.Errorf("pid %d still alive", pid)
			}
		}
		return nil
	}

	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(2*time.Millisecond),
		backoff.WithMaxInterval(50*time.Millisecond),
		backoff.WithMaxElapsedTime(maxKillWait),
	), ctx)

	if err := backoff.Retry(check, policy); err != nil {
		return fmt.Errorf("process tree still alive after kill: %w", err)
	}
	return nil
}

// child wraps an exec.Cmd as a Process.
type child struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func (c *child) PID() int {
	return c.cmd.Process.Pid
}

func (c *child) Stdout() io.Reader {
	return c.stdout
}

func (c *child) Wait() error {
	return c.cmd.Wait()
}

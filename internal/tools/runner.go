package tools

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Result is the outcome of one tool invocation. Terminated distinguishes a
// signal or timeout kill from a clean exit.
type Result struct {
	ExitCode   int           `json:"exitCode"`
	Duration   time.Duration `json:"duration"`
	Terminated bool          `json:"terminated"`
}

type RunOptions struct {
	Args    []string
	EnvVars map[string]string
	Timeout time.Duration
	// Stdout and Stderr receive the child's output line by line as it is
	// produced. They default to the runner process's own streams.
	Stdout io.Writer
	Stderr io.Writer
}

type Runner struct{}

func NewRunner() *Runner {
	return &Runner{}
}

// Run launches the tool's entry point in its own process group, forwards
// args verbatim, streams both output channels and waits for exit. Ordering
// between stdout and stderr lines is not defined; each stream's own order
// is preserved. Cancelling the context signals the whole process group so
// no descendants survive, and still yields a well-formed Result.
func (r *Runner) Run(ctx context.Context, d Descriptor, opts RunOptions) (*Result, error) {
	argv := command(d)
	argv = append(argv, opts.Args...)

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = d.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative pid signals the group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	cmd.Env = os.Environ()
	for k, v := range opts.EnvVars {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdoutW := opts.Stdout
	if stdoutW == nil {
		stdoutW = os.Stdout
	}
	stderrW := opts.Stderr
	if stderrW == nil {
		stderrW = os.Stderr
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launching %s: %w", d.Name, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go drain(&wg, stdout, stdoutW)
	go drain(&wg, stderr, stderrW)
	wg.Wait()

	waitErr := cmd.Wait()
	duration := time.Since(start)

	result := &Result{Duration: duration}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("running %s: %w", d.Name, waitErr)
		}
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			result.Terminated = true
			result.ExitCode = -1
		} else {
			result.ExitCode = exitErr.ExitCode()
		}
	}
	if ctx.Err() != nil {
		result.Terminated = true
	}
	return result, nil
}

// drain copies one stream line by line so callers observe output as it is
// produced rather than after exit. Lines of any length are delivered whole,
// and the reader is always consumed to EOF so the child never blocks on a
// full pipe.
func drain(wg *sync.WaitGroup, r io.Reader, w io.Writer) {
	defer wg.Done()
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			fmt.Fprintln(w, strings.TrimSuffix(line, "\n"))
		}
		if err != nil {
			return
		}
	}
}

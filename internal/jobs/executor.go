package jobs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
)

// Environment variables every job process receives besides its inputs.
const (
	EnvKubeconfig = "KUBECONFIG"
	EnvImage      = "IMAGE"
	EnvOutputFile = "JOB_OUTPUT_FILE"
	EnvJobName    = "JOB_NAME"
	EnvRunID      = "JOB_RUN_ID"
)

const (
	stderrTail = 2048
	// waitDelay bounds how long a killed job may keep its output pipes open.
	waitDelay = time.Second
)

type Request struct {
	Job      string
	RunID    string
	TenantID string
	Inputs   map[string]string
	Image    string
	// Credential is the path of the cluster credential handed to the job.
	Credential string
}

type Result struct {
	Outputs map[string]string
}

// Executor runs one job to completion. It must honour ctx cancellation.
type Executor interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

type ExecutorFunc func(ctx context.Context, req Request) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// ScriptExecutor runs an opaque command. Inputs are passed as upper snake
// case environment variables (tenantId becomes TENANT_ID), outputs are read
// from the key=value lines the command appends to $JOB_OUTPUT_FILE.
type ScriptExecutor struct {
	Command []string
	Dir     string
}

var _ Executor = (*ScriptExecutor)(nil)

func (s *ScriptExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	if len(s.Command) == 0 {
		return Result{}, ErrEmptyCommand
	}

	out, err := os.CreateTemp("", "job-output-*")
	if err != nil {
		return Result{}, err
	}

	outPath := out.Name()
	_ = out.Close()

	defer os.Remove(outPath)

	//nolint:gosec // the command comes from operator configuration
	cmd := exec.CommandContext(ctx, s.Command[0], s.Command[1:]...)
	cmd.Dir = s.Dir
	cmd.WaitDelay = waitDelay
	cmd.Env = append(os.Environ(), environment(req, outPath)...)

	var stderr bytes.Buffer

	cmd.Stderr = &stderr

	err = cmd.Run()
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	if err != nil {
		return Result{}, errs.Wrap(ErrJobFailed, fmt.Errorf("%w: %s", err, tail(stderr.String())))
	}

	outputs, err := readOutputs(outPath)
	if err != nil {
		return Result{}, err
	}

	return Result{Outputs: outputs}, nil
}

func environment(req Request, outPath string) []string {
	env := make([]string, 0, len(req.Inputs)+5)

	for name, v := range req.Inputs {
		env = append(env, EnvName(name)+"="+v)
	}

	env = append(env,
		EnvImage+"="+req.Image,
		EnvOutputFile+"="+outPath,
		EnvJobName+"="+req.Job,
		EnvRunID+"="+req.RunID,
	)

	if req.Credential != "" {
		env = append(env, EnvKubeconfig+"="+req.Credential)
	}

	return env
}

func readOutputs(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	outputs := make(map[string]string)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		outputs[strings.TrimSpace(k)] = v
	}

	err = scanner.Err()
	if err != nil {
		return nil, err
	}

	return outputs, nil
}

// EnvName converts a wire field name into its environment variable name.
func EnvName(field string) string {
	var b strings.Builder

	for i, r := range field {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('_')
		}

		b.WriteRune(unicode.ToUpper(r))
	}

	return b.String()
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= stderrTail {
		return s
	}

	return s[len(s)-stderrTail:]
}

package patcher

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const defaultKubectl = "kubectl"

// Kubectl runs kubectl against one cluster.
type Kubectl struct {
	path       string
	kubeconfig string
}

func NewKubectl(path, kubeconfig string) *Kubectl {
	if path == "" {
		path = defaultKubectl
	}

	return &Kubectl{path: path, kubeconfig: kubeconfig}
}

// Run executes kubectl with args and returns stdout. Stderr is part of the
// error on failure.
func (k *Kubectl) Run(ctx context.Context, stdin []byte, args ...string) (string, error) {
	if k.kubeconfig != "" {
		args = append([]string{"--kubeconfig", k.kubeconfig}, args...)
	}

	var stdout, stderr bytes.Buffer

	//nolint:gosec // kubectl path comes from operator configuration
	command := exec.CommandContext(ctx, k.path, args...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if stdin != nil {
		command.Stdin = bytes.NewReader(stdin)
	}

	err := command.Run()
	if err != nil {
		return "", fmt.Errorf("kubectl %s: %w (stderr: %s)",
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}

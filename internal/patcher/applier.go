package patcher

import (
	"context"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
)

// Applier writes rendered resources into one namespace.
type Applier interface {
	Apply(ctx context.Context, namespace string, resources []Resource) error
}

// CheckNamespace rejects any resource outside namespace.
func CheckNamespace(namespace string, resources []Resource) error {
	for _, r := range resources {
		if r.Namespace() != namespace {
			return errs.Wrapf(ErrCrossNamespace, r.Key()+" targets "+r.Namespace()+" instead of "+namespace)
		}
	}

	return nil
}

// KubectlApplier pipes the resources to "kubectl apply -n <ns> -f -".
type KubectlApplier struct {
	kubectl *Kubectl
}

var _ Applier = (*KubectlApplier)(nil)

func NewKubectlApplier(kubectl *Kubectl) *KubectlApplier {
	return &KubectlApplier{kubectl: kubectl}
}

func (a *KubectlApplier) Apply(ctx context.Context, namespace string, resources []Resource) error {
	err := CheckNamespace(namespace, resources)
	if err != nil {
		return err
	}

	manifest, err := Encode(resources)
	if err != nil {
		return err
	}

	_, err = a.kubectl.Run(ctx, manifest, "apply", "-n", namespace, "-f", "-")
	if err != nil {
		return errs.Wrap(ErrApplyFailed, err)
	}

	return nil
}

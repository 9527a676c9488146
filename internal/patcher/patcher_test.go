package patcher_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/tenant-lifecycle/internal/fanout"
	"github.com/openkcm/tenant-lifecycle/internal/metrics"
	"github.com/openkcm/tenant-lifecycle/internal/patcher"
	"github.com/openkcm/tenant-lifecycle/internal/registry"
	"github.com/openkcm/tenant-lifecycle/internal/repo/memory"
)

var errBoom = errors.New("boom")

var products = fanout.ServiceRegistration{
	Name:      "products",
	URLPrefix: "products",
	Image:     "products:1.0",
	Template:  "testdata/service.yaml",
}

func newPatcher(t *testing.T, svc fanout.ServiceRegistration, cluster *patcher.Cluster, opts ...patcher.Option) *patcher.Patcher {
	t.Helper()

	return patcher.New(svc, loadTemplate(t), cluster, cluster, opts...)
}

func TestBuildPatch(t *testing.T) {
	p, err := patcher.BuildPatch(products, loadTemplate(t), "t-100")
	require.NoError(t, err)

	assert.Equal(t, "t-100", p.Namespace)
	assert.Equal(t, "/t-100/products", p.RoutePath)
	assert.Equal(t, "t-100-service-account", p.ServiceAccount)

	shared := products
	shared.ServiceAccount = "products-runtime"

	p, err = patcher.BuildPatch(shared, loadTemplate(t), "t-100")
	require.NoError(t, err)
	assert.Equal(t, "products-runtime", p.ServiceAccount)
	assert.Equal(t, "ServiceAccount/products-runtime", p.Resources[0].Key())
}

func TestDeployTenantTouchesOneNamespace(t *testing.T) {
	cluster := patcher.NewCluster(true, "t-100", "t-200")
	m := metrics.New()

	require.NoError(t, newPatcher(t, products, cluster, patcher.WithMetrics(m)).DeployTenant(t.Context(), "t-100"))

	assert.Equal(t, map[string]int{"t-100": 1}, cluster.Writes())
	assert.Empty(t, cluster.Objects("t-200"))

	route, ok := cluster.Objects("t-100")["HTTPRoute/app"]
	require.True(t, ok)

	for _, r := range cluster.Objects("t-100") {
		assert.Equal(t, "t-100", r.Namespace())
	}

	manifest, err := patcher.Encode([]patcher.Resource{route})
	require.NoError(t, err)
	assert.Contains(t, string(manifest), "/t-100/products")
	assert.InDelta(t, 1, testutil.ToFloat64(m.NamespaceApplies.WithLabelValues("products", metrics.LabelSuccess)), 0)
}

func TestDeployTenantFailure(t *testing.T) {
	cluster := patcher.NewCluster(true)

	err := newPatcher(t, products, cluster).DeployTenant(t.Context(), "t-404")
	assert.ErrorIs(t, err, patcher.ErrUnknownNamespace)
}

func TestCheckNamespace(t *testing.T) {
	resources, err := loadTemplate(t).Render(values("t-1"))
	require.NoError(t, err)

	require.NoError(t, patcher.CheckNamespace("t-1", resources))

	resources[2].SetNamespace("t-2")
	assert.ErrorIs(t, patcher.CheckNamespace("t-1", resources), patcher.ErrCrossNamespace)
	assert.ErrorIs(t, patcher.NewCluster(false).Apply(t.Context(), "t-1", resources), patcher.ErrCrossNamespace)
}

func TestDeployAll(t *testing.T) {
	cluster := patcher.NewCluster(true, "t-1", "t-2", "t-3")
	cluster.FailNamespace("t-2", errBoom)

	res, err := newPatcher(t, products, cluster, patcher.WithParallelism(2)).DeployAll(t.Context())
	require.ErrorIs(t, err, patcher.ErrGlobalDeployIncomplete)
	require.ErrorIs(t, err, errBoom)

	var failure *patcher.NamespaceApplyFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "t-2", failure.Namespace)

	assert.Equal(t, 3, res.Namespaces)
	assert.Equal(t, []string{"t-1", "t-3"}, res.Applied)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "t-2", res.Failed[0].Namespace)
	assert.Equal(t, map[string]int{"t-1": 1, "t-3": 1}, cluster.Writes())
}

func TestDeployAllWithoutNamespaces(t *testing.T) {
	res, err := newPatcher(t, products, patcher.NewCluster(true)).DeployAll(t.Context())
	require.NoError(t, err)

	assert.Equal(t, patcher.Result{Service: "products", Namespaces: 0}, res)
}

func TestRegistryLister(t *testing.T) {
	ctx := t.Context()
	reg := registry.New(memory.NewStore())

	for _, id := range []string{"t-1", "t-2"} {
		_, err := reg.RequestProvisioning(ctx, registry.TenantRequest{TenantID: id, Tier: "basic"})
		require.NoError(t, err)
	}

	_, err := reg.MarkProvisioned(ctx, "t-2", "{}")
	require.NoError(t, err)

	namespaces, err := patcher.NewRegistryLister(reg).Namespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t-2"}, namespaces)
}

// fakeKubectl writes a kubectl stand-in that records its arguments and stdin.
func fakeKubectl(t *testing.T, stdout string) (*patcher.Kubectl, string) {
	t.Helper()

	dir := t.TempDir()
	record := filepath.Join(dir, "record")
	script := filepath.Join(dir, "kubectl")

	body := "#!/bin/sh\n" +
		"echo \"$@\" > " + record + "\n" +
		"cat >> " + record + "\n" +
		"printf '%s' '" + stdout + "'\n"

	require.NoError(t, os.WriteFile(script, []byte(body), 0o700))

	return patcher.NewKubectl(script, "/etc/kube/config"), record
}

func TestKubectlApplier(t *testing.T) {
	kubectl, record := fakeKubectl(t, "")
	resources, err := loadTemplate(t).Render(values("t-1"))
	require.NoError(t, err)

	require.NoError(t, patcher.NewKubectlApplier(kubectl).Apply(t.Context(), "t-1", resources))

	data, err := os.ReadFile(record)
	require.NoError(t, err)

	lines := strings.SplitN(string(data), "\n", 2)
	assert.Equal(t, "--kubeconfig /etc/kube/config apply -n t-1 -f -", lines[0])
	assert.Contains(t, lines[1], "kind: HTTPRoute")
	assert.Contains(t, lines[1], "namespace: t-1")
}

func TestKubectlLister(t *testing.T) {
	kubectl, record := fakeKubectl(t, "t-2 t-1")

	namespaces, err := patcher.NewKubectlLister(kubectl, "tenant-lifecycle/tenant").Namespaces(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"t-1", "t-2"}, namespaces)

	data, err := os.ReadFile(record)
	require.NoError(t, err)
	assert.Contains(t, string(data), "get namespaces -o jsonpath={.items[*].metadata.name} -l tenant-lifecycle/tenant")
}

func TestKubectlFailure(t *testing.T) {
	kubectl := patcher.NewKubectl(filepath.Join(t.TempDir(), "missing"), "")

	_, err := patcher.NewKubectlLister(kubectl, "").Namespaces(t.Context())
	assert.ErrorIs(t, err, patcher.ErrListNamespaces)
}

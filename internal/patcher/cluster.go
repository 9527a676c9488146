package patcher

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
)

// Cluster is an in-memory Applier and NamespaceLister. It records every write
// per namespace and is used by tests and the local mode.
type Cluster struct {
	mu         sync.Mutex
	namespaces map[string]map[string]Resource
	writes     map[string]int
	failures   map[string]error
	strict     bool
}

var (
	_ Applier         = (*Cluster)(nil)
	_ NamespaceLister = (*Cluster)(nil)
)

// NewCluster creates a cluster with namespaces. A strict cluster refuses to
// apply into namespaces it does not know.
func NewCluster(strict bool, namespaces ...string) *Cluster {
	c := &Cluster{
		namespaces: make(map[string]map[string]Resource),
		writes:     make(map[string]int),
		failures:   make(map[string]error),
		strict:     strict,
	}

	for _, ns := range namespaces {
		c.namespaces[ns] = make(map[string]Resource)
	}

	return c
}

func (c *Cluster) AddNamespace(ns string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.namespaces[ns]; !ok {
		c.namespaces[ns] = make(map[string]Resource)
	}
}

// FailNamespace makes every apply into ns fail with err.
func (c *Cluster) FailNamespace(ns string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		delete(c.failures, ns)
		return
	}

	c.failures[ns] = err
}

func (c *Cluster) Apply(_ context.Context, namespace string, resources []Resource) error {
	err := CheckNamespace(namespace, resources)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err, ok := c.failures[namespace]; ok {
		return errs.Wrap(ErrApplyFailed, err)
	}

	objects, ok := c.namespaces[namespace]
	if !ok {
		if c.strict {
			return errs.Wrapf(ErrUnknownNamespace, namespace)
		}

		objects = make(map[string]Resource)
		c.namespaces[namespace] = objects
	}

	for _, r := range resources {
		objects[r.Key()] = r
	}

	c.writes[namespace]++

	return nil
}

func (c *Cluster) Namespaces(context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Sorted(maps.Keys(c.namespaces)), nil
}

// Objects returns the resources stored in namespace keyed by kind/name.
func (c *Cluster) Objects(namespace string) map[string]Resource {
	c.mu.Lock()
	defer c.mu.Unlock()

	return maps.Clone(c.namespaces[namespace])
}

// Writes counts the applies per namespace.
func (c *Cluster) Writes() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return maps.Clone(c.writes)
}

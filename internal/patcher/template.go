package patcher

import (
	"bytes"
	"errors"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
)

// Placeholders substituted in every string scalar of a template.
const (
	PlaceholderTenantID       = "${TENANT_ID}"
	PlaceholderNamespace      = "${NAMESPACE}"
	PlaceholderRoutePath      = "${ROUTE_PATH}"
	PlaceholderServiceAccount = "${SERVICE_ACCOUNT}"
	PlaceholderImage          = "${IMAGE}"
)

var placeholder = regexp.MustCompile(`\$\{[A-Z_]+\}`)

// Values fills the placeholders of a template.
type Values struct {
	TenantID       string
	Namespace      string
	RoutePath      string
	ServiceAccount string
	Image          string
}

func (v Values) replacer() *strings.Replacer {
	return strings.NewReplacer(
		PlaceholderTenantID, v.TenantID,
		PlaceholderNamespace, v.Namespace,
		PlaceholderRoutePath, v.RoutePath,
		PlaceholderServiceAccount, v.ServiceAccount,
		PlaceholderImage, v.Image,
	)
}

// Template is a parsed multi-document patch. It is never mutated after
// parsing and may be shared between goroutines.
type Template struct {
	name string
	docs []Resource
}

func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(ErrInvalidTemplate, err)
	}

	return ParseTemplate(path, data)
}

func ParseTemplate(name string, data []byte) (*Template, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var docs []Resource

	for {
		var doc map[string]any

		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, errs.Wrap(ErrInvalidTemplate, err)
		}

		if doc == nil {
			continue
		}

		res := Resource(doc)
		if res.Kind() == "" || res.Name() == "" {
			return nil, errs.Wrapf(ErrInvalidTemplate, name+": every document needs kind and metadata.name")
		}

		docs = append(docs, res)
	}

	if len(docs) == 0 {
		return nil, errs.Wrapf(ErrInvalidTemplate, name+": no documents")
	}

	return &Template{name: name, docs: docs}, nil
}

func (t *Template) Name() string {
	return t.name
}

// Render returns a copy of every document with the placeholders substituted
// and metadata.namespace forced to v.Namespace.
func (t *Template) Render(v Values) ([]Resource, error) {
	r := v.replacer()

	out := make([]Resource, 0, len(t.docs))

	for _, doc := range t.docs {
		res, _ := substitute(map[string]any(doc), r).(map[string]any)
		rendered := Resource(res)
		rendered.SetNamespace(v.Namespace)

		left, err := rendered.unresolved()
		if err != nil {
			return nil, err
		}

		if left != "" {
			return nil, errs.Wrapf(ErrUnresolvedPlaceholder, t.name+": "+left)
		}

		out = append(out, rendered)
	}

	return out, nil
}

// substitute deep copies v, replacing placeholders in string scalars.
func substitute(v any, r *strings.Replacer) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = substitute(item, r)
		}

		return m
	case []any:
		s := make([]any, len(val))
		for i, item := range val {
			s[i] = substitute(item, r)
		}

		return s
	case string:
		return r.Replace(val)
	default:
		return val
	}
}

// Resource is one rendered Kubernetes object.
type Resource map[string]any

func (r Resource) Kind() string {
	kind, _ := r["kind"].(string)
	return kind
}

func (r Resource) metadata() map[string]any {
	md, _ := r["metadata"].(map[string]any)
	return md
}

func (r Resource) Name() string {
	name, _ := r.metadata()["name"].(string)
	return name
}

func (r Resource) Namespace() string {
	ns, _ := r.metadata()["namespace"].(string)
	return ns
}

func (r Resource) SetNamespace(ns string) {
	md := r.metadata()
	if md == nil {
		md = make(map[string]any)
		r["metadata"] = md
	}

	md["namespace"] = ns
}

// Key identifies the resource within its namespace.
func (r Resource) Key() string {
	return r.Kind() + "/" + r.Name()
}

// Lookup walks path through nested maps and returns the string found there.
func (r Resource) Lookup(path ...string) (string, bool) {
	var cur any = map[string]any(r)

	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}

		cur, ok = m[p]
		if !ok {
			return "", false
		}
	}

	s, ok := cur.(string)

	return s, ok
}

func (r Resource) unresolved() (string, error) {
	data, err := yaml.Marshal(map[string]any(r))
	if err != nil {
		return "", err
	}

	return placeholder.FindString(string(data)), nil
}

// Encode renders resources as one multi-document YAML stream.
func Encode(resources []Resource) ([]byte, error) {
	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	for _, r := range resources {
		err := enc.Encode(map[string]any(r))
		if err != nil {
			return nil, err
		}
	}

	err := enc.Close()
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
)

var (
	ErrConfigurationValuesError = errors.New("configuration value error")
	ErrLoadMTLSConfig           = errors.New("failed to load mTLS config")
	ErrNonDefinedTaskType       = errors.New("task type is unknown")
	ErrRepeatedTaskType         = errors.New("task type is specified more than once")
	ErrUnknownTaskService       = errors.New("scheduled task references an unknown service")

	ErrServiceEmptyName      = errors.New("service name must be specified")
	ErrServiceEmptyURLPrefix = errors.New("service url prefix must be specified")
	ErrServiceEmptyTemplate  = errors.New("service template must be specified")
	ErrServiceRepeated       = errors.New("service is specified more than once")

	ErrJobEmptyCommand = errors.New("job command must be specified")
	ErrJobTimeout      = errors.New("job timeout must be positive")

	ErrUnknownNamespaceSource    = errors.New("namespace source must be cluster or registry")
	ErrNamespaceSelectorRequired = errors.New("cluster namespace source requires a namespace selector")

	ErrAMQPEmptyURL    = errors.New("AMQP URL must be specified")
	ErrAMQPEmptyTarget = errors.New("AMQP target must be specified")
	ErrAMQPEmptySource = errors.New("AMQP source must be specified")
)

// Config holds all application configuration parameters
type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash"`

	Database         Database    `yaml:"database"`
	DatabaseReplicas []Database  `yaml:"databaseReplicas"`
	EventBus         EventBus    `yaml:"eventBus"`
	Scheduler        Scheduler   `yaml:"scheduler"`
	Jobs             Jobs        `yaml:"jobs"`
	Services         []Service   `yaml:"services"`
	Patcher          Patcher     `yaml:"patcher"`
	DeployAgent      DeployAgent `yaml:"deployAgent"`
	HTTP             HTTPServer  `yaml:"http"`
}

func (c *Config) Validate() error {
	err := validateServices(c.Services)
	if err != nil {
		return errs.Wrap(ErrConfigurationValuesError, err)
	}

	err = c.Scheduler.Validate(c.Services)
	if err != nil {
		return errs.Wrap(ErrConfigurationValuesError, err)
	}

	return nil
}

// Database holds database config
type Database struct {
	Name     string              `yaml:"name"`
	Port     string              `yaml:"port"`
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Secret   commoncfg.SourceRef `yaml:"secret"`
	// SSLMode is passed to libpq as is, "disable" when empty.
	SSLMode  string              `yaml:"sslMode"`
	Migrator Migrator            `yaml:"migrator"`
}

// Migrator points goose at a migration directory. Empty means the embedded set.
type Migrator struct {
	Dir string `yaml:"dir"`
}

// EventBus holds the lifecycle event transport config
type EventBus struct {
	TaskQueue       Redis  `yaml:"taskQueue"`
	Queue           string `yaml:"queue"`
	Concurrency     int    `yaml:"concurrency"`
	MaxRedeliveries int    `yaml:"maxRedeliveries"`
}

// Redis holds Redis client config
type Redis struct {
	Host      commoncfg.SourceRef `yaml:"host"`
	Port      string              `yaml:"port"`
	ACL       RedisACL            `yaml:"acl"`
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
}

type RedisACL struct {
	Enabled  bool                `yaml:"enabled"`
	Password commoncfg.SourceRef `yaml:"password"`
	Username commoncfg.SourceRef `yaml:"username"`
}

// Scheduler holds periodic task config
type Scheduler struct {
	Tasks []Task `yaml:"tasks"`
}

func (s *Scheduler) Validate(services []Service) error {
	known := make(map[string]struct{}, len(services))
	for _, svc := range services {
		known[svc.Name] = struct{}{}
	}

	checkedTasks := make(map[string]struct{}, len(s.Tasks))

	for _, task := range s.Tasks {
		_, found := DefinedTasks[task.TaskType]
		if !found {
			return ErrNonDefinedTaskType
		}

		_, found = known[task.Service]
		if !found {
			return errs.Wrapf(ErrUnknownTaskService, task.Service)
		}

		key := task.TaskType + ":" + task.Service

		_, found = checkedTasks[key]
		if found {
			return ErrRepeatedTaskType
		}

		checkedTasks[key] = struct{}{}
	}

	return nil
}

// Task holds a task config
type Task struct {
	Cronspec string `yaml:"cronspec"`
	TaskType string `yaml:"taskType"`
	Service  string `yaml:"service"`
	Retries  int    `yaml:"retries"`
}

// Jobs holds the provisioning and deprovisioning job environments
type Jobs struct {
	Provisioning   Job `yaml:"provisioning"`
	Deprovisioning Job `yaml:"deprovisioning"`
}

// Validate is only required by processes running the job runners.
func (j *Jobs) Validate() error {
	err := j.Provisioning.validate()
	if err != nil {
		return fmt.Errorf("provisioning: %w", err)
	}

	err = j.Deprovisioning.validate()
	if err != nil {
		return fmt.Errorf("deprovisioning: %w", err)
	}

	return nil
}

// Job describes the opaque unit of work a runner executes.
type Job struct {
	Command    []string      `yaml:"command"`
	Image      string        `yaml:"image"`
	Timeout    time.Duration `yaml:"timeout"`
	Kubeconfig string        `yaml:"kubeconfig"`
}

func (j *Job) validate() error {
	if len(j.Command) == 0 {
		return ErrJobEmptyCommand
	}

	if j.Timeout <= 0 {
		return ErrJobTimeout
	}

	return nil
}

// Service registers one application service for per-tenant deployment.
type Service struct {
	Name      string `yaml:"name"`
	URLPrefix string `yaml:"urlPrefix"`
	Project   string `yaml:"project"`
	Image     string `yaml:"image"`
	// ServiceAccount overrides the per-tenant "{tenantId}-service-account" binding.
	ServiceAccount string `yaml:"serviceAccount"`
	Template       string `yaml:"template"`
}

func (s *Service) Validate() error {
	if s.Name == "" {
		return ErrServiceEmptyName
	}

	if s.URLPrefix == "" {
		return ErrServiceEmptyURLPrefix
	}

	if s.Template == "" {
		return ErrServiceEmptyTemplate
	}

	return nil
}

func validateServices(services []Service) error {
	seen := make(map[string]struct{}, len(services))

	for _, svc := range services {
		err := svc.Validate()
		if err != nil {
			return err
		}

		_, found := seen[svc.Name]
		if found {
			return errs.Wrapf(ErrServiceRepeated, svc.Name)
		}

		seen[svc.Name] = struct{}{}
	}

	return nil
}

const (
	NamespaceSourceCluster  = "cluster"
	NamespaceSourceRegistry = "registry"
)

// Patcher holds namespace patching config
type Patcher struct {
	Kubectl    string `yaml:"kubectl"`
	Kubeconfig string `yaml:"kubeconfig"`
	// NamespaceSelector is the label selector of tenant namespaces, required
	// with the cluster source.
	NamespaceSelector string `yaml:"namespaceSelector"`
	Parallelism       int    `yaml:"parallelism"`
	// NamespaceSource is either "cluster" or "registry", empty means cluster.
	NamespaceSource string `yaml:"namespaceSource"`
}

// Validate requires a selector with the cluster source, global deploys must
// never reach the system namespaces.
func (p *Patcher) Validate() error {
	switch p.NamespaceSource {
	case "", NamespaceSourceCluster:
		if p.NamespaceSelector == "" {
			return ErrNamespaceSelectorRequired
		}
	case NamespaceSourceRegistry:
	default:
		return errs.Wrapf(ErrUnknownNamespaceSource, p.NamespaceSource)
	}

	return nil
}

// DeployAgent holds the remote deploy agent config
type DeployAgent struct {
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
	AMQP      AMQP                `yaml:"amqp"`
}

// Validate checks the DeployAgent configuration values
func (d *DeployAgent) Validate() error {
	if d.SecretRef.Type != commoncfg.MTLSSecretType && d.SecretRef.Type != commoncfg.InsecureSecretType {
		return errs.Wrapf(ErrConfigurationValuesError, "only insecure or mtls secrets are supported for deploy agent")
	}

	err := d.AMQP.validate()
	if err != nil {
		return errs.Wrap(ErrConfigurationValuesError, err)
	}

	return nil
}

type AMQP struct {
	URL    string `yaml:"url"`
	Target string `yaml:"target"`
	Source string `yaml:"source"`
}

func (a *AMQP) validate() error {
	if a.URL == "" {
		return ErrAMQPEmptyURL
	}

	if a.Target == "" {
		return ErrAMQPEmptyTarget
	}

	if a.Source == "" {
		return ErrAMQPEmptySource
	}

	return nil
}

// HTTPServer holds http server config
type HTTPServer struct {
	Address         string        `yaml:"address" default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`
}

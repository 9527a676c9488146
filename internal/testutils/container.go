package testutils

import (
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/openkcm/tenant-lifecycle/internal/config"
)

const (
	rabbitMQContainer = "tenant-lifecycle-rabbitmq-shared"
	postgresContainer = "tenant-lifecycle-postgresql-shared"
	redisContainer    = "tenant-lifecycle-redis-shared"
)

// StartRabbitMQ starts the shared broker used by deploy agent tests and
// returns its AMQP URL.
func StartRabbitMQ(
	tb testing.TB,
	opts ...testcontainers.ContainerCustomizer,
) string {
	tb.Helper()

	options := append([]testcontainers.ContainerCustomizer{
		testcontainers.WithReuseByName(rabbitMQContainer),
		testcontainers.WithAdditionalWaitStrategy(wait.ForListeningPort(nat.Port(rabbitmq.DefaultAMQPPort))),
	}, opts...)

	service, err := rabbitmq.Run(tb.Context(), "rabbitmq:4-alpine", options...)
	require.NoError(tb, err)

	url, err := service.AmqpURL(tb.Context())
	require.NoError(tb, err)

	return url
}

// StartPostgresSQL starts the shared registry database. When cfg is not nil it
// is filled with the connection details of the container.
func StartPostgresSQL(
	tb testing.TB,
	cfg *config.Database,
	opts ...testcontainers.ContainerCustomizer,
) {
	tb.Helper()

	name, user, secret := TestDB.Name, TestDB.User, TestDB.Secret

	options := append([]testcontainers.ContainerCustomizer{
		postgres.WithDatabase(name),
		postgres.WithUsername(user.Value),
		postgres.WithPassword(secret.Value),
		postgres.BasicWaitStrategies(),
		testcontainers.WithStartupCommand(testcontainers.NewRawCommand([]string{
			"postgres",
			"-c", "max_connections=500",
		})),
		testcontainers.WithReuseByName(postgresContainer),
	}, opts...)

	service, err := postgres.Run(tb.Context(), "postgres:16-alpine", options...)
	require.NoError(tb, err)

	if cfg == nil {
		return
	}

	p, err := service.MappedPort(tb.Context(), nat.Port("5432"))
	require.NoError(tb, err)

	host, err := service.Host(tb.Context())
	require.NoError(tb, err)

	cfg.Port = p.Port()
	cfg.Name = name
	cfg.User = user
	cfg.Secret = secret
	cfg.Host = commoncfg.SourceRef{
		Value:  host,
		Source: commoncfg.EmbeddedSourceValue,
	}
}

// StartRedis starts the shared task queue and points cfg at it.
func StartRedis(
	tb testing.TB,
	cfg *config.EventBus,
	opts ...testcontainers.ContainerCustomizer,
) {
	tb.Helper()

	options := append([]testcontainers.ContainerCustomizer{
		testcontainers.WithReuseByName(redisContainer),
	}, opts...)

	service, err := redis.Run(tb.Context(), "redis:7", options...)
	require.NoError(tb, err)

	if cfg == nil {
		return
	}

	port, err := service.MappedPort(tb.Context(), nat.Port("6379"))
	require.NoError(tb, err)

	host, err := service.Host(tb.Context())
	require.NoError(tb, err)

	cfg.TaskQueue.Host = commoncfg.SourceRef{
		Value:  host,
		Source: commoncfg.EmbeddedSourceValue,
	}
	cfg.TaskQueue.Port = port.Port()
	cfg.TaskQueue.SecretRef = commoncfg.SecretRef{Type: commoncfg.InsecureSecretType}
}

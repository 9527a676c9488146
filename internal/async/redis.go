package async

import (
	"net"

	"github.com/hibiken/asynq"
	"github.com/openkcm/common-sdk/pkg/commoncfg"

	"github.com/openkcm/tenant-lifecycle/internal/config"
	"github.com/openkcm/tenant-lifecycle/internal/errs"
)

// RedisClientOpt builds the asynq connection options of the task queue.
func RedisClientOpt(taskQueueCfg config.Redis) (asynq.RedisClientOpt, error) {
	taskQueueHost, err := commoncfg.LoadValueFromSourceRef(taskQueueCfg.Host)
	if err != nil {
		return asynq.RedisClientOpt{}, errs.Wrap(ErrLoadingTaskQueueHost, err)
	}

	switch taskQueueCfg.SecretRef.Type {
	case commoncfg.InsecureSecretType:
		clientOpts := asynq.RedisClientOpt{
			Addr: net.JoinHostPort(string(taskQueueHost), taskQueueCfg.Port),
		}

		if taskQueueCfg.ACL.Enabled {
			username, password, err := loadACLAuthFromConfig(taskQueueCfg)
			if err != nil {
				return asynq.RedisClientOpt{}, err
			}

			clientOpts.Username = string(username)
			clientOpts.Password = string(password)
		}

		return clientOpts, nil
	case commoncfg.MTLSSecretType:
		clientOpts, err := buildMTLSRedisClientOpt(taskQueueCfg, taskQueueHost)
		if err != nil {
			return asynq.RedisClientOpt{}, errs.Wrap(ErrMTLSRedisClientOpt, err)
		}

		return clientOpts, nil
	default:
		return asynq.RedisClientOpt{}, errs.Wrapf(ErrSecretTypeQueue, string(taskQueueCfg.SecretRef.Type))
	}
}

func buildMTLSRedisClientOpt(
	taskQueueCfg config.Redis,
	taskQueueHost []byte,
) (asynq.RedisClientOpt, error) {
	tlsConfig, err := commoncfg.LoadMTLSConfig(&taskQueueCfg.SecretRef.MTLS)
	if err != nil {
		return asynq.RedisClientOpt{}, errs.Wrap(config.ErrLoadMTLSConfig, err)
	}

	clientOpts := asynq.RedisClientOpt{
		Addr:      net.JoinHostPort(string(taskQueueHost), taskQueueCfg.Port),
		TLSConfig: tlsConfig,
	}

	if taskQueueCfg.ACL.Enabled {
		username, password, err := loadACLAuthFromConfig(taskQueueCfg)
		if err != nil {
			return asynq.RedisClientOpt{}, err
		}

		clientOpts.Username = string(username)
		clientOpts.Password = string(password)
	}

	return clientOpts, nil
}

func loadACLAuthFromConfig(cfg config.Redis) ([]byte, []byte, error) {
	username, err := commoncfg.LoadValueFromSourceRef(cfg.ACL.Username)
	if err != nil {
		return nil, nil, ErrACLUsername
	}

	password, err := commoncfg.LoadValueFromSourceRef(cfg.ACL.Password)
	if err != nil {
		return nil, nil, ErrACLPassword
	}

	return username, password, nil
}

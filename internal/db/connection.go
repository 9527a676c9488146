package db

import (
	"context"
	"errors"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"

	multitenancy "github.com/bartventer/gorm-multitenancy/v8"
	pg "github.com/bartventer/gorm-multitenancy/postgres/v8"

	"github.com/openkcm/tenant-lifecycle/internal/config"
	"github.com/openkcm/tenant-lifecycle/internal/db/dsn"
	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/model"
)

var (
	ErrStartingDBCon            = errors.New("error starting db connection")
	ErrDBResolver               = errors.New("error starting db resolver")
	ErrLoadingDsnFromDBConfig   = errors.New("error loading dsn from db config")
	ErrLoadingReplicaDialectors = errors.New("error loading replica dialectors")
	ErrRegisteringModels        = errors.New("error registering models")
)

// StartDBConnection opens DB connection using data from `config.Database`.
func StartDBConnection(
	ctx context.Context,
	conf config.Database,
	replicas []config.Database,
) (*multitenancy.DB, error) {
	return StartDBConnectionPlugins(ctx, conf, replicas, map[string]gorm.Plugin{})
}

// StartDBConnectionPlugins opens DB connection using data from `config.Database`
// and plugins that are passed in a form of map because GORM config stores
// them this way.
func StartDBConnectionPlugins(
	ctx context.Context,
	conf config.Database,
	replicas []config.Database,
	plugins map[string]gorm.Plugin,
) (*multitenancy.DB, error) {
	dsnFromConfig, err := dsn.FromDBConfig(conf)
	if err != nil {
		return nil, errs.Wrap(ErrLoadingDsnFromDBConfig, err)
	}

	return OpenDSN(ctx, dsnFromConfig, replicas, plugins)
}

// OpenDSN opens the registry database from an already rendered DSN.
func OpenDSN(
	ctx context.Context,
	primary string,
	replicas []config.Database,
	plugins map[string]gorm.Plugin,
) (*multitenancy.DB, error) {
	dialector := newDialector(primary)

	db, err := multitenancy.Open(dialector, &gorm.Config{
		Plugins:        plugins,
		TranslateError: true,
	})
	if err != nil {
		return nil, errs.Wrap(ErrStartingDBCon, err)
	}

	db = db.WithContext(ctx)

	err = db.RegisterModels(
		ctx,
		&model.Tenant{},
		&model.ServiceDeployment{},
		&model.TenantResource{},
	)
	if err != nil {
		return nil, errs.Wrap(ErrRegisteringModels, err)
	}

	if len(replicas) == 0 {
		return db, nil
	}

	replicaDialectorsFromReplicas, err := replicaDialectors(replicas)
	if err != nil {
		return nil, errs.Wrap(ErrLoadingReplicaDialectors, err)
	}

	err = db.Use(dbresolver.Register(dbresolver.Config{
		Sources:  []gorm.Dialector{dialector},
		Replicas: replicaDialectorsFromReplicas,
		Policy:   dbresolver.RandomPolicy{},
	}))
	if err != nil {
		return nil, errs.Wrap(ErrDBResolver, err)
	}

	return db, nil
}

func replicaDialectors(replicas []config.Database) ([]gorm.Dialector, error) {
	dialects := make([]gorm.Dialector, 0, len(replicas))

	for _, r := range replicas {
		dsnFromConfig, err := dsn.FromDBConfig(r)
		if err != nil {
			return nil, errs.Wrap(ErrLoadingDsnFromDBConfig, err)
		}

		dialects = append(dialects, newDialector(dsnFromConfig))
	}

	return dialects, nil
}

// newDialector disables prepared statement caching so a migration running
// beside a live process cannot break it with "cached plan must not change
// result type".
func newDialector(dsn string) gorm.Dialector {
	return pg.New(pg.Config{
		Config: postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		},
	})
}

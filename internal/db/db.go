package db

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	retry "github.com/avast/retry-go/v5"
	multitenancy "github.com/bartventer/gorm-multitenancy/v8"

	"github.com/openkcm/tenant-lifecycle/internal/config"
	"github.com/openkcm/tenant-lifecycle/internal/log"
)

const (
	DBLogDomain = "db"

	connectAttempts = 5
	connectDelay    = 500 * time.Millisecond
	connectMaxDelay = 5 * time.Second
)

// StartDB opens the registry database, retrying while postgres comes up.
func StartDB(
	ctx context.Context,
	cfg *config.Config,
) (*multitenancy.DB, error) {
	log.Info(ctx, "Starting DB connection")

	var dbCon *multitenancy.DB

	attempt := 0
	retrier := retry.New(
		retry.Context(ctx),
		retry.Delay(connectDelay),
		retry.MaxDelay(connectMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Attempts(connectAttempts),
		retry.LastErrorOnly(true),
	)

	err := retrier.Do(func() error {
		attempt++

		var err error

		dbCon, err = StartDBConnection(ctx, cfg.Database, cfg.DatabaseReplicas)
		if err != nil {
			log.Warn(ctx, "DB connection attempt failed", slog.Int("attempt", attempt), log.ErrorAttr(err))
		}

		return err
	})
	if err != nil {
		return nil, oops.In(DBLogDomain).Wrapf(err, "failed to initialize DB Connection")
	}

	return dbCon, nil
}

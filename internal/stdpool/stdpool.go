// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package stdpool creates standardized database connections. Adapted
// from the teacher's internal/util/stdpool/my.go: a ping-retry loop
// around dial, bound to a stopper.Context for cleanup, generalized
// from a single MySQL target pool into the Worker's local pool (pgx,
// always Postgres-family since the locally-replicated database in
// this spec is Postgres-compatible) and a per-Provider connection
// (database/sql, either Postgres via lib/pq or MySQL via
// go-sql-driver/mysql, selected by the registry's driver name).
package stdpool

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/go-sql-driver/mysql" // register driver
	_ "github.com/lib/pq"              // register driver
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ioguix/slony1-engine/internal/stopper"
	"github.com/ioguix/slony1-engine/internal/types"
)

// OpenLocalPool opens the Worker's own connection pool against the
// locally-replicated database.
func OpenLocalPool(ctx *stopper.Context, connString string) (*types.LocalPool, func(), error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	raw, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}

	ret := &types.LocalPool{
		Pool: raw,
		PoolInfo: types.PoolInfo{
			ConnectionString: connString,
			DriverName:       "pgx",
		},
	}

	ctx.Go(func() error {
		<-ctx.Stopping()
		ret.Close()
		return nil
	})

	if err := pingLocal(ctx, ret); err != nil {
		ret.Close()
		return nil, nil, err
	}

	return ret, ret.Close, nil
}

func pingLocal(ctx context.Context, pool *types.LocalPool) error {
	return errors.Wrap(pool.Ping(ctx), "could not ping local database")
}

// OpenProviderConn dials a provider node's database. If waitForStartup
// is set, a failed ping is retried once a second until cfg.ConnRetry
// elapses; otherwise the first failed ping is returned. cfg.DriverName
// selects "postgres" (lib/pq) or "mysql" (go-sql-driver/mysql); both
// speak database/sql uniformly, which is what lets a Helper declare a
// server-side cursor the same way regardless of dialect.
func OpenProviderConn(
	ctx *stopper.Context, cfg types.ProviderConfig, waitForStartup bool,
) (*types.ProviderConn, func(), error) {
	if cfg.ConnInfo == "" {
		return nil, nil, errors.New("provider connection string is not configured")
	}

	driverName := cfg.DriverName
	if driverName == "" {
		driverName = "postgres"
	}

	db, err := sql.Open(driverName, cfg.ConnInfo)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}

	ret := &types.ProviderConn{
		DB: db,
		PoolInfo: types.PoolInfo{
			ConnectionString: cfg.ConnInfo,
			DriverName:       driverName,
		},
	}

	ctx.Go(func() error {
		<-ctx.Stopping()
		if err := ret.Close(); err != nil {
			log.WithError(errors.WithStack(err)).Warn("could not close provider connection")
		}
		return nil
	})

	deadline := time.Now().Add(cfg.ConnRetry)
	for {
		if pingErr := ret.PingContext(ctx); pingErr == nil {
			break
		} else if !waitForStartup || time.Now().After(deadline) {
			return nil, nil, errors.Wrapf(pingErr, "could not connect to provider %d", cfg.NodeID)
		} else {
			log.WithField("provider", cfg.NodeID).Info("waiting for provider database to become ready")
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}

	return ret, ret.Close, nil
}

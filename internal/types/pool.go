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

package types

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolInfo describes a database connection pool and what it's
// connected to.
type PoolInfo struct {
	ConnectionString string
	DriverName       string
}

// Info returns the PoolInfo when embedded.
func (i *PoolInfo) Info() *PoolInfo { return i }

// LocalPool is an injection point for the connection the Worker itself
// owns: the replicated, locally-authoritative database that receives
// applied mutations, sl_event/sl_confirm/sl_setsync writes, and NOTIFY
// traffic. Exactly one LocalPool exists per Worker.
type LocalPool struct {
	*pgxpool.Pool
	PoolInfo
	_ noCopy
}

// LocalQuerier is implemented by pgxpool.Pool, pgxpool.Conn, pgx.Conn,
// and pgx.Tx. It lets the Worker's transaction-handling code accept
// either a pool or an already-open transaction.
type LocalQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...interface{}) pgx.Row
}

var (
	_ LocalQuerier = (*pgxpool.Pool)(nil)
	_ LocalQuerier = (*pgxpool.Conn)(nil)
	_ LocalQuerier = (pgx.Tx)(nil)
)

// ProviderConn is a Helper's exclusive connection to its provider
// node. Providers may be Postgres-family (lib/pq) or MySQL-family
// (go-sql-driver/mysql); both speak database/sql, which is what lets a
// Helper declare a server-side cursor uniformly regardless of dialect.
type ProviderConn struct {
	*sql.DB
	PoolInfo
	_ noCopy
}

type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

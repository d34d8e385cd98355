/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package axle composes connection scoping, transaction demarcation, query
// caching, and concurrent fan-out around raw database operations. Layers
// stack in one fixed order: cache → transaction → connection → execution.
// The cache is the outermost layer and decides whether the deeper layers run
// at all, so operations with side effects must use the cache-bypassing
// entry points.
package axle

import (
	"context"
	"database/sql"
	"sync"

	"github.com/tomoncle/axle/cache"
	"github.com/tomoncle/axle/database"
	"github.com/tomoncle/axle/fetch"
	"github.com/tomoncle/axle/types"
	"github.com/uptrace/bun"
)

// Pipeline is the composed middleware surface over one database.
type Pipeline struct {
	scope   *database.Scope
	coord   *database.Coordinator
	cache   *cache.QueryCache
	cacheOn bool
	fetcher *fetch.Fetcher
	logger  database.Logger
}

// Option customizes a Pipeline.
type Option func(*options)

type options struct {
	cache        *cache.QueryCache
	cacheEnabled bool
	fetcherCfg   database.FetcherConfig
	logger       database.Logger
}

// WithCache shares an existing query cache between pipelines.
func WithCache(c *cache.QueryCache) Option {
	return func(o *options) { o.cache = c }
}

// WithCacheConfig applies the cache settings from a loaded configuration.
// With Enabled false the Cached* entry points degrade to their uncached
// counterparts.
func WithCacheConfig(cfg database.CacheConfig) Option {
	return func(o *options) { o.cacheEnabled = cfg.Enabled }
}

// WithFetcherConfig sets fan-out concurrency and error semantics.
func WithFetcherConfig(cfg database.FetcherConfig) Option {
	return func(o *options) { o.fetcherCfg = cfg }
}

// WithLogger routes the pipeline's log output to a custom logger.
func WithLogger(l database.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds a pipeline over db.
func New(db *bun.DB, opts ...Option) *Pipeline {
	o := &options{cacheEnabled: true}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = database.GetLogger()
	}
	if o.cache == nil {
		o.cache = cache.New()
	}

	scope := database.NewScopeWithLogger(db, o.logger)
	return &Pipeline{
		scope:   scope,
		coord:   database.NewCoordinatorWithLogger(o.logger),
		cache:   o.cache,
		cacheOn: o.cacheEnabled,
		fetcher: fetch.New(scope, o.fetcherCfg),
		logger:  o.logger,
	}
}

// NewDefault returns a pipeline that binds lazily to the global database
// initialized by database.InitDB.
func NewDefault(opts ...Option) *DefaultPipeline {
	return &DefaultPipeline{opts: opts}
}

// DefaultPipeline defers pipeline construction until first use so it can be
// declared before database.InitDB has run.
type DefaultPipeline struct {
	once sync.Once
	opts []Option
	p    *Pipeline
}

func (d *DefaultPipeline) pipeline() *Pipeline {
	d.once.Do(func() {
		opts := d.opts
		if cfg := database.GetConfig(); cfg != nil {
			opts = append([]Option{
				WithCacheConfig(cfg.CacheConfig),
				WithFetcherConfig(cfg.FetcherConfig),
			}, opts...)
		}
		d.p = New(database.GetDB(), opts...)
	})
	return d.p
}

// Query executes one read operation in its own connection scope, bypassing
// the cache.
func (p *Pipeline) Query(ctx context.Context, query string, args ...interface{}) (*types.ResultSet, error) {
	return p.scope.QueryOne(ctx, types.NewOperation(query, args...))
}

// CachedQuery executes a read operation through the cache layer: a hit
// replays the stored snapshot without touching the database, a miss runs the
// query in its own scope and stores the result. With the cache disabled it
// behaves exactly like Query. Never route writes here; a hit would silently
// skip their side effects.
func (p *Pipeline) CachedQuery(ctx context.Context, query string, args ...interface{}) (*types.ResultSet, error) {
	if !p.cacheOn {
		return p.Query(ctx, query, args...)
	}
	key := cache.NewKey(query, args...)
	return p.cache.GetOrCompute(key, func() (*types.ResultSet, error) {
		return p.Query(ctx, query, args...)
	})
}

// CachedQueryInTx is the fully stacked read path: cache outermost, then
// transaction, then connection. On a miss the query runs inside an explicit
// transaction with the given options; a hit runs nothing at all. With the
// cache disabled every call runs the transaction.
func (p *Pipeline) CachedQueryInTx(ctx context.Context, opts *sql.TxOptions, query string, args ...interface{}) (*types.ResultSet, error) {
	if !p.cacheOn {
		return p.queryInTx(ctx, opts, query, args...)
	}
	key := cache.NewKey(query, args...)
	return p.cache.GetOrCompute(key, func() (*types.ResultSet, error) {
		return p.queryInTx(ctx, opts, query, args...)
	})
}

func (p *Pipeline) queryInTx(ctx context.Context, opts *sql.TxOptions, query string, args ...interface{}) (*types.ResultSet, error) {
	var set *types.ResultSet
	err := p.RunInTx(ctx, opts, func(ctx context.Context, txc *database.TxContext) error {
		rows, err := txc.Tx().QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		set, err = database.ScanRows(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// Exec executes one statement in its own connection scope and returns the
// affected row count.
func (p *Pipeline) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	return database.RunWith(ctx, p.scope, func(ctx context.Context, h *database.Handle) (int64, error) {
		return h.Exec(ctx, query, args...)
	})
}

// RunInTx acquires a connection, runs fn inside an explicit transaction on
// it, and releases the connection afterwards. Commit on a nil return,
// rollback otherwise; see database.Coordinator for the error contract.
func (p *Pipeline) RunInTx(ctx context.Context, opts *sql.TxOptions, fn database.TxFunc) error {
	return p.scope.Run(ctx, func(ctx context.Context, h *database.Handle) error {
		_, err := p.coord.RunInTx(ctx, h, opts, fn)
		return err
	})
}

// Run exposes the bare connection scope for callers that manage their own
// statements on the handle.
func (p *Pipeline) Run(ctx context.Context, fn func(ctx context.Context, h *database.Handle) error) error {
	return p.scope.Run(ctx, fn)
}

// FetchAll runs independent read operations concurrently, each on its own
// connection, and returns their results aligned to request order.
func (p *Pipeline) FetchAll(ctx context.Context, requests []types.Operation) ([]*types.ResultSet, error) {
	return p.fetcher.FetchAll(ctx, requests)
}

// FetchAllResults is FetchAll with per-request outcomes instead of a single
// failing error.
func (p *Pipeline) FetchAllResults(ctx context.Context, requests []types.Operation) []fetch.Result {
	return p.fetcher.FetchAllResults(ctx, requests)
}

// Cache returns the pipeline's query cache.
func (p *Pipeline) Cache() *cache.QueryCache { return p.cache }

// ClearCache drops every memoized result.
func (p *Pipeline) ClearCache() { p.cache.Clear() }

// Scope returns the pipeline's connection scope.
func (p *Pipeline) Scope() *database.Scope { return p.scope }

// Query delegates to the lazily bound pipeline.
func (d *DefaultPipeline) Query(ctx context.Context, query string, args ...interface{}) (*types.ResultSet, error) {
	return d.pipeline().Query(ctx, query, args...)
}

// CachedQuery delegates to the lazily bound pipeline.
func (d *DefaultPipeline) CachedQuery(ctx context.Context, query string, args ...interface{}) (*types.ResultSet, error) {
	return d.pipeline().CachedQuery(ctx, query, args...)
}

// Exec delegates to the lazily bound pipeline.
func (d *DefaultPipeline) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	return d.pipeline().Exec(ctx, query, args...)
}

// RunInTx delegates to the lazily bound pipeline.
func (d *DefaultPipeline) RunInTx(ctx context.Context, opts *sql.TxOptions, fn database.TxFunc) error {
	return d.pipeline().RunInTx(ctx, opts, fn)
}

// FetchAll delegates to the lazily bound pipeline.
func (d *DefaultPipeline) FetchAll(ctx context.Context, requests []types.Operation) ([]*types.ResultSet, error) {
	return d.pipeline().FetchAll(ctx, requests)
}

// ClearCache delegates to the lazily bound pipeline.
func (d *DefaultPipeline) ClearCache() { d.pipeline().ClearCache() }

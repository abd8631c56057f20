// Package setup builds shared service dependencies from the viper config
package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/vidsearch/internal/pkg/consul"
	"github.com/airenas/vidsearch/internal/pkg/index"
	"github.com/airenas/vidsearch/internal/pkg/ingest"
	"github.com/airenas/vidsearch/internal/pkg/monitor"
	"github.com/airenas/vidsearch/internal/pkg/search"
	"github.com/airenas/vidsearch/internal/pkg/storage"
	"github.com/airenas/vidsearch/internal/pkg/videoindexer"
	vapi "github.com/airenas/vidsearch/internal/pkg/videoindexer/api"
	capi "github.com/hashicorp/consul/api"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
)

// staticGatewayKey is the transcriber key of a single configured gateway
const staticGatewayKey = "static"

// GatewayProvider returns transcription gateway by key
type GatewayProvider interface {
	Get(srv string, allowNew bool) (vapi.Gateway, string, error)
}

// DBPool creates postgres pool from `db.url`
func DBPool(ctx context.Context, cfg *viper.Viper) (*pgxpool.Pool, error) {
	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		return nil, fmt.Errorf("can't parse db config: %w", err)
	}
	if cfg.GetBool("db.trace") {
		addDBLog(dbConfig)
	}
	goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")
	res, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("can't init db pool: %w", err)
	}
	return res, nil
}

func addDBLog(dbConfig *pgxpool.Config) {
	logFunc := func(msg string) { goapp.Log.Debug().Msg(msg) }
	dbConfig.BeforeConnect = func(ctx context.Context, cc *pgx.ConnConfig) error {
		logFunc("before connect")
		return nil
	}
	dbConfig.AfterConnect = func(ctx context.Context, c *pgx.Conn) error {
		logFunc("after connect")
		return nil
	}
	dbConfig.BeforeAcquire = func(ctx context.Context, c *pgx.Conn) bool {
		logFunc("before acquire")
		return true
	}
	dbConfig.AfterRelease = func(c *pgx.Conn) bool {
		logFunc("after release")
		return true
	}
}

// VideoIndexer creates the client of the configured video indexer account
func VideoIndexer(cfg *viper.Viper) (*videoindexer.Client, error) {
	return videoindexer.NewClient(cfg.GetString("videoindexer.url"), cfg.GetString("videoindexer.location"),
		cfg.GetString("videoindexer.accountID"), tokens(cfg))
}

func tokens(cfg *viper.Viper) videoindexer.TokenProvider {
	return videoindexer.StaticToken(cfg.GetString("videoindexer.accessToken"))
}

// Gateways creates the gateway provider.
// If `consul.service` is set, gateways are discovered in consul and refreshed until ctx is done,
// otherwise the single configured video indexer account is used
func Gateways(ctx context.Context, cfg *viper.Viper) (GatewayProvider, error) {
	srv := cfg.GetString("consul.service")
	if srv == "" {
		cl, err := VideoIndexer(cfg)
		if err != nil {
			return nil, fmt.Errorf("can't init video indexer: %w", err)
		}
		res, err := consul.NewStatic(cl, staticGatewayKey)
		if err != nil {
			return nil, fmt.Errorf("can't init static gateway: %w", err)
		}
		return res, nil
	}
	cCfg := capi.DefaultConfig()
	if addr := cfg.GetString("consul.address"); addr != "" {
		cCfg.Address = addr
	}
	res, err := consul.NewProvider(cCfg, srv, tokens(cfg))
	if err != nil {
		return nil, fmt.Errorf("can't init consul provider: %w", err)
	}
	if _, err := res.StartRegistryLoop(ctx, DefaultV(cfg.GetDuration("consul.checkInterval"), 30*time.Second)); err != nil {
		return nil, fmt.Errorf("can't start consul loop: %w", err)
	}
	return res, nil
}

// StorageConfig reads `storage.*`
func StorageConfig(cfg *viper.Viper) storage.Config {
	return storage.Config{URL: cfg.GetString("storage.url"), User: cfg.GetString("storage.user"),
		Key: cfg.GetString("storage.key"), Region: cfg.GetString("storage.region"),
		Bucket: cfg.GetString("storage.bucket"), Account: cfg.GetString("storage.account"),
		Secure: cfg.GetBool("storage.secure")}
}

// MonitorConfig reads `monitor.*`
func MonitorConfig(cfg *viper.Viper) monitor.Config {
	return monitor.Config{
		PollingInterval: time.Duration(DefaultV(cfg.GetInt("monitor.pollingIntervalSec"),
			int(monitor.DefaultPollingInterval.Seconds()))) * time.Second,
		MaxDuration: time.Duration(DefaultV(cfg.GetInt("monitor.maxMonitoringSec"),
			int(monitor.DefaultMaxDuration.Seconds()))) * time.Second,
		MaxErrors: DefaultV(cfg.GetInt("monitor.maxErrors"), monitor.DefaultMaxErrors),
	}
}

// IngestConfig reads `ingest.*`
func IngestConfig(cfg *viper.Viper) ingest.Config {
	return ingest.Config{ReadURLExpiry: DefaultV(cfg.GetDuration("ingest.readURLExpiry"), ingest.DefaultReadURLExpiry)}
}

// Indexer creates the search index writer chain
func Indexer(cfg *viper.Viper) (*index.Indexer, error) {
	sc, err := search.NewClient(search.Config{URL: cfg.GetString("search.url"), Name: cfg.GetString("search.name"),
		Index: cfg.GetString("search.index"), Key: cfg.GetString("search.key"),
		APIVersion: cfg.GetString("search.apiVersion")})
	if err != nil {
		return nil, fmt.Errorf("can't init search client: %w", err)
	}
	w, err := index.NewWriter(sc, index.Config{BatchSize: DefaultV(cfg.GetInt("index.batchSize"), index.DefaultBatchSize)})
	if err != nil {
		return nil, fmt.Errorf("can't init index writer: %w", err)
	}
	return index.NewIndexer(w)
}

// Coordinator creates the ingest coordinator
func Coordinator(cfg *viper.Viper, gateways GatewayProvider, starter ingest.Starter) (*ingest.Coordinator, error) {
	mc, err := storage.NewClient(StorageConfig(cfg))
	if err != nil {
		return nil, err
	}
	issuer, err := storage.NewIssuer(mc)
	if err != nil {
		return nil, fmt.Errorf("can't init url issuer: %w", err)
	}
	return ingest.NewCoordinator(issuer, gateways, starter, IngestConfig(cfg))
}

// DefaultV returns v, or def if v is the zero value
func DefaultV[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

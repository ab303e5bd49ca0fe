package transport

import (
	"time"

	rdClient "github.com/redis/go-redis/v9"

	"github.com/shuldan/eventbus/pkg/connection"
	"github.com/shuldan/eventbus/pkg/contracts"
	"github.com/shuldan/eventbus/pkg/eventbus"
	"github.com/shuldan/eventbus/pkg/transport/memory"
	"github.com/shuldan/eventbus/pkg/transport/redis"
	"github.com/shuldan/eventbus/pkg/transport/sqldb"
)

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverSQL    = "sql"
)

// New builds the transport selected by eventbus.driver. A missing eventbus
// section yields the in-memory transport.
func New(cfg contracts.Config, logger contracts.Logger) (eventbus.Transport, error) {
	busCfg, ok := subOf(cfg, "eventbus")
	if !ok {
		return memory.New(memory.WithLogger(logger)), nil
	}

	driver := busCfg.GetString("driver", DriverMemory)
	switch driver {
	case DriverMemory:
		return createMemory(busCfg, logger), nil
	case DriverRedis:
		redisCfg, exists := busCfg.GetSub("drivers.redis")
		if !exists {
			return nil, ErrDriverConfigNotFound.WithDetail("driver", driver)
		}
		return createRedis(busCfg, redisCfg, resolverFor(cfg), logger), nil
	case DriverSQL:
		sqlCfg, exists := busCfg.GetSub("drivers.sql")
		if !exists {
			return nil, ErrDriverConfigNotFound.WithDetail("driver", driver)
		}
		return createSQL(busCfg, sqlCfg, resolverFor(cfg), logger)
	default:
		return nil, ErrUnsupportedDriver.WithDetail("driver", driver)
	}
}

func subOf(cfg contracts.Config, key string) (contracts.Config, bool) {
	if cfg == nil {
		return nil, false
	}
	return cfg.GetSub(key)
}

func resolverFor(cfg contracts.Config) eventbus.NameResolver {
	return eventbus.NewNameResolver(eventbus.OptionsFromConfig(cfg)...)
}

func createMemory(busCfg contracts.Config, logger contracts.Logger) eventbus.Transport {
	opts := []memory.Option{memory.WithLogger(logger)}
	if size := busCfg.GetInt("drivers.memory.buffer_size", 0); size > 0 {
		opts = append(opts, memory.WithBufferSize(size))
	}
	return memory.New(opts...)
}

func connectionOptions(busCfg contracts.Config) []connection.Option {
	return []connection.Option{
		connection.WithRetryCount(busCfg.GetInt("connection_retry_count", connection.DefaultRetryCount)),
	}
}

func createRedis(busCfg, cfg contracts.Config, resolver eventbus.NameResolver, logger contracts.Logger) eventbus.Transport {
	clientOptions := &rdClient.Options{
		Addr:     cfg.GetString("client.address", "localhost:6379"),
		Username: cfg.GetString("client.username", ""),
		Password: cfg.GetString("client.password", ""),
		DB:       cfg.GetInt("client.db", 0),
	}

	opts := []redis.Option{
		redis.WithLogger(logger),
		redis.WithTopic(busCfg.GetString("default_topic_name", "")),
		redis.WithNameResolver(resolver),
		redis.WithConnectionOptions(connectionOptions(busCfg)...),
	}

	if timeout := cfg.GetInt64("processing_timeout", 0); timeout > 0 {
		opts = append(opts, redis.WithProcessingTimeout(time.Duration(timeout)*time.Second))
	}

	if interval := cfg.GetInt64("claim_interval", 0); interval > 0 {
		opts = append(opts, redis.WithClaimInterval(time.Duration(interval)*time.Second))
	}

	if batch := cfg.GetInt("max_claim_batch", 0); batch > 0 {
		opts = append(opts, redis.WithMaxClaimBatch(batch))
	}

	if block := cfg.GetInt64("block_timeout_ms", 0); block > 0 {
		opts = append(opts, redis.WithBlockTimeout(time.Duration(block)*time.Millisecond))
	}

	if maxLen := cfg.GetInt64("max_stream_length", 0); maxLen > 0 {
		opts = append(opts, redis.WithMaxStreamLength(maxLen))
	}

	if trim := cfg.GetBool("approximate_trimming", true); !trim {
		opts = append(opts, redis.WithApproximateTrimming(trim))
	}

	if claim := cfg.GetBool("enable_claim", true); !claim {
		opts = append(opts, redis.WithClaim(claim))
	}

	if prefix := cfg.GetString("consumer_prefix", ""); prefix != "" {
		opts = append(opts, redis.WithConsumerPrefix(prefix))
	}

	if cfg.Has("max_deliveries") {
		opts = append(opts, redis.WithMaxDeliveries(cfg.GetInt64("max_deliveries")))
	}

	if deadLetter := cfg.GetBool("dead_letter", true); !deadLetter {
		opts = append(opts, redis.WithDeadLetter(deadLetter))
	}

	return redis.New(clientOptions, opts...)
}

func createSQL(busCfg, cfg contracts.Config, resolver eventbus.NameResolver, logger contracts.Logger) (eventbus.Transport, error) {
	dsn := cfg.GetString("dsn", "")
	if dsn == "" {
		return nil, ErrDSNNotConfigured
	}

	opts := []sqldb.Option{
		sqldb.WithLogger(logger),
		sqldb.WithTopic(busCfg.GetString("default_topic_name", "")),
		sqldb.WithNameResolver(resolver),
		sqldb.WithConnectionOptions(connectionOptions(busCfg)...),
	}

	if cfg.Has("table_prefix") {
		opts = append(opts, sqldb.WithTablePrefix(cfg.GetString("table_prefix")))
	}

	if interval := cfg.GetInt64("poll_interval_ms", 0); interval > 0 {
		opts = append(opts, sqldb.WithPollInterval(time.Duration(interval)*time.Millisecond))
	}

	if batch := cfg.GetInt("batch_size", 0); batch > 0 {
		opts = append(opts, sqldb.WithBatchSize(batch))
	}

	if maxOpen := cfg.GetInt("max_open_conns", 0); maxOpen > 0 {
		opts = append(opts, sqldb.WithConnectionPool(
			maxOpen,
			cfg.GetInt("max_idle_conns", maxOpen/2),
			time.Duration(cfg.GetInt64("conn_max_lifetime", 3600))*time.Second,
		))
	}

	if cfg.Has("max_deliveries") {
		opts = append(opts, sqldb.WithMaxDeliveries(cfg.GetInt("max_deliveries")))
	}

	if timeout := cfg.GetInt64("ping_timeout", 0); timeout > 0 {
		opts = append(opts, sqldb.WithPingTimeout(time.Duration(timeout)*time.Second))
	}

	return sqldb.New(cfg.GetString("driver", "sqlite3"), dsn, opts...)
}

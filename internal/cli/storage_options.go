package cli

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Folio/internal/storage"
)

// storageOptions are command-line overrides for the storage section of the
// config. Only flags the user actually set are applied.
type storageOptions struct {
	backend               string
	memoryCleanupInterval time.Duration
	redisURL              string
	redisHost             string
	redisPort             int
	redisPassword         string
	redisDB               int
	redisCluster          bool
	redisClusterNodes     []string
	redisPoolSize         int
	redisMaxRetries       int
	redisDialTimeout      time.Duration
	sqlitePath            string
	sqliteCleanupInterval time.Duration
}

func (o *storageOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.backend, "storage", storage.BackendMemory, "storage backend (memory, redis, sqlite)")
	cmd.Flags().DurationVar(&o.memoryCleanupInterval, "storage-memory-cleanup-interval", time.Minute, "cleanup interval for memory storage backend")
	cmd.Flags().StringVar(&o.redisURL, "redis-url", "", "redis URL (redis:// or rediss://), overrides host/port")
	cmd.Flags().StringVar(&o.redisHost, "redis-host", "localhost", "redis host (or host:port)")
	cmd.Flags().IntVar(&o.redisPort, "redis-port", 6379, "redis port")
	cmd.Flags().StringVar(&o.redisPassword, "redis-password", "", "redis password")
	cmd.Flags().IntVar(&o.redisDB, "redis-db", 0, "redis database index")
	cmd.Flags().BoolVar(&o.redisCluster, "redis-cluster", false, "enable redis cluster mode")
	cmd.Flags().StringSliceVar(&o.redisClusterNodes, "redis-cluster-nodes", nil, "redis cluster nodes host:port list")
	cmd.Flags().IntVar(&o.redisPoolSize, "redis-pool-size", 20, "redis connection pool size")
	cmd.Flags().IntVar(&o.redisMaxRetries, "redis-max-retries", 3, "redis max retries")
	cmd.Flags().DurationVar(&o.redisDialTimeout, "redis-dial-timeout", 5*time.Second, "redis dial timeout")
	cmd.Flags().StringVar(&o.sqlitePath, "sqlite-path", "folio.db", "sqlite database file")
	cmd.Flags().DurationVar(&o.sqliteCleanupInterval, "sqlite-cleanup-interval", 10*time.Minute, "how often expired sqlite rows are purged")
}

// applyTo overlays every storage flag the user set onto cfg.
func (o *storageOptions) applyTo(cmd *cobra.Command, cfg *storage.Config) error {
	changed := cmd.Flags().Changed

	if changed("storage") {
		cfg.Backend = o.backend
	}
	if changed("storage-memory-cleanup-interval") {
		cfg.Memory.CleanupInterval = o.memoryCleanupInterval
	}
	if changed("redis-url") {
		cfg.Redis.URL = o.redisURL
	}
	if changed("redis-host") || changed("redis-port") {
		port := cfg.Redis.Port
		if changed("redis-port") {
			port = o.redisPort
		}
		host := cfg.Redis.Host
		if changed("redis-host") {
			host = o.redisHost
		}
		h, p, err := normalizeRedisHostPort(host, port)
		if err != nil {
			return err
		}
		cfg.Redis.Host, cfg.Redis.Port = h, p
	}
	if changed("redis-password") {
		cfg.Redis.Password = o.redisPassword
	}
	if changed("redis-db") {
		cfg.Redis.DB = o.redisDB
	}
	if changed("redis-cluster") {
		cfg.Redis.Cluster = o.redisCluster
	}
	if changed("redis-cluster-nodes") {
		cfg.Redis.ClusterNodes = append([]string(nil), o.redisClusterNodes...)
	}
	if changed("redis-pool-size") {
		cfg.Redis.PoolSize = o.redisPoolSize
	}
	if changed("redis-max-retries") {
		cfg.Redis.MaxRetries = o.redisMaxRetries
	}
	if changed("redis-dial-timeout") {
		cfg.Redis.DialTimeout = o.redisDialTimeout
	}
	if changed("sqlite-path") {
		cfg.SQLite.Path = o.sqlitePath
	}
	if changed("sqlite-cleanup-interval") {
		cfg.SQLite.CleanupInterval = o.sqliteCleanupInterval
	}
	return nil
}

func normalizeRedisHostPort(host string, port int) (string, int, error) {
	if strings.Contains(host, ":") {
		h, p, err := net.SplitHostPort(host)
		if err != nil {
			return "", 0, fmt.Errorf("invalid --redis-host value %q: %w", host, err)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", 0, fmt.Errorf("invalid redis port in --redis-host %q: %w", host, err)
		}
		host = h
		port = n
	}

	if host == "" {
		return "", 0, fmt.Errorf("redis host cannot be empty")
	}
	if port <= 0 {
		return "", 0, fmt.Errorf("redis port must be positive, got %d", port)
	}

	return host, port, nil
}

package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/riddler/internal/paths"
	"github.com/mesh-intelligence/riddler/internal/server"
	"github.com/mesh-intelligence/riddler/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "RIDDLER"

	cfgKeyBackend       = "backend"
	cfgKeyDataDir       = "data_dir"
	cfgKeyDSN           = "dsn"
	cfgKeyListen        = "listen"
	cfgKeyURL           = "url"
	cfgKeyToken         = "token"
	cfgKeyAuthSecret    = "auth_secret"
	cfgKeyRateLimit     = "rate_limit"
	cfgKeyRateBurst     = "rate_burst"
	cfgKeySyncStrategy  = "sync_strategy"
	cfgKeyBatchSize     = "batch_size"
	cfgKeyBatchInterval = "batch_interval"
	cfgKeySnapshotURL   = "snapshot.url"
	cfgKeyS3Endpoint    = "snapshot.endpoint"
	cfgKeyS3AccessKey   = "snapshot.access_key"
	cfgKeyS3SecretKey   = "snapshot.secret_key"
	cfgKeyS3Secure      = "snapshot.secure"
)

// configFile is the structure written to a fresh config.yaml.
type configFile struct {
	Backend      string `yaml:"backend"`
	DataDir      string `yaml:"data_dir,omitempty"`
	Listen       string `yaml:"listen"`
	SyncStrategy string `yaml:"sync_strategy"`
}

// loadConfig reads config.yaml from configDir with RIDDLER_* environment
// overrides. A missing file is not an error.
func loadConfig(configDir string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeyListen, server.DefaultAddr)
	v.SetDefault(cfgKeySyncStrategy, types.SyncImmediate)
	v.SetDefault(cfgKeyRateBurst, 0)
	v.SetDefault(cfgKeyS3Secure, true)

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// writeConfigIfMissing creates config.yaml with defaults. An existing file
// is left alone.
func writeConfigIfMissing(configDir, dataDir string) (bool, error) {
	path := paths.ConfigFile(configDir)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat config file: %w", err)
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return false, fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(&configFile{
		Backend:      types.BackendSQLite,
		DataDir:      dataDir,
		Listen:       server.DefaultAddr,
		SyncStrategy: types.SyncImmediate,
	})
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	content := "# riddler configuration\n" + string(data)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// dataDir resolves the sqlite data directory.
func (a *app) dataDir() (string, error) {
	return paths.ResolveDataDir(a.flags.dataDir, a.config.GetString(cfgKeyDataDir))
}

// backendConfig builds the Catalog config for local mode.
func (a *app) backendConfig() (types.Config, error) {
	cfg := types.Config{
		Backend: a.config.GetString(cfgKeyBackend),
		DSN:     a.config.GetString(cfgKeyDSN),
		SQLiteConfig: types.SQLiteConfig{
			SyncStrategy:  a.config.GetString(cfgKeySyncStrategy),
			BatchSize:     a.config.GetInt(cfgKeyBatchSize),
			BatchInterval: a.config.GetInt(cfgKeyBatchInterval),
		},
	}
	if cfg.Backend == types.BackendSQLite {
		dir, err := a.dataDir()
		if err != nil {
			return cfg, fmt.Errorf("resolve data dir: %w", err)
		}
		cfg.DataDir = dir
	}
	if err := cfg.Validate(); err != nil {
		return cfg, userError(fmt.Errorf("invalid config: %w", err))
	}
	return cfg, nil
}

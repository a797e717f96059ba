package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/sigweihq/chainsync/pkg/chains"
	"github.com/sigweihq/chainsync/pkg/constants"
	"github.com/sigweihq/chainsync/pkg/utils"
)

// EnvPrefix prefixes every environment override, e.g. CHAINSYNC_SWITCH_CONFIRM_TIMEOUT
const EnvPrefix = "CHAINSYNC"

// Config holds all configuration for the chainsync CLI
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Switch      SwitchConfig      `mapstructure:"switch"`
	RPC         RPCConfig         `mapstructure:"rpc"`
	Wallet      WalletConfig      `mapstructure:"wallet"`
	Attestation AttestationConfig `mapstructure:"attestation"`
	Chainlist   ChainlistConfig   `mapstructure:"chainlist"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// SwitchConfig tunes the chain switch confirmation
type SwitchConfig struct {
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout" validate:"gt=0"`
	ProbeDelay     time.Duration `mapstructure:"probe_delay" validate:"gte=0"`
}

// RPCConfig overrides the built-in endpoints, keyed by chain id (decimal or 0x-hex)
type RPCConfig struct {
	Endpoints map[string][]string `mapstructure:"endpoints" validate:"dive,keys,chainid,endkeys,dive,endpoint"`
}

type WalletConfig struct {
	BridgeURL string `mapstructure:"bridge_url" validate:"omitempty,endpoint"`
	// PrivateKey enables the local key signer; prefer CHAINSYNC_WALLET_PRIVATE_KEY over the file
	PrivateKey string `mapstructure:"private_key"`
}

type AttestationConfig struct {
	Contract   string `mapstructure:"contract" validate:"omitempty,eth_addr"`
	IndexerURL string `mapstructure:"indexer_url" validate:"omitempty,endpoint"`
}

type ChainlistConfig struct {
	URL string        `mapstructure:"url" validate:"required,url"`
	TTL time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
}

// Load reads configuration from an optional YAML file and CHAINSYNC_* environment variables
// An empty path skips the file; a path that cannot be read is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("switch.confirm_timeout", constants.DefaultConfirmTimeout)
	v.SetDefault("switch.probe_delay", constants.DefaultProbeDelay)
	v.SetDefault("rpc.endpoints", map[string][]string{})
	v.SetDefault("wallet.bridge_url", "")
	v.SetDefault("wallet.private_key", "")
	v.SetDefault("attestation.contract", "")
	v.SetDefault("attestation.indexer_url", "")
	v.SetDefault("chainlist.url", chains.DefaultChainListURL)
	v.SetDefault("chainlist.ttl", constants.ChainListTTL)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("endpoint", func(fl validator.FieldLevel) bool {
		return utils.ValidateEndpointURL(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("chainid", func(fl validator.FieldLevel) bool {
		_, ok := chains.ParseChainID(fl.Field().String())
		return ok
	})
	return v
}

// Validate checks the configuration and reports every invalid field at once
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("invalid config: %w", err)
	}

	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		msgs = append(msgs, fieldMessage(e))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func fieldMessage(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, e.Param())
	case "gt", "gte":
		return fmt.Sprintf("%s must be %s %s", field, map[string]string{"gt": ">", "gte": ">="}[e.Tag()], e.Param())
	case "endpoint":
		return fmt.Sprintf("%s must be an https/wss URL (http/ws only for localhost): %v", field, e.Value())
	case "chainid":
		return fmt.Sprintf("%s has an invalid chain id key: %v", field, e.Value())
	case "eth_addr":
		return fmt.Sprintf("%s must be a 0x-prefixed address", field)
	case "url":
		return fmt.Sprintf("%s must be a URL", field)
	}
	return fmt.Sprintf("%s failed %s validation", field, e.Tag())
}

// ByChainID returns the configured RPC endpoints keyed by numeric chain id
// Keys that were already validated always parse.
func (c RPCConfig) ByChainID() map[int64][]string {
	out := make(map[int64][]string, len(c.Endpoints))
	for key, urls := range c.Endpoints {
		if id, ok := chains.ParseChainID(key); ok {
			out[id] = append(out[id], urls...)
		}
	}
	return out
}

// ChainIDs lists the chains that have endpoint overrides, ascending
func (c RPCConfig) ChainIDs() []int64 {
	endpoints := c.ByChainID()
	ids := make([]int64, 0, len(endpoints))
	for id := range endpoints {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

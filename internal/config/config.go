// Package config loads runtime settings from an optional YAML file,
// SMARTVAULT_* environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/viper"

	"smartvault-go/internal/squads"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "SMARTVAULT"

// Config holds user/system configuration.
type Config struct {
	RPCURL            string
	ProgramID         string
	Commitment        string
	VaultIndex        uint8
	ConfirmationDelay time.Duration
	RequestTimeout    time.Duration

	Keyring KeyringConfig
	History HistoryConfig
	Metrics MetricsConfig
	Log     LogConfig
}

// KeyringConfig selects where the identity record lives.
type KeyringConfig struct {
	Service  string
	User     string
	Backend  string // empty: OS default
	Dir      string // file backend only
	Password string // file backend only
}

type HistoryConfig struct {
	Path string // empty disables the journal
}

type MetricsConfig struct {
	Textfile string // empty disables the metrics dump
}

type LogConfig struct {
	Level  string
	Format string
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		RPCURL:            "https://api.mainnet-beta.solana.com",
		ProgramID:         squads.DefaultProgramID.String(),
		Commitment:        string(rpc.CommitmentConfirmed),
		ConfirmationDelay: 5 * time.Second,
		RequestTimeout:    30 * time.Second,
		Keyring: KeyringConfig{
			Service: "smartvault-multisig",
			User:    "smartvault-user",
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("rpc_url", d.RPCURL)
	v.SetDefault("program_id", d.ProgramID)
	v.SetDefault("commitment", d.Commitment)
	v.SetDefault("vault_index", d.VaultIndex)
	v.SetDefault("confirmation_delay", d.ConfirmationDelay)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("keyring.service", d.Keyring.Service)
	v.SetDefault("keyring.user", d.Keyring.User)
	v.SetDefault("keyring.backend", d.Keyring.Backend)
	v.SetDefault("keyring.dir", d.Keyring.Dir)
	v.SetDefault("keyring.password", d.Keyring.Password)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load merges defaults, the file at path (skipped when empty) and the
// environment, then validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	vaultIndex := v.GetUint("vault_index")
	if vaultIndex > 255 {
		return Config{}, fmt.Errorf("vault_index %d out of range", vaultIndex)
	}

	cfg := Config{
		RPCURL:            v.GetString("rpc_url"),
		ProgramID:         v.GetString("program_id"),
		Commitment:        v.GetString("commitment"),
		VaultIndex:        uint8(vaultIndex),
		ConfirmationDelay: v.GetDuration("confirmation_delay"),
		RequestTimeout:    v.GetDuration("request_timeout"),
		Keyring: KeyringConfig{
			Service:  v.GetString("keyring.service"),
			User:     v.GetString("keyring.user"),
			Backend:  v.GetString("keyring.backend"),
			Dir:      v.GetString("keyring.dir"),
			Password: v.GetString("keyring.password"),
		},
		History: HistoryConfig{Path: v.GetString("history.path")},
		Metrics: MetricsConfig{Textfile: v.GetString("metrics.textfile")},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if strings.TrimSpace(c.RPCURL) == "" {
		return errors.New("rpc_url is required")
	}
	if _, err := c.Program(); err != nil {
		return err
	}
	switch rpc.CommitmentType(c.Commitment) {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		return fmt.Errorf("unsupported commitment %q", c.Commitment)
	}
	if c.ConfirmationDelay < 0 {
		return fmt.Errorf("confirmation_delay must not be negative, got %s", c.ConfirmationDelay)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative, got %s", c.RequestTimeout)
	}
	if c.Keyring.Service == "" || c.Keyring.User == "" {
		return errors.New("keyring.service and keyring.user are required")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unsupported log.format %q", c.Log.Format)
	}
	return nil
}

// Program parses the configured program id.
func (c Config) Program() (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(c.ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid program_id %q: %w", c.ProgramID, err)
	}
	return key, nil
}

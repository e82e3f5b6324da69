package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/BobSilent/aggregator-cli/pkg/auth"
	"github.com/BobSilent/aggregator-cli/pkg/batch"
	"github.com/BobSilent/aggregator-cli/pkg/remote"
	"github.com/BobSilent/aggregator-cli/pkg/store/httpstore"
)

// Settings is the effective CLI configuration: defaults, then the config
// file, then ITEMSYNC_* variables, then flags.
type Settings struct {
	ServerURL string        `mapstructure:"server_url" yaml:"server_url"`
	Auth      AuthSettings  `mapstructure:"auth" yaml:"auth"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int           `mapstructure:"burst" yaml:"burst"`
	Save      SaveSettings  `mapstructure:"save" yaml:"save"`
	Output    string        `mapstructure:"output" yaml:"output"` // table or json
	Debug     bool          `mapstructure:"debug" yaml:"debug"`
}

type AuthSettings struct {
	Mode         string   `mapstructure:"mode" yaml:"mode"` // none, apikey, apitoken, oauth
	APIKey       string   `mapstructure:"api_key" yaml:"api_key"`
	TokenURL     string   `mapstructure:"token_url" yaml:"token_url"`
	ClientID     string   `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string   `mapstructure:"client_secret" yaml:"client_secret"`
	Scopes       []string `mapstructure:"scopes" yaml:"scopes"`
}

type SaveSettings struct {
	Mode        string `mapstructure:"mode" yaml:"mode"`
	DryRun      bool   `mapstructure:"dry_run" yaml:"dry_run"`
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
}

var defaults = map[string]any{
	"server_url":         "http://localhost:3100",
	"auth.mode":          "",
	"auth.api_key":       "",
	"auth.token_url":     "",
	"auth.client_id":     "",
	"auth.client_secret": "",
	"auth.scopes":        []string{},
	"timeout":            "30s",
	"rate_limit":         0.0,
	"burst":              1,
	"save.mode":          string(batch.ModeTwoPhase),
	"save.dry_run":       false,
	"save.concurrency":   4,
	"output":             "table",
	"debug":              false,
}

// DefaultConfigPath returns $HOME/.itemsync/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".itemsync", "config.yaml")
	}
	return filepath.Join(home, ".itemsync", "config.yaml")
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix("ITEMSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// loadSettings reads path, or the default config file when path is empty,
// and returns the settings with the file actually read. Only an explicitly
// named file has to exist.
func loadSettings(v *viper.Viper, path string) (*Settings, string, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !(errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
			return nil, "", fmt.Errorf("failed to read config %s: %w", path, err)
		}
		path = ""
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if s.Output != "table" && s.Output != "json" {
		return nil, "", fmt.Errorf("invalid output %q (must be 'table' or 'json')", s.Output)
	}
	return s, path, nil
}

// StoreFactory opens the store the commands work against.
type StoreFactory func(ctx context.Context, s *Settings, log *slog.Logger) (remote.Store, error)

// OpenHTTPStore connects to the item store server named by s.
func OpenHTTPStore(_ context.Context, s *Settings, log *slog.Logger) (remote.Store, error) {
	provider, err := auth.New(auth.Config{
		Mode:         s.Auth.Mode,
		APIKey:       s.Auth.APIKey,
		TokenURL:     s.Auth.TokenURL,
		ClientID:     s.Auth.ClientID,
		ClientSecret: s.Auth.ClientSecret,
		Scopes:       s.Auth.Scopes,
	})
	if err != nil {
		return nil, err
	}
	return httpstore.New(httpstore.Config{
		ServerURL:   s.ServerURL,
		Auth:        provider,
		HTTPClient:  &http.Client{Timeout: s.Timeout},
		RateLimit:   s.RateLimit,
		Burst:       s.Burst,
		Concurrency: s.Save.Concurrency,
		Logger:      log,
	})
}

func (s *Settings) batchOptions(log *slog.Logger) (batch.Options, error) {
	mode, err := batch.ParseMode(s.Save.Mode)
	if err != nil {
		return batch.Options{}, err
	}
	return batch.Options{
		Mode:        mode,
		DryRun:      s.Save.DryRun,
		Concurrency: s.Save.Concurrency,
		Logger:      log,
	}, nil
}

func maskSecret(secret string) string {
	switch {
	case secret == "":
		return "(not set)"
	case len(secret) <= 8:
		return "****"
	default:
		return secret[:4] + "..." + secret[len(secret)-4:]
	}
}

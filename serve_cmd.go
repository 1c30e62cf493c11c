package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/ttsproxy/internal/daemon"
	"github.com/dgnsrekt/ttsproxy/internal/tts"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the announcement daemon",
	Long: paragraph(fmt.Sprintf("\n%s the daemon: one announcement queue per configured instance, served over the control API. Edits to the config file are applied without a restart.", keyword("Run"))),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := viper.ConfigFileUsed()
		if path == "" {
			return fmt.Errorf("no configuration file found; run %q to create one", "ttsproxy config")
		}

		cfg, err := loadDaemonConfig(viper.GetViper())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		d := daemon.New(cfg, daemon.Options{
			ConfigPath: path,
			Load:       func() (tts.Config, error) { return loadConfigFile(path) },
			CacheDir:   defaultCacheDir(),
			Logger:     log.Default(),
		})
		return d.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "control API address (overrides the config)")
	_ = viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
}

// loadConfigFile reads path from scratch; used on hot reload.
func loadConfigFile(path string) (tts.Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	_ = v.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	if err := v.ReadInConfig(); err != nil {
		return tts.Config{}, fmt.Errorf("unable to read config file: %w", err)
	}
	return loadDaemonConfig(v)
}

// loadDaemonConfig decodes and validates the daemon configuration,
// applying environment overrides and path defaults.
func loadDaemonConfig(v *viper.Viper) (tts.Config, error) {
	tts.SetDefaults(v)
	cfg, err := tts.LoadConfig(v)
	if err != nil {
		return cfg, err
	}

	applyEnv(&cfg, environment)
	if cfg.LockFile == "" {
		cfg.LockFile = defaultLockPath()
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *tts.Config, e Env) {
	if e.HAURL != "" {
		cfg.HomeAssistant.URL = strings.TrimRight(e.HAURL, "/")
	}
	if e.HAToken != "" {
		cfg.HomeAssistant.Token = e.HAToken
	}
}

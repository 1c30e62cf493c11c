// Package main provides the entry point for the ttsproxy daemon and CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/ttsproxy/internal/daemon"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile  string
	addr        string
	debug       bool
	environment Env

	rootCmd = &cobra.Command{
		Use:   "ttsproxy",
		Short: "Queue spoken announcements for your speakers",
		Long: paragraph(
			fmt.Sprintf("\n%s spoken announcements for Home Assistant media players and the local speaker, with priorities, interrupts, quiet hours and ducking.", keyword("Queue")),
		),
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if debug {
				log.SetLevel(log.DebugLevel)
			}
			if cmd.Flags().Changed("config") {
				viper.SetConfigFile(configFile)
				if err := viper.ReadInConfig(); err != nil {
					return fmt.Errorf("unable to read config file: %w", err)
				}
			}
			return nil
		},
	}
)

// Env holds process settings read from the environment.
type Env struct {
	ConfigHome string `env:"TTSPROXY_CONFIG_HOME"`
	LogLevel   string `env:"TTSPROXY_LOG_LEVEL" envDefault:"info"`
	LogFile    string `env:"TTSPROXY_LOG_FILE"`
	HAURL      string `env:"TTSPROXY_HA_URL"`
	HAToken    string `env:"TTSPROXY_HA_TOKEN"`
	Addr       string `env:"TTSPROXY_ADDR"`
}

// clientAddr picks the daemon address: --addr, then TTSPROXY_ADDR, then the
// configured listen address.
func clientAddr() string {
	switch {
	case addr != "":
		return addr
	case environment.Addr != "":
		return environment.Addr
	case viper.GetString("listen") != "":
		return viper.GetString("listen")
	default:
		return daemon.DefaultAddr
	}
}

func newClient() *daemon.Client {
	return daemon.NewClient(clientAddr())
}

// commandContext bounds a one-shot CLI request.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 15*time.Second)
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	var err error
	environment, err = env.ParseAs[Env]()
	if err != nil {
		fmt.Println("Could not parse environment:", err)
		os.Exit(1)
	}

	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", configFile, "config file")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "daemon address (default from TTSPROXY_ADDR or the config's listen)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd, speakCmd, clearCmd, skipCmd, statusCmd, topCmd, configCmd, manCmd)
}

func configDirs() ([]string, error) {
	scope := gap.NewScope(gap.User, "ttsproxy")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		return nil, err
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "ttsproxy")}, dirs...)
	}
	if environment.ConfigHome != "" {
		dirs = append([]string{environment.ConfigHome}, dirs...)
	}
	return dirs, nil
}

func tryLoadConfigFromDefaultPlaces() {
	dirs, err := configDirs()
	if err != nil || len(dirs) == 0 {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("ttsproxy")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("ttsproxy")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		configFile = used
		log.Debug("Using configuration file", "path", used)
		return
	}

	configFile = filepath.Join(dirs[0], "ttsproxy.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
		return
	}
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		log.Warn("Could not parse configuration file", "err", err)
	}
}

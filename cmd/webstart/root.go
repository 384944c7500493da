package main

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jfoltran/webstart/internal/config"
	"github.com/jfoltran/webstart/internal/logging"
	"github.com/jfoltran/webstart/internal/server"
)

var (
	cfg        config.Config
	logger     = zerolog.New(os.Stdout).With().Timestamp().Logger()
	logOutput  io.Writer = os.Stdout
	configPath string
	envFiles   []string
	port       int
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "webstart",
	Short: "Serve the web application",
	Long: `webstart runs the application's HTTP server. With NODE_ENV=production it
serves the prebuilt frontend from the static directory and answers unknown
paths with the index document; otherwise it starts the frontend bundler in
dev-server mode and proxies asset requests to it.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath, envFiles...)
		if err != nil {
			return err
		}
		cfg = loaded
		applyFlags(cmd, &cfg)

		if err := cfg.Validate(); err != nil {
			return err
		}
		logger = logging.New(cfg.Logging, logOutput)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := server.New(&cfg, logger)
		return srv.Start(cmd.Context())
	},
}

func init() {
	f := rootCmd.Flags()

	f.StringVar(&configPath, "config", "", "Path to a TOML config file (default: ./webstart.toml or /etc/webstart/config.toml)")
	f.StringSliceVar(&envFiles, "env-file", []string{".env"}, "Env files loaded before reading the environment")
	f.IntVar(&port, "port", 0, "TCP port to listen on (overrides PORT)")
	f.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.StringVar(&logFormat, "log-format", "", "Log format (console, json)")
}

func applyFlags(cmd *cobra.Command, c *config.Config) {
	if cmd.Flags().Changed("port") {
		c.Server.Port = port
	}
	if cmd.Flags().Changed("log-level") {
		c.Logging.Level = logLevel
	}
	if cmd.Flags().Changed("log-format") {
		c.Logging.Format = logFormat
	}
}

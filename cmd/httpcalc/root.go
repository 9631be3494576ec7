package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/xizhibei/go-httpcalc/config"
	"go.uber.org/zap"
)

// newRootCommand builds the command tree; flags are bound into v.
func newRootCommand(v *viper.Viper) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "httpcalc",
		Short: "Serve addition and subtraction over HTTP",
		Long: `Serve GET /, GET /add and GET /subtract over HTTP.

Every setting can come from a config file, an HTTPCALC_ environment
variable (http.addr is HTTPCALC_HTTP_ADDR) or a flag.`,
		Example: `
# Listen on :8080 with metrics on :9090
httpcalc

# Listen elsewhere and also answer MQTT requests
httpcalc --addr=:3000 --mqtt --mqtt-broker=tcp://localhost:1883
`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}

			log, err := cfg.Log.NewLogger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			zap.ReplaceGlobals(log)

			return serve(cmd.Context(), cfg)
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (yaml, json or toml)")

	persistent := root.PersistentFlags()
	persistent.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	persistent.String("mqtt-topic-prefix", "httpcalc", "MQTT topic prefix")
	persistent.String("log-level", "info", "log level: debug, info, warn or error")
	persistent.Bool("log-development", false, "human readable development logging")

	flags := root.Flags()
	flags.String("addr", ":8080", "HTTP listen address")
	flags.String("admin-addr", ":9090", "metrics and health listen address, empty to disable")
	flags.Int("workers", 0, "handler worker count, 0 for one per CPU")
	flags.Bool("mqtt", false, "also serve requests over MQTT")
	flags.Bool("telemetry", false, "export traces and metrics over OTLP")

	bindFlags(v, persistent, map[string]string{
		"mqtt.broker":       "mqtt-broker",
		"mqtt.topic_prefix": "mqtt-topic-prefix",
		"log.level":         "log-level",
		"log.development":   "log-development",
	})
	bindFlags(v, flags, map[string]string{
		"http.addr":         "addr",
		"admin.addr":        "admin-addr",
		"server.worker_num": "workers",
		"mqtt.enabled":      "mqtt",
		"telemetry.enabled": "telemetry",
	})

	root.AddCommand(newCallCommand(v, &cfgFile))
	return root
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		cobra.CheckErr(v.BindPFlag(key, flags.Lookup(name)))
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xizhibei/go-httpcalc/compressor"
	"github.com/xizhibei/go-httpcalc/config"
	"github.com/xizhibei/go-httpcalc/mqttjson"
	"go.uber.org/zap"
)

// parseParams turns key=value arguments into request params. Values stay strings.
func parseParams(args []string) (map[string]string, error) {
	params := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, errors.Newf("param %q is not key=value", arg)
		}
		params[key] = value
	}
	return params, nil
}

func newCallCommand(v *viper.Viper, cfgFile *string) *cobra.Command {
	var (
		timeout  time.Duration
		encoding string
	)

	cmd := &cobra.Command{
		Use:   "call METHOD [key=value...]",
		Short: "Send one request to a server over MQTT and print the reply",
		Example: `
httpcalc call add a=5 b=3 --mqtt-broker=tcp://localhost:1883
httpcalc call subtract a=10 b=4 --encoding=gzip
httpcalc call hello
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}
			enc, err := compressor.ParseContentEncoding(encoding)
			if err != nil {
				return err
			}

			cfg, err := config.Load(v, *cfgFile)
			if err != nil {
				return err
			}
			if cfg.MQTT.Broker == "" {
				return errors.New("mqtt broker is required, set --mqtt-broker or HTTPCALC_MQTT_BROKER")
			}

			log, err := cfg.Log.NewLogger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			zap.ReplaceGlobals(log)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			adapter, err := newMQTTClient(cfg.MQTT, "", false)
			if err != nil {
				return err
			}
			if err := adapter.Connect(ctx); err != nil {
				return errors.Wrap(err, "connect mqtt broker")
			}

			client := mqttjson.NewClient(adapter, cfg.MQTT.TopicPrefix)
			client.SetEncoding(enc)
			defer client.Close()

			var reply json.RawMessage
			if err := client.Call(ctx, args[0], params, &reply); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(reply))
			return err
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the reply")
	cmd.Flags().StringVar(&encoding, "encoding", "", "compress params and reply with gzip, deflate or br")
	return cmd
}

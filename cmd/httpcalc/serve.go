package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xizhibei/go-httpcalc"
	"github.com/xizhibei/go-httpcalc/calc"
	"github.com/xizhibei/go-httpcalc/config"
	"github.com/xizhibei/go-httpcalc/ginhttp"
	"github.com/xizhibei/go-httpcalc/mqttadapter"
	"github.com/xizhibei/go-httpcalc/mqttjson"
	"github.com/xizhibei/go-httpcalc/telemetry"
	"go.uber.org/zap"
)

const metricsNamespace = "httpcalc"

func serverOptions(cfg *config.Config, name string) []httpcalc.ServerOption {
	options := []httpcalc.ServerOption{
		httpcalc.WithServerName(name),
		httpcalc.WithHandlerTimeout(cfg.Server.HandlerTimeout),
		httpcalc.WithLogResponse(cfg.Server.LogResponse),
	}
	if cfg.Server.WorkerNum > 0 {
		options = append(options, httpcalc.WithWorkerNum(cfg.Server.WorkerNum))
	}
	return options
}

func newHTTPServer(cfg *config.Config) *ginhttp.Server {
	options := []ginhttp.Option{ginhttp.WithServerOptions(serverOptions(cfg, cfg.Server.Name)...)}
	if cfg.Compression.Enabled {
		options = append(options, ginhttp.WithCompression(cfg.Compression.MinLength))
	}
	return ginhttp.New(options...)
}

// newMQTTClient builds the paho adapter. With announce set, the client keeps
// <prefix>/status at "online" while connected and "offline" otherwise.
func newMQTTClient(cfg config.MQTTConfig, clientID string, announce bool) (*mqttadapter.PahoClient, error) {
	if clientID == "" {
		clientID = "httpcalc-" + uuid.NewString()
	}
	options := []mqttadapter.Option{mqttadapter.WithDebug(cfg.Debug)}
	if announce {
		statusTopic := cfg.TopicPrefix + "/status"
		options = append(options, mqttadapter.WithStatus(statusTopic, []byte("online"), statusTopic, []byte("offline")))
	}
	if cfg.Username != "" {
		options = append(options, mqttadapter.WithUserPass(cfg.Username, cfg.Password))
	}
	return mqttadapter.New(cfg.Broker, clientID, options...)
}

func newAdminHandler(registry *prometheus.Registry) http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))
	engine.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return engine
}

func listen(srv *http.Server, name string, errCh chan<- error) {
	zap.S().Infof("%s listening on %s", name, srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- errors.Wrapf(err, "%s listener", name)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := zap.S().With("module", "httpcalc.cmd")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	gin.SetMode(cfg.HTTP.Mode)

	tel, err := telemetry.New(ctx, telemetry.Config{
		ServiceName:    cfg.Server.Name,
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Debug:          cfg.Telemetry.Debug,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		return errors.Wrap(err, "init telemetry")
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			log.Warnf("Shutdown telemetry: %v", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	responseTime, errorCount := httpcalc.NewMetrics(metricsNamespace)
	registry.MustRegister(responseTime, errorCount)

	srv := newHTTPServer(cfg)
	defer srv.Close()
	srv.SetTelemetry(tel)
	srv.RegisterMetrics(responseTime, errorCount)
	calc.Register(srv, 0)

	if cfg.MQTT.Enabled {
		client, err := newMQTTClient(cfg.MQTT, cfg.MQTT.ClientID, true)
		if err != nil {
			return errors.Wrap(err, "init mqtt client")
		}
		bridge := mqttjson.NewServer(client, cfg.MQTT.TopicPrefix, serverOptions(cfg, cfg.Server.Name+"-mqtt")...)
		defer bridge.Close()
		bridge.SetTelemetry(tel)
		bridge.RegisterMetrics(responseTime, errorCount)
		calc.Register(bridge, 0)
		log.Infof("MQTT bridge serving %s", mqttjson.RequestTopic(cfg.MQTT.TopicPrefix, "+"))
	}

	errCh := make(chan error, 2)
	servers := []*http.Server{{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}}
	go listen(servers[0], "http", errCh)

	if cfg.Admin.Addr != "" {
		admin := &http.Server{
			Addr:              cfg.Admin.Addr,
			Handler:           newAdminHandler(registry),
			ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		}
		servers = append(servers, admin)
		go listen(admin, "admin", errCh)
	}

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err = <-errCh:
		log.Errorf("Listener failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	for _, s := range servers {
		if shutdownErr := s.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Warnf("Shutdown %s: %v", s.Addr, shutdownErr)
		}
	}
	return err
}

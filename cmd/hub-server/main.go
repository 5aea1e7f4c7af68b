package main

import (
	"context"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/VigLinat/studiohub/internal"
	"github.com/VigLinat/studiohub/internal/bus"
	"github.com/VigLinat/studiohub/internal/config"
	"github.com/VigLinat/studiohub/internal/hub"
	"github.com/VigLinat/studiohub/internal/metrics"
	"github.com/VigLinat/studiohub/internal/registry"
	"github.com/VigLinat/studiohub/internal/transport"
)

func main() {
	config.LoadDotEnv(".env")
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		internal.MyErr("Bad configuration: %s", err)
		os.Exit(2)
	}
	internal.SetupLogger(cfg.Env)
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	relay, err := openBus(cfg)
	if err != nil {
		internal.MyErr("Relay bus unavailable: %s", err)
		os.Exit(1)
	}

	h := hub.New(registry.New(), hub.Options{
		OutboxSize: cfg.OutboxSize,
		InstanceID: cfg.InstanceID,
		Bus:        relay,
		Metrics:    m,
	})
	hubCtx, stopHub := context.WithCancel(context.Background())
	go func() {
		if err := h.Run(hubCtx); err != nil {
			internal.MyErr("Hub stopped: %s", err)
			os.Exit(1)
		}
	}()

	srv := &http.Server{
		Addr: cfg.HostAddr(),
		Handler: transport.NewRouter(transport.Deps{
			Hub:             h,
			Metrics:         m,
			Gatherer:        promReg,
			AllowedOrigins:  cfg.AllowedOrigins,
			MaxMessageBytes: cfg.MaxMessageBytes,
			PongWait:        cfg.PongWait,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		internal.MyLog("Start listening on %s (instance %s, bus %s)", cfg.HostAddr(), h.InstanceID(), cfg.Bus)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			internal.MyErr("Listen: %s", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
			"hub": func(ctx context.Context) error {
				stopHub()
				h.Wait()
				return relay.Close()
			},
		},
	)
	code := <-wait
	internal.MyLog("Exited with code %d", code)
	_ = internal.Logger().Sync()
	os.Exit(code)
}

func openBus(cfg config.Config) (bus.Bus, error) {
	switch cfg.Bus {
	case config.BusRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return bus.NewRedisBus(ctx, bus.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	case config.BusNats:
		return bus.NewNatsBus(bus.NatsConfig{URL: cfg.NatsURL, Name: "studiohub"})
	default:
		return bus.Nop{}, nil
	}
}

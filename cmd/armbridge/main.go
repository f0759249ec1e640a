package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/robonet-io/armbridge/core/bridge"
	"github.com/robonet-io/armbridge/core/controller"
	"github.com/robonet-io/armbridge/core/execution"
	"github.com/robonet-io/armbridge/core/infra/buildinfo"
	"github.com/robonet-io/armbridge/core/infra/bus"
	"github.com/robonet-io/armbridge/core/infra/config"
	"github.com/robonet-io/armbridge/core/infra/leases"
	infraMetrics "github.com/robonet-io/armbridge/core/infra/metrics"
	"github.com/robonet-io/armbridge/core/loader"
	"github.com/robonet-io/armbridge/core/mastership"
	"github.com/robonet-io/armbridge/core/position"
	"github.com/robonet-io/armbridge/core/staging"
)

func main() {
	log.Println("armbridge starting...")
	buildinfo.Log("armbridge")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	metrics := infraMetrics.NewProm("armbridge")
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", infraMetrics.Handler())
		srv := &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		log.Printf("metrics on %s/metrics", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	announcer, err := bus.Connect(cfg.NatsURL)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}
	defer announcer.Close()

	var ledger leases.Store
	if cfg.RedisURL != "" {
		redisLedger, err := leases.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to Redis for lease ledger: %v", err)
		}
		defer redisLedger.Close()
		ledger = redisLedger
	} else {
		ledger = leases.NewMemoryStore()
	}

	var ctrl controller.Controller
	switch cfg.Controller {
	case "nats":
		client, err := controller.NewNatsClient(cfg.NatsURL, cfg.ControllerID)
		if err != nil {
			log.Fatalf("failed to connect to controller %s: %v", cfg.ControllerID, err)
		}
		defer client.Close()
		ctrl = client
	default:
		ctrl = controller.NewSim()
	}
	log.Printf("controller %s (%s)", cfg.ControllerID, ctrl.Kind())

	store := staging.New(cfg.StagingDir, cfg.ProgramName)
	owner := "armbridge-" + uuid.NewString()
	guard := mastership.NewGuard(ctrl, ledger, owner, cfg.MastershipTTL)

	ld := loader.New(ctrl, store, guard, cfg.RemoteDir, metrics, announcer)
	exec := execution.New(ctrl, guard, metrics, announcer)
	pos := position.New(ctrl, metrics, announcer)
	router := bridge.NewRouter(ld, exec, pos, metrics)

	// Create and upload the boilerplate programs for both arms. Failures
	// are reported and non-fatal; the operator re-triggers by restarting.
	ctx := context.Background()
	for _, task := range []controller.Task{controller.TaskLeft, controller.TaskRight} {
		if err := ld.LoadProgram(ctx, task); err != nil {
			log.Printf("startup program load for %s failed: %v", task, err)
		}
	}

	if cfg.CommandSubject != "" {
		drain, err := announcer.SubscribeCommands(cfg.CommandSubject, func(msg string) {
			if reply, ok := router.Handle(context.Background(), msg); ok {
				announcer.Publish("position", map[string]any{"reply": reply})
			}
		})
		if err != nil {
			log.Fatalf("failed to subscribe to command subject: %v", err)
		}
		defer drain()
		log.Printf("command subject %s attached", cfg.CommandSubject)
	}

	server := bridge.NewServer(router, ctrl, announcer, cfg.ListenAddr)
	go func() {
		if err := server.ListenAndServe(); err != nil {
			log.Fatalf("editor channel server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("armbridge shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

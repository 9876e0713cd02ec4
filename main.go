package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	alarmapp "coatline/internal/alarms/application"
	alarmrepo "coatline/internal/alarms/infrastructure/postgres"
	alarmredis "coatline/internal/alarms/infrastructure/redis"
	alarmhttp "coatline/internal/alarms/interfaces/http"
	alarmnotify "coatline/internal/alarms/notify"
	apihttp "coatline/internal/api/http"
	"coatline/internal/audit"
	"coatline/internal/auth"
	"coatline/internal/config"
	linestateapp "coatline/internal/linestate/application"
	linestateredis "coatline/internal/linestate/infrastructure/redis"
	masterdatarepo "coatline/internal/masterdata/infrastructure/postgres"
	"coatline/internal/migrate"
	"coatline/internal/observability/metrics"
	planapp "coatline/internal/planning/application"
	planrepo "coatline/internal/planning/infrastructure/postgres"
	provisioning "coatline/internal/provisioning/application"
	runapp "coatline/internal/runhistory/application"
	runrepo "coatline/internal/runhistory/infrastructure/postgres"
	shiftrepo "coatline/internal/shift/infrastructure/postgres"
	"coatline/internal/storage/pg"
	telemetryapp "coatline/internal/telemetry/application"
	telemetrymqtt "coatline/internal/telemetry/interfaces/mqtt"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := pg.Open(ctx, cfg.DatabaseURL, pg.PoolConfig{MaxOpenConns: 20, MaxIdleConns: 5, ConnMaxLifetime: 30 * time.Minute})
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if cfg.Migrate {
		if _, err := migrate.Migrate(ctx, db, logger); err != nil {
			logger.Fatalf("migrate error: %v", err)
		}
	}
	metrics.Init(db, logger)

	provisioner, err := provisioning.NewService(db, logger)
	if err != nil {
		logger.Fatalf("provisioning init error: %v", err)
	}
	lineInputs := make([]provisioning.LineInput, 0, len(cfg.Seed.Lines))
	for _, line := range cfg.Seed.Lines {
		lineInputs = append(lineInputs, provisioning.LineInput{Code: line.Code, Name: line.Name, Targets: line.TargetMap()})
	}
	if _, err := provisioner.Provision(ctx, provisioning.Request{Lines: lineInputs, Shifts: cfg.Seed.Shifts}); err != nil {
		logger.Fatalf("provisioning error: %v", err)
	}

	windows, err := shiftrepo.NewWindowRepository(db).ListWindows(ctx)
	if err != nil {
		logger.Printf("shift windows: load failed, using configured seed: err=%v", err)
		windows = nil
	}
	schedule := cfg.Schedule(windows)

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.OperationTimeout,
		ReadTimeout:  cfg.OperationTimeout,
		WriteTimeout: cfg.OperationTimeout,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Printf("redis: ping failed, continuing with local state: addr=%s err=%v", cfg.Redis.Addr, err)
	}

	lineStore, err := linestateredis.NewStore(redisClient)
	if err != nil {
		logger.Fatalf("line state store init error: %v", err)
	}
	alarmStates, err := alarmredis.NewStateStore(redisClient, "")
	if err != nil {
		logger.Fatalf("alarm state store init error: %v", err)
	}

	tracker, err := runapp.NewTracker(runrepo.NewRepository(db), runapp.WithLogger(logger))
	if err != nil {
		logger.Fatalf("run tracker init error: %v", err)
	}
	lineRepo := masterdatarepo.NewLineRepository(db)
	productRepo := masterdatarepo.NewProductRepository(db)
	targetRepo := planrepo.NewTargetRepository(db)
	binder, err := planapp.NewBinder(lineRepo, productRepo, planrepo.NewPlanRepository(db), schedule,
		planapp.WithTargets(targetRepo), planapp.WithLogger(logger))
	if err != nil {
		logger.Fatalf("plan binder init error: %v", err)
	}
	historyWriter, err := planapp.NewHistoryWriter(planrepo.NewHistoryRepository(db), logger)
	if err != nil {
		logger.Fatalf("history writer init error: %v", err)
	}
	engine, err := linestateapp.NewEngine(lineStore, schedule, tracker, binder, historyWriter,
		linestateapp.WithTargets(targetRepo),
		linestateapp.WithLogger(logger),
		linestateapp.WithLocker(linestateapp.NewLocker(cfg.LockTimeout)),
		linestateapp.WithOperationTimeout(cfg.OperationTimeout),
	)
	if err != nil {
		logger.Fatalf("line state engine init error: %v", err)
	}

	mqttClient, err := telemetrymqtt.NewPahoClient(telemetrymqtt.ClientConfig{
		BrokerURL:      cfg.MQTT.BrokerURL,
		ClientID:       cfg.MQTT.ClientID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		ReconnectDelay: cfg.MQTT.ReconnectDelay,
		ConnectTimeout: cfg.OperationTimeout,
	}, logger)
	if err != nil {
		logger.Fatalf("mqtt init error: %v", err)
	}

	notifyTemplate, err := alarmnotify.NewTemplate(cfg.Alarm.NotifyTemplate)
	if err != nil {
		logger.Fatalf("alarm template error: %v", err)
	}
	notifiers := []alarmapp.AlarmNotifier{}
	logNotifier, err := alarmnotify.NewNotifier(alarmnotify.LogChannel{Logger: logger}, notifyTemplate,
		alarmnotify.WithLogger(logger), alarmnotify.WithDedupeWindow(cfg.Alarm.DedupeWindow))
	if err != nil {
		logger.Fatalf("alarm notifier init error: %v", err)
	}
	notifiers = append(notifiers, logNotifier)
	if cfg.Alarm.NotifyOverMQTT {
		channel, err := telemetrymqtt.NewNotifyChannel(mqttClient, cfg.MQTT.QoS, "")
		if err != nil {
			logger.Fatalf("alarm mqtt channel error: %v", err)
		}
		mqttNotifier, err := alarmnotify.NewNotifier(channel, notifyTemplate,
			alarmnotify.WithLogger(logger),
			alarmnotify.WithDedupeWindow(cfg.Alarm.DedupeWindow),
			alarmnotify.WithRequestTimeout(cfg.Alarm.NotifyTimeout))
		if err != nil {
			logger.Fatalf("alarm notifier init error: %v", err)
		}
		notifiers = append(notifiers, mqttNotifier)
	}
	alarmTracker, err := alarmapp.NewDedupTracker(alarmrepo.NewAlarmLogRepository(db), alarmStates,
		alarmapp.WithNotifier(alarmnotify.NewMultiNotifier(logger, notifiers...)),
		alarmapp.WithLogger(logger),
		alarmapp.WithOperationTimeout(cfg.OperationTimeout))
	if err != nil {
		logger.Fatalf("alarm tracker init error: %v", err)
	}

	decoder, err := telemetrymqtt.NewDecoder()
	if err != nil {
		logger.Fatalf("payload decoder init error: %v", err)
	}
	registry := telemetryapp.NewRegistry()
	topics := make([]telemetrymqtt.LineTopics, 0, len(cfg.Seed.Lines))
	for _, line := range cfg.Seed.Lines {
		topics = append(topics, telemetrymqtt.LineTopics{Line: line.Code, Telemetry: line.Telemetry, Alarm: line.Alarm, Ack: line.Ack})
	}
	gateway, err := telemetrymqtt.NewGateway(mqttClient, decoder, engine, alarmTracker, registry, topics,
		telemetrymqtt.WithLogger(logger),
		telemetrymqtt.WithQoS(cfg.MQTT.QoS),
		telemetrymqtt.WithQueueSize(cfg.QueueSize),
		telemetrymqtt.WithPublishInterval(cfg.PublishInterval),
		telemetrymqtt.WithPublishTimeout(cfg.OperationTimeout),
	)
	if err != nil {
		logger.Fatalf("gateway init error: %v", err)
	}

	mux := http.NewServeMux()
	reports := apihttp.NewSQLProductionReader(db)
	mux.Handle("/api/v1/production", apihttp.NewProductionHandler(reports))
	mux.Handle("/api/v1/exports/", apihttp.NewExportProductionHandler(reports, apihttp.WithAudit(audit.NewRepository(db))))
	mux.Handle("/api/v1/lines/", apihttp.NewSnapshotsHandler(registry))
	mux.Handle("/api/v1/runtime", apihttp.NewRuntimeHandler(tracker))
	alarmHandler, err := alarmhttp.NewHandler(alarmTracker)
	if err != nil {
		logger.Fatalf("alarm handler init error: %v", err)
	}
	mux.Handle("/api/v1/alarms", alarmHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var handler http.Handler = mux
	if cfg.JWTSecret != "" {
		policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
		handler = auth.NewMiddleware([]byte(cfg.JWTSecret), policy).Wrap(mux)
	} else {
		logger.Printf("auth: no jwt secret configured, api is unauthenticated")
	}
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(handler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := mqttClient.Connect(ctx); err != nil {
		logger.Printf("mqtt: initial connect failed, retrying in background: err=%v", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return gateway.Run(groupCtx)
	})
	group.Go(func() error {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Printf("shutdown with error: %v", err)
	}
	mqttClient.Disconnect(250 * time.Millisecond)
	logger.Printf("stopped")
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

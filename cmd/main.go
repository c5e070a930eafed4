package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/bugsnag/panicwrap"
	"github.com/hashicorp/go-multierror"
	"github.com/wavechat/gateway/internal/configure"
	"github.com/wavechat/gateway/internal/gateway"
	"github.com/wavechat/gateway/internal/global"
	"github.com/wavechat/gateway/internal/health"
	"github.com/wavechat/gateway/internal/monitoring"
	"github.com/wavechat/gateway/internal/pprof"
	"github.com/wavechat/gateway/internal/svc/auth"
	"github.com/wavechat/gateway/internal/svc/events"
	"github.com/wavechat/gateway/internal/svc/limiter"
	"github.com/wavechat/gateway/internal/svc/presences"
	"github.com/wavechat/gateway/internal/svc/prometheus"
	"github.com/wavechat/gateway/internal/svc/redis"
	"github.com/wavechat/gateway/internal/svc/snowflake"
	"github.com/wavechat/gateway/internal/svc/store"
	"github.com/wavechat/gateway/internal/svc/voice"
	"go.uber.org/zap"
)

var (
	Version = "development"
	Unix    = ""
	Time    = "unknown"
	User    = "unknown"
)

func init() {
	debug.SetGCPercent(2000)
	if i, err := strconv.Atoi(Unix); err == nil {
		Time = time.Unix(int64(i), 0).Format(time.RFC3339)
	}
}

func main() {
	config := configure.New()

	exitStatus, err := panicwrap.BasicWrap(func(s string) {
		zap.S().Errorw("panic detected",
			"panic", s,
		)
	})
	if err != nil {
		zap.S().Errorw("failed to setup panic handler",
			"error", err,
		)
		os.Exit(2)
	}

	if exitStatus >= 0 {
		os.Exit(exitStatus)
	}

	if !config.NoHeader {
		zap.S().Info("WaveChat Gateway")
		zap.S().Infof("Version: %s", Version)
		zap.S().Infof("build.Time: %s", Time)
		zap.S().Infof("build.User: %s", User)
	}

	zap.S().Debugf("MaxProcs: %d", runtime.GOMAXPROCS(0))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	gCtx, cancel := global.WithCancel(global.New(context.Background(), config))

	needsRedis := config.Registry.Mode != configure.RegistryModeMemory ||
		(config.Bus.Mode != configure.BusModeNats && config.Bus.Mode != configure.BusModeMemory)

	if needsRedis {
		ctx, cancel := global.WithTimeout(gCtx, time.Second*15)
		gCtx.Inst().Redis, err = redis.Setup(ctx, redis.SetupOptions{
			Username:   config.Redis.Username,
			Password:   config.Redis.Password,
			Database:   config.Redis.Database,
			Sentinel:   config.Redis.Sentinel,
			MasterName: config.Redis.MasterName,
			Addresses:  config.Redis.Addresses,
		})
		cancel()
		if err != nil {
			zap.S().Fatalw("failed to connect to redis",
				"error", err,
			)
		}
	}

	{
		ctx, cancel := global.WithTimeout(gCtx, time.Second*15)
		gCtx.Inst().Store, err = store.SetupMongo(ctx, store.MongoOptions{
			URI:      config.Mongo.URI,
			Database: config.Mongo.DB,
			Username: config.Mongo.Username,
			Password: config.Mongo.Password,
		})
		cancel()
		if err != nil {
			zap.S().Fatalw("failed to connect to mongo",
				"error", err,
			)
		}
	}

	switch config.Bus.Mode {
	case configure.BusModeNats:
		gCtx.Inst().Events, err = events.NewNats(gCtx, events.NatsOptions{
			URI:           config.Nats.URI,
			SubjectPrefix: config.Nats.SubjectPrefix,
		})
		if err != nil {
			zap.S().Fatalw("failed to connect to nats",
				"error", err,
			)
		}
	case configure.BusModeMemory:
		gCtx.Inst().Events = events.NewMemory()
	default:
		gCtx.Inst().Events = events.NewRedis(events.RedisOptions{
			Redis: gCtx.Inst().Redis,
		})
	}

	if config.Registry.Mode == configure.RegistryModeMemory {
		gCtx.Inst().Presences = presences.NewMemory(presences.MemoryOptions{})
		gCtx.Inst().Voice = voice.NewMemory()
		gCtx.Inst().Limiter = limiter.NewMemory(limiter.MemoryOptions{})
		gCtx.Inst().Auth = auth.New(auth.Options{
			JWTSecret: config.Gateway.JWTSecret,
			Sessions:  auth.NewMemorySessionStore(),
		})
	} else {
		gCtx.Inst().Presences = presences.NewRedis(presences.RedisOptions{
			Redis: gCtx.Inst().Redis,
		})
		gCtx.Inst().Voice = voice.NewRedis(voice.RedisOptions{
			Redis: gCtx.Inst().Redis,
		})
		gCtx.Inst().Limiter, err = limiter.NewRedis(gCtx, limiter.RedisOptions{
			Redis: gCtx.Inst().Redis,
		})
		if err != nil {
			zap.S().Fatalw("failed to load limiter script",
				"error", err,
			)
		}
		gCtx.Inst().Auth = auth.New(auth.Options{
			JWTSecret: config.Gateway.JWTSecret,
			Sessions:  auth.NewRedisSessionStore(gCtx.Inst().Redis),
		})
	}

	{
		gCtx.Inst().Snowflake, err = snowflake.New(snowflake.Options{
			Datacenter: config.Snowflake.Datacenter,
			Worker:     config.Snowflake.Worker,
		})
		if err != nil {
			zap.S().Fatalw("invalid snowflake configuration",
				"error", err,
			)
		}
	}

	{
		gCtx.Inst().Prometheus = prometheus.New(prometheus.Options{
			Labels: config.Monitoring.Labels.ToPrometheus(),
		})
	}

	wg := sync.WaitGroup{}

	if gCtx.Config().Health.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-health.New(gCtx)
		}()
	}
	if gCtx.Config().Monitoring.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-monitoring.New(gCtx)
		}()
	}
	if gCtx.Config().PProf.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-pprof.New(gCtx)
		}()
	}

	done := make(chan struct{})
	go func() {
		<-sig
		cancel()
		go func() {
			select {
			case <-time.After(time.Minute):
			case <-sig:
			}
			zap.S().Fatal("force shutdown")
		}()

		zap.S().Info("shutting down")

		wg.Wait()

		close(done)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-gateway.New(gCtx)
	}()

	<-done

	var shutdownErr error
	if gCtx.Inst().Redis != nil {
		if err := gCtx.Inst().Redis.RawClient().Close(); err != nil {
			shutdownErr = multierror.Append(shutdownErr, err)
		}
	}

	if shutdownErr != nil {
		zap.S().Warnw("shutdown finished with errors",
			"error", shutdownErr,
		)
	}

	zap.S().Info("goodbye")

	os.Exit(0)
}

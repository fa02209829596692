package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"ballotgate/internal/audit"
	"ballotgate/internal/credential/issuer"
	credstore "ballotgate/internal/credential/store"
	credmemory "ballotgate/internal/credential/store/memory"
	credredis "ballotgate/internal/credential/store/redis"
	"ballotgate/internal/credential/token"
	"ballotgate/internal/credential/validator"
	electionstore "ballotgate/internal/election/store"
	electionmemory "ballotgate/internal/election/store/memory"
	electionredis "ballotgate/internal/election/store/redis"
	"ballotgate/internal/phone"
	"ballotgate/internal/platform/config"
	"ballotgate/internal/platform/httpserver"
	"ballotgate/internal/platform/logger"
	"ballotgate/internal/platform/metrics"
	"ballotgate/internal/platform/middleware"
	platformredis "ballotgate/internal/platform/redis"
	httptransport "ballotgate/internal/transport/http"
	"ballotgate/internal/voting/caster"
)

func main() {
	log := logger.New()
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	matcher := phone.NewMatcher(cfg.PhoneCountryCode, cfg.PhoneTrunkPrefix)

	codec, err := token.NewCodec(cfg.TokenMACSecret)
	if err != nil {
		log.Error("token codec init failed", "error", err.Error())
		os.Exit(1)
	}
	if codec.Signed() {
		log.Info("self-encoded tokens run in signed mode")
	}

	// Stores: Redis when configured, in-memory otherwise.
	var (
		voters     electionstore.VoterStore
		categories electionstore.CategoryStore
		candidates electionstore.CandidateStore
		votes      electionstore.VoteStore
		tokens     credstore.TokenStore
		links      credstore.LinkStore
		health     func(ctx context.Context) error
	)

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err.Error())
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		voters = electionredis.NewVoterStore(redisClient.Client)
		categories = electionredis.NewCategoryStore(redisClient.Client)
		candidates = electionredis.NewCandidateStore(redisClient.Client)
		votes = electionredis.NewVoteStore(redisClient.Client)
		tokens = credredis.NewTokenStore(redisClient.Client)
		links = credredis.NewLinkStore(redisClient.Client)
		health = redisClient.Health
		log.Info("using redis stores")
	} else {
		voters = electionmemory.NewVoterStore()
		categories = electionmemory.NewCategoryStore()
		candidates = electionmemory.NewCandidateStore()
		votes = electionmemory.NewVoteStore()
		tokens = credmemory.NewTokenStore()
		links = credmemory.NewLinkStore()
		log.Warn("redis not configured, using in-memory stores")
	}

	// Audit trail: Kafka and Postgres are optional; the log line always fires.
	var publisher audit.Publisher
	var worker *audit.Worker
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err := audit.NewKafkaPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("kafka audit publisher init failed", "error", err.Error())
			os.Exit(1)
		}
		defer kafkaPublisher.Close()
		worker = audit.NewWorker(kafkaPublisher, 256, log)
		publisher = worker
		log.Info("audit events publishing to kafka", "topic", cfg.Kafka.Topic)
	} else if cfg.AuditDSN != "" {
		pgStore, err := audit.OpenPostgres(ctx, cfg.AuditDSN)
		if err != nil {
			log.Error("postgres audit store init failed", "error", err.Error())
			os.Exit(1)
		}
		defer pgStore.Close()
		publisher = audit.NewStorePublisher(pgStore)
		log.Info("audit events persisting to postgres")
	}

	validatorSvc, err := validator.New(codec, tokens, links, voters, categories, candidates, matcher,
		validator.WithLogger(log),
		validator.WithAuditPublisher(publisher),
		validator.WithMetrics(m),
	)
	if err != nil {
		log.Error("validator init failed", "error", err.Error())
		os.Exit(1)
	}

	casterSvc, err := caster.New(voters, candidates, votes, tokens, links,
		caster.WithLogger(log),
		caster.WithAuditPublisher(publisher),
		caster.WithMetrics(m),
	)
	if err != nil {
		log.Error("caster init failed", "error", err.Error())
		os.Exit(1)
	}

	issuerSvc, err := issuer.New(tokens, links, voters, categories, codec, matcher,
		issuer.WithLogger(log),
		issuer.WithAuditPublisher(publisher),
		issuer.WithMetrics(m),
	)
	if err != nil {
		log.Error("issuer init failed", "error", err.Error())
		os.Exit(1)
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:         log,
		Validator:      validatorSvc,
		Caster:         casterSvc,
		Issuer:         issuerSvc,
		JWTValidator:   middleware.NewHS256Validator(cfg.JWTSigningKey),
		Health:         health,
		RequestTimeout: cfg.StoreTimeout * 6,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if worker != nil {
		g.Go(func() error {
			if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
	log.Info("server stopped")
}

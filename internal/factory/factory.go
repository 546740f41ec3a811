// Package factory wires the application together: clients, managers,
// repositories, stores, services, handlers and the background workers, with
// one graceful Close path in reverse dependency order.
package factory

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"go.uber.org/zap"

	"dauth-service/internal/audit"
	"dauth-service/internal/auth"
	"dauth-service/internal/bucketing"
	"dauth-service/internal/client"
	"dauth-service/internal/config"
	"dauth-service/internal/credential"
	"dauth-service/internal/encryption"
	"dauth-service/internal/handler"
	"dauth-service/internal/hashing"
	"dauth-service/internal/identity"
	"dauth-service/internal/janitor"
	"dauth-service/internal/mail"
	"dauth-service/internal/otp"
	"dauth-service/internal/repository"
	redisrepo "dauth-service/internal/repository/redis"
	"dauth-service/internal/repository/scylla"
	"dauth-service/internal/session"
	servertls "dauth-service/internal/tls"
	"dauth-service/internal/token"
	"dauth-service/internal/user"
	"dauth-service/internal/util"
)

type Factory struct {
	config     *config.Config
	tlsManager *servertls.Manager

	// clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	clickhouseClient *client.ClickHouseClient
	esClient         *client.ESClient
	kmsClient        *kms.Client

	// managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.Manager
	bucketingManager  *bucketing.Manager

	// repositories and stores
	userRepository repository.UserRepository
	sessionRepo    *scylla.SessionRepository
	sessionStore   *session.Store
	otpStore       *otp.Store

	// services
	tokenCodec  *token.Codec
	verifier    *credential.Verifier
	authService *auth.Service
	userService *user.Service
	recorder    *audit.Recorder
	janitor     *janitor.Janitor

	closeOnce sync.Once
}

func New() (*Factory, error) {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	f := &Factory{config: cfg}

	if cfg.Server.EnableTLS {
		f.tlsManager = servertls.NewManager(cfg)
	}

	if err := f.initClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	f.initManagers()
	f.initServices()

	util.Info("Factory initialized",
		zap.String("environment", cfg.Environment),
		zap.Bool("tls_enabled", cfg.Server.EnableTLS),
		zap.Bool("kms_enabled", cfg.KMS.Enabled))

	return f, nil
}

// initClients connects the external services. Redis and Scylla are required;
// the audit sinks (Kafka, ClickHouse, Elasticsearch) degrade to warnings so a
// broken analytics pipeline never blocks authentication.
func (f *Factory) initClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	redisClient, err := client.NewRedisClient(f.config)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	f.redisClient = redisClient

	scyllaClient, err := scylla.NewScyllaClient(f.config)
	if err != nil {
		return fmt.Errorf("scylla: %w", err)
	}
	f.scyllaClient = scyllaClient

	if producer, err := client.NewKafkaProducer(f.config); err != nil {
		util.Warn("Kafka producer unavailable, events will not be published", zap.Error(err))
	} else {
		f.kafkaProducer = producer
	}

	if chClient, err := client.NewClickHouseClient(f.config); err != nil {
		util.Warn("ClickHouse unavailable, events will not be archived", zap.Error(err))
	} else {
		f.clickhouseClient = chClient
	}

	if esClient, err := client.NewElasticsearchClient(f.config); err != nil {
		util.Warn("Elasticsearch unavailable, events will not be indexed", zap.Error(err))
	} else {
		f.esClient = esClient
	}

	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("kms: %w", err)
		}
		f.kmsClient = kms.NewFromConfig(awsCfg)
	}

	return nil
}

func (f *Factory) initManagers() {
	f.hasher = hashing.NewHasher(f.config)
	f.encryptionManager = encryption.NewManager(f.config, f.kmsClient)
	f.bucketingManager = bucketing.NewManager(f.config)
}

func (f *Factory) initServices() {
	f.userRepository = scylla.NewUserRepository(f.scyllaClient, f.bucketingManager)
	f.sessionRepo = scylla.NewSessionRepository(f.scyllaClient)

	locker := redisrepo.NewSessionLock(f.redisClient)
	f.sessionStore = session.NewStore(f.config, f.sessionRepo, locker)
	f.otpStore = otp.NewStore(f.config, redisrepo.NewOTPRepository(f.redisClient))

	f.tokenCodec = token.NewCodec(f.config)
	f.verifier = credential.NewVerifier(f.config, f.userRepository, f.hasher, f.encryptionManager)

	var kafkaSink audit.Publisher
	if f.kafkaProducer != nil {
		kafkaSink = f.kafkaProducer
	}
	var olapSink audit.BatchWriter
	if f.clickhouseClient != nil {
		olapSink = f.clickhouseClient
	}
	var searchSink audit.Indexer
	if f.esClient != nil {
		searchSink = f.esClient
	}
	f.recorder = audit.NewRecorder(f.bucketingManager, kafkaSink, olapSink, searchSink,
		f.config.Elasticsearch.EventIdx)

	mailer := mail.NewSMTPMailer(f.config)
	f.authService = auth.NewService(
		f.config,
		f.userRepository,
		f.sessionStore,
		f.otpStore,
		f.tokenCodec,
		f.verifier,
		f.hasher,
		f.encryptionManager,
		identity.NewProvider(f.config),
		mail.NewOTPSender(f.config, mailer),
		f.recorder,
	)
	f.userService = user.NewService(f.userRepository, f.sessionStore, f.encryptionManager)

	f.janitor = janitor.New(f.config, f.sessionRepo)
	f.janitor.Start()
}

// Router assembles the HTTP surface.
func (f *Factory) Router() http.Handler {
	var limiter *redisrepo.RateLimiter
	if f.config.RateLimit.Enabled {
		limiter = redisrepo.NewRateLimiter(f.redisClient, f.config)
	}

	return handler.NewRouter(handler.RouterDeps{
		Auth:     handler.NewAuthHandler(f.config, f.authService, identity.NewProvider(f.config)),
		Users:    handler.NewUserHandler(f.userService),
		Codec:    f.tokenCodec,
		Sessions: f.sessionStore,
		Limiter:  limiter,
		Health:   f.healthHandler,
	})
}

func (f *Factory) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if f.IsHealthy(r.Context()) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"dauth-service"}`))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte(`{"status":"degraded","service":"dauth-service"}`))
}

// HealthCheck probes every connected backend.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	health := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			health["redis"] = err
		}
	} else {
		health["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(); err != nil {
			health["scylla"] = err
		}
	} else {
		health["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			health["kafka"] = err
		}
	}
	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			health["clickhouse"] = err
		}
	}
	if f.esClient != nil {
		if err := f.esClient.HealthCheck(); err != nil {
			health["elasticsearch"] = err
		}
	}

	return health
}

// IsHealthy ignores the optional audit sinks; only the stores that
// authentication depends on count.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	health := f.HealthCheck(ctx)
	delete(health, "kafka")
	delete(health, "clickhouse")
	delete(health, "elasticsearch")
	return len(health) == 0
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *servertls.Manager {
	return f.tlsManager
}

// Close shuts everything down in reverse order of construction: workers
// first so nothing writes into closing clients.
func (f *Factory) Close() {
	f.closeOnce.Do(func() {
		util.Info("Shutting down factory")

		if f.janitor != nil {
			if err := f.janitor.Stop(); err != nil {
				util.Error("Failed to stop janitor", zap.Error(err))
			}
		}
		if f.recorder != nil {
			f.recorder.Close()
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close kafka producer", zap.Error(err))
			}
		}
		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close clickhouse client", zap.Error(err))
			}
		}
		if f.esClient != nil {
			f.esClient.Close()
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}
		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close redis client", zap.Error(err))
			}
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}

		util.Sync()
	})
}

// Package app assembles the vault from configuration. Both binaries share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"custody/internal/config"
	"custody/internal/domain"
	"custody/internal/infra/auth/clearance"
	"custody/internal/infra/auth/rbac"
	"custody/internal/infra/awsclient"
	"custody/internal/infra/crypto"
	"custody/internal/infra/db"
	"custody/internal/infra/keys"
	"custody/internal/infra/memstore"
	"custody/internal/infra/merkle"
	"custody/internal/infra/policyopa"
	"custody/internal/infra/ratelimit"
	"custody/internal/infra/storage"
	"custody/internal/usecase"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
	"go.uber.org/zap"
)

const (
	StoreModeDB     = "db"
	StoreModeMemory = "memory"
)

type App struct {
	Config    config.Config
	Logger    *zap.Logger
	StoreMode string
	MasterKey keys.MasterKey

	Documents   usecase.DocumentRepository
	AuditRepo   usecase.AuditRecordRepository
	Blobs       usecase.BlobStore
	Policy      *policyopa.Engine
	Trail       *usecase.AuditTrail
	Authorizer  domain.Authorizer
	Vault       *usecase.VaultService
	Queries     *usecase.AuditQueries
	RateLimiter domain.RateLimiter

	store   *db.Store
	closers []func() error
}

// Build wires every component named by cfg. Production refuses to run on
// in-memory repositories or an ephemeral master key.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}
	if err := a.initStore(); err != nil {
		return nil, err
	}
	sess, err := a.awsSession()
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initKey(ctx, sess); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initBlobs(sess); err != nil {
		a.Close()
		return nil, err
	}
	policy, err := policyopa.Load(ctx, cfg.UploadPolicyPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Policy = policy
	logger.Info("upload policy loaded",
		zap.String("policy_id", policy.PolicyID()),
		zap.String("policy_hash", policy.PolicyHash()),
	)

	envelope, err := crypto.NewEnvelope(a.MasterKey.Key)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Trail = usecase.NewAuditTrail(a.AuditRepo, nil, logger)
	a.Trail.DetailsMax = cfg.AuditDetailsMax
	a.Trail.AsyncTimeout = cfg.AuditAsyncTimeout()
	a.Trail.Tree = &merkle.Service{}
	a.Authorizer = rbac.NewAuthorizer()
	a.Vault = &usecase.VaultService{
		Documents:       a.Documents,
		Blobs:           a.Blobs,
		Cipher:          envelope,
		Clearance:       clearance.NewValidator(),
		Audit:           a.Trail,
		Policy:          policy,
		Authorizer:      a.Authorizer,
		Logger:          logger.With(zap.String("service", "vault")),
		MaxUploadBytes:  cfg.MaxUploadBytes,
		TransferTimeout: cfg.TransferTimeout(),
	}
	a.Queries = usecase.NewAuditQueries(a.Trail, a.Authorizer)
	if err := a.initRateLimiter(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) initStore() error {
	store, err := db.NewStore(a.Config, a.Logger)
	if err != nil {
		return err
	}
	if !store.Available() {
		if a.Config.Production() {
			return errors.New("POSTGRES_DSN is required in production")
		}
		a.StoreMode = StoreModeMemory
		a.Documents = memstore.NewDocuments()
		a.AuditRepo = memstore.NewAuditRecords()
		return nil
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	a.StoreMode = StoreModeDB
	a.Documents = db.NewDocumentRepository(store.DB)
	a.AuditRepo = db.NewAuditRecordRepository(store.DB)
	return nil
}

// awsSession is only created when a component needs AWS.
func (a *App) awsSession() (*session.Session, error) {
	needsAWS := a.Config.StorageBackend == config.StorageBackendS3 ||
		(a.Config.MasterKeySecretID != "" && a.Config.MasterKeyBase64 == "" && a.Config.MasterKeyHex == "")
	if !needsAWS {
		return nil, nil
	}
	return awsclient.NewSession(a.Config)
}

func (a *App) initKey(ctx context.Context, sess *session.Session) error {
	var secrets secretsmanageriface.SecretsManagerAPI
	if sess != nil {
		secrets = awsclient.NewSecretsManager(sess)
	}
	master, err := keys.LoadMasterKey(ctx, a.Config, secrets, a.Logger)
	if err != nil {
		return fmt.Errorf("load master key: %w", err)
	}
	a.MasterKey = master
	return nil
}

func (a *App) initBlobs(sess *session.Session) error {
	switch a.Config.StorageBackend {
	case config.StorageBackendS3:
		blobs, err := storage.NewS3Store(awsclient.NewS3(sess), a.Config.S3Bucket, a.Config.S3Prefix)
		if err != nil {
			return err
		}
		a.Blobs = blobs
	case config.StorageBackendLocal, "":
		blobs, err := storage.NewLocalStore(a.Config.StorageLocalRoot)
		if err != nil {
			return err
		}
		a.Blobs = blobs
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", a.Config.StorageBackend)
	}
	return nil
}

func (a *App) initRateLimiter(ctx context.Context) error {
	if a.Config.RateLimitRequests <= 0 {
		return nil
	}
	if a.Config.RedisAddr == "" {
		a.RateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{MaxKeys: a.Config.RateLimitMaxKeys})
		return nil
	}
	limiter, err := ratelimit.NewRedisLimiter(ratelimit.RedisConfig{
		Addr:     a.Config.RedisAddr,
		Password: a.Config.RedisPassword,
		DB:       a.Config.RedisDB,
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, limiter.Close)
	if err := limiter.Ping(ctx); err != nil {
		a.Logger.Warn("redis rate limiter unreachable at startup", zap.Error(err))
	}
	a.RateLimiter = limiter
	return nil
}

// RecordStartup writes SYSTEM_STARTUP and, for an ephemeral key,
// MASTER_KEY_EPHEMERAL.
func (a *App) RecordStartup(ctx context.Context, component string) error {
	meta := domain.RequestMeta{IPAddress: "internal", UserAgent: component}
	if a.MasterKey.Ephemeral {
		if _, err := a.Trail.Record(ctx, usecase.AuditEntry{
			ActorID:      domain.AuditSystemActorID,
			ActionType:   domain.AuditActionMasterKeyEphemeral,
			ResourceType: domain.AuditResourceSystem,
			Status:       domain.AuditStatusSuccess,
			Details:      "documents stored under this key are unreadable after restart",
			Meta:         meta,
		}); err != nil {
			return err
		}
	}
	_, err := a.Trail.Record(ctx, usecase.AuditEntry{
		ActorID:      domain.AuditSystemActorID,
		ActionType:   domain.AuditActionSystemStartup,
		ResourceType: domain.AuditResourceSystem,
		Status:       domain.AuditStatusSuccess,
		Details:      fmt.Sprintf("component=%s store=%s key_source=%s policy_hash=%s", component, a.StoreMode, a.MasterKey.Source, a.Policy.PolicyHash()),
		Meta:         meta,
	})
	return err
}

// RetentionSweeper returns a sweeper over the app's repositories.
func (a *App) RetentionSweeper() *usecase.RetentionSweeper {
	sweeper := usecase.NewRetentionSweeper(a.Documents, a.Blobs, a.Trail, nil, a.Config.RetentionPeriod())
	sweeper.BatchSize = a.Config.RetentionBatchSize
	sweeper.Logger = a.Logger.With(zap.String("service", "retention"))
	return sweeper
}

// Close waits for pending audit writes and releases connections.
func (a *App) Close() error {
	if a.Trail != nil {
		a.Trail.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

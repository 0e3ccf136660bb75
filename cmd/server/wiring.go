package main

import (
	"context"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/nats-io/nats.go"

	"github.com/hrescak/Draftboard-sub002/internal/cfg"
	"github.com/hrescak/Draftboard-sub002/internal/dbx"
	"github.com/hrescak/Draftboard-sub002/internal/events"
	"github.com/hrescak/Draftboard-sub002/internal/log"
	"github.com/hrescak/Draftboard-sub002/internal/objstore"
	"github.com/hrescak/Draftboard-sub002/internal/publishauth"
	"github.com/hrescak/Draftboard-sub002/internal/store"
	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

// openStore returns Postgres when DATABASE_URL is set and the in-memory
// store otherwise.
func openStore(ctx context.Context, L log.Logger, conf cfg.App) (store.Store, func(), error) {
	if conf.DatabaseURL == "" {
		L.Warn(ctx, "DATABASE_URL not set, using in-memory metadata store")
		return store.NewMemory(), func() {}, nil
	}

	db, err := dbx.Open(ctx, conf.DatabaseURL, dbx.Options{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		PingTimeout:     5 * time.Second,
	})
	if err != nil {
		return nil, nil, err
	}
	if conf.AutoMigrate {
		if err := store.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		L.Info(ctx, "database migrations applied")
	}
	return store.NewPostgres(db), func() { _ = db.Close() }, nil
}

// openObjects returns nil without error when no bucket is configured.
func openObjects(ctx context.Context, L log.Logger, conf cfg.App) (objstore.Store, error) {
	if conf.S3Bucket == "" {
		L.Warn(ctx, "S3_BUCKET not set, site serving and signing are unavailable")
		return nil, nil
	}
	s3c, err := objstore.NewS3(ctx, objstore.S3Options{
		Bucket:          conf.S3Bucket,
		Region:          conf.S3Region,
		Endpoint:        conf.S3Endpoint,
		UsePathStyle:    conf.S3PathStyle,
		AccessKeyID:     conf.S3AccessKeyID,
		SecretAccessKey: conf.S3SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}
	return s3c, nil
}

func loadServiceSecret(ctx context.Context, conf cfg.App) (string, error) {
	if conf.PublishSecretSSMParam == "" {
		return conf.PublishSecret, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(conf.S3Region))
	if err != nil {
		return "", xerrors.Wrap(err, "load AWS config")
	}
	return publishauth.LoadServiceSecret(ctx, ssm.NewFromConfig(awsCfg), conf.PublishSecretSSMParam)
}

// openEvents returns nil without error when NATS is not configured.
func openEvents(conf cfg.App) (*events.Bus, error) {
	if conf.NATSURL == "" {
		return nil, nil
	}
	return events.Connect(conf.NATSURL, conf.NATSSubject,
		nats.Name("draftboard-sites"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
}

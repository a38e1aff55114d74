package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/cloud"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/config"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/database"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/mqtt"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/notify"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/observability"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/repository"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/service"
)

// App holds the process-scoped resources shared by both entry points.
type App struct {
	// DB is nil when STORAGE_BACKEND=memory.
	DB       *sqlx.DB
	Services *service.Services

	closers []io.Closer
}

// Build opens storage and the optional cloud/Kafka integrations from config.
func Build(ctx context.Context, tel *observability.Telemetry) (*App, error) {
	app := &App{}

	repos, err := app.repositories(ctx)
	if err != nil {
		return nil, err
	}

	opts := service.Options{}
	var notifiers notify.Multi

	if config.UseCloudServices() {
		awsCfg, err := cloud.LoadConfig(ctx, config.AWSRegion())
		if err != nil {
			app.Close()
			return nil, err
		}
		if config.AlertStoreBackend() == "dynamodb" {
			repos.Alerts = cloud.NewDynamoAlertStore(awsCfg, config.DynamoAlertsTable())
			log.Info().Str("table", config.DynamoAlertsTable()).Msg("alerts stored in DynamoDB")
		}
		if bucket := config.S3Bucket(); bucket != "" {
			opts.Archiver = cloud.NewS3Archiver(awsCfg, bucket, config.S3ArchivePrefix())
		}
		if arn := config.SNSTopicArn(); arn != "" {
			notifiers = append(notifiers, cloud.NewSNSNotifier(awsCfg, arn))
		}
		if fn := config.LambdaAlertFunction(); fn != "" {
			notifiers = append(notifiers, cloud.NewLambdaNotifier(awsCfg, fn))
		}
	} else if config.AlertStoreBackend() == "dynamodb" {
		log.Warn().Msg("ALERT_STORE=dynamodb needs USE_CLOUD_SERVICES=true; using the primary store")
	}

	if brokers := config.KafkaBrokers(); len(brokers) > 0 {
		kn, err := notify.NewKafkaNotifier(brokers, config.KafkaAlertsTopic())
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("kafka notifier: %w", err)
		}
		notifiers = append(notifiers, kn)
	}

	if len(notifiers) > 0 {
		async := notify.NewAsync(notifiers, config.NotifyTimeout())
		opts.Notifier = async
		app.closers = append(app.closers, async)
	}

	app.Services = service.New(repos, tel, opts)
	return app, nil
}

func (a *App) repositories(ctx context.Context) (*repository.Repos, error) {
	if config.StorageBackend() == "memory" {
		log.Warn().Msg("using in-memory storage; data is lost on exit")
		return repository.NewMemory(), nil
	}

	db, err := database.Connect(ctx)
	if err != nil {
		return nil, err
	}
	a.DB = db

	if config.DBAutoMigrate() {
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return repository.New(db), nil
}

// Close waits for pending notifications, releases notifiers and closes the
// connection pool last.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

// MQTTConfig derives a per-process client id so the api and ingestor can share a broker.
func MQTTConfig(role string) mqtt.Config {
	clientID := config.MQTTClientID()
	if host, err := os.Hostname(); err == nil {
		clientID = fmt.Sprintf("%s-%s-%s", clientID, role, host)
	}
	clientID = fmt.Sprintf("%s-%s", clientID, uuid.NewString()[:8])

	return mqtt.Config{
		Broker:     config.MQTTBroker(),
		ClientID:   clientID,
		Topic:      config.MQTTTopic(),
		ShareGroup: config.MQTTShareGroup(),
		QoS:        config.MQTTQoS(),
	}
}

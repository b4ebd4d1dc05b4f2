// Package main is the entrypoint for the Digest Scheduler Lambda function.
//
// The scheduler runs on a cron trigger (EventBridge rule, every 30 minutes)
// and performs one cooldown sweep: scan for digests whose cooldown has
// expired, claim a send attempt for each, render the digest email, and
// dispatch it through the configured transport.
//
// Cold Start (main):
//  1. Initialize structured logger.
//  2. Load process configuration and AWS SDK configuration.
//  3. Connect the Postgres pool and build the digest and send log repositories.
//  4. Select the email transport (SES or the HTTP provider) from config.
//  5. Build the renderer, sender, and sweeper, then call lambda.Start.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"

	"puretrack/internal/config"
	"puretrack/internal/db"
	"puretrack/internal/digest"
	"puretrack/internal/external"
	"puretrack/internal/metrics"
	"puretrack/internal/notifications/email"
	"puretrack/internal/scheduler"
	"puretrack/internal/types"
)

// SweepInput is the optional invocation payload. The cron rule sends an
// empty object; operators can override tuning for a manual invocation.
type SweepInput struct {
	// BatchSize overrides the configured scan page size when positive.
	BatchSize int `json:"batch_size"`

	// Concurrency overrides the configured send fan-out when positive.
	Concurrency int `json:"concurrency"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("Digest Scheduler Lambda initializing (cold start)")

	typedLogger := types.NewSlogLogger(logger)

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL.Unmask())
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	digestRepo := db.NewDigestRepository(pool)
	sendLogRepo := db.NewSendLogRepository(pool)

	transport, err := newTransport(awsCfg, cfg.Email, logger)
	if err != nil {
		logger.Error("failed to build email transport", "error", err)
		os.Exit(1)
	}

	renderer, err := email.NewRenderer(email.RendererConfig{
		SenderName:     cfg.Email.SenderName,
		SenderAddress:  cfg.Email.SenderAddress,
		APIExternalURL: cfg.Server.APIExternalURL,
	})
	if err != nil {
		logger.Error("failed to build digest renderer", "error", err)
		os.Exit(1)
	}

	cwClient := cloudwatch.NewFromConfig(awsCfg)
	sendMetrics := metrics.NewCloudWatchSendMetrics(cwClient, typedLogger)

	sender := digest.NewSender(digest.SenderConfig{
		Store:       digestRepo,
		Audit:       sendLogRepo,
		Renderer:    renderer,
		Transport:   transport,
		Metrics:     sendMetrics,
		Logger:      typedLogger,
		SendTimeout: cfg.Email.SendTimeout,
	})

	logger.Info("Digest Scheduler Lambda initialized",
		"environment", cfg.Environment,
		"email_provider", cfg.Email.Provider,
		"batch_size", cfg.Scheduler.BatchSize,
		"send_concurrency", cfg.Scheduler.SendConcurrency,
	)

	handler := newHandler(cfg, digestRepo, sender, typedLogger, logger)

	// Local mode: run a single sweep immediately instead of starting the
	// Lambda runtime.
	if os.Getenv("APP_ENV") == "local" {
		logger.Info("APP_ENV=local: running one sweep")
		result, err := handler(ctx, SweepInput{})
		if err != nil {
			logger.Error("sweep failed", "error", err)
			os.Exit(1)
		}
		logger.Info(result)
		return
	}

	lambda.Start(handler)
}

// newHandler creates the Lambda handler function. Each invocation builds a
// fresh sweeper so a manual payload can override the tuning without
// mutating cold-start state.
func newHandler(cfg *config.Config, store scheduler.SweepStore, sender scheduler.DigestSender, typedLogger types.Logger, logger *slog.Logger) func(ctx context.Context, input SweepInput) (string, error) {
	return func(ctx context.Context, input SweepInput) (string, error) {
		batchSize := cfg.Scheduler.BatchSize
		if input.BatchSize > 0 {
			batchSize = input.BatchSize
		}
		concurrency := cfg.Scheduler.SendConcurrency
		if input.Concurrency > 0 {
			concurrency = input.Concurrency
		}

		logger.InfoContext(ctx, "cooldown sweep invoked",
			"batch_size", batchSize,
			"concurrency", concurrency,
		)

		sweeper := scheduler.NewSweeper(scheduler.SweeperConfig{
			Store:       store,
			Sender:      sender,
			Logger:      typedLogger,
			BatchSize:   batchSize,
			Concurrency: concurrency,
		})

		result, err := sweeper.Run(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "cooldown sweep failed",
				"error", err,
				"scanned", result.Scanned,
				"sent", result.Sent,
				"failed", result.Failed,
				"skipped", result.Skipped,
			)
			return "", fmt.Errorf("cooldown sweep failed: %w", err)
		}

		summary := fmt.Sprintf("sweep complete: scanned=%d sent=%d failed=%d skipped=%d",
			result.Scanned, result.Sent, result.Failed, result.Skipped)
		logger.InfoContext(ctx, summary,
			"scanned", result.Scanned,
			"sent", result.Sent,
			"failed", result.Failed,
			"skipped", result.Skipped,
		)
		return summary, nil
	}
}

// newTransport selects the outbound email implementation from config.
func newTransport(awsCfg aws.Config, cfg config.EmailConfig, logger *slog.Logger) (digest.EmailTransport, error) {
	switch cfg.Provider {
	case "ses":
		return external.NewSESClient(awsCfg, external.SESClientConfig{
			ConfigSetName: cfg.SESConfigSet,
			Logger:        logger,
		}), nil
	case "http":
		if cfg.HTTPEndpoint == "" {
			return nil, fmt.Errorf("EMAIL_HTTP_ENDPOINT is required when EMAIL_PROVIDER=http")
		}
		return external.NewHTTPMailClient(
			&http.Client{Timeout: cfg.SendTimeout},
			external.HTTPMailConfig{
				Endpoint: cfg.HTTPEndpoint,
				APIKey:   cfg.HTTPAPIKey.Unmask(),
				Logger:   logger,
			},
		), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

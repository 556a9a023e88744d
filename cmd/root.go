package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mongo2csv/cmd/plan"
	"mongo2csv/cmd/version"
	"mongo2csv/internal/config"
	"mongo2csv/internal/exporter"
	"mongo2csv/internal/extractor"
	"mongo2csv/internal/flags"
	"mongo2csv/internal/loader"
	"mongo2csv/internal/logging"
	"mongo2csv/internal/metrics"
	"mongo2csv/internal/mongo"
	"mongo2csv/internal/pipeline"
	"mongo2csv/internal/progress"
	"mongo2csv/internal/retry"
)

// disconnectTimeout bounds the disconnect issued after the export, even when the run was cancelled.
const disconnectTimeout = 5 * time.Second

// NewRootCmd builds the mongo2csv command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mongo2csv HOST PORT DATABASE OUTPUT_FILE",
		Short: "Export a MongoDB aggregation to a CSV file",
		Long: `Run the participant export aggregation against MongoDB and stream the
result to a CSV file.

The first line holds the column names. Every value is double-quoted, and any
double quote inside a value is replaced by a space. Fields missing from a
record are written as "".`,
		Args:          flags.ExactNonEmptyArgs("HOST", "PORT", "DATABASE", "OUTPUT_FILE"),
		RunE:          runExport,
		SilenceErrors: true,
	}

	flags.AddMongoFlags(rootCmd)
	flags.AddOutputFlags(rootCmd)
	flags.AddLogFlags(rootCmd)

	rootCmd.AddCommand(plan.NewPlanCmd())
	rootCmd.AddCommand(version.NewVersionCmd())
	return rootCmd
}

// Execute runs the command tree with ctx and returns the first error.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func runExport(cmd *cobra.Command, args []string) error {
	// Arguments are valid from here on, failures are not usage errors.
	cmd.SilenceUsage = true

	cfg := &config.Config{
		MongoHost:  args[0],
		MongoPort:  args[1],
		MongoDB:    args[2],
		OutputFile: args[3],
	}
	if err := cfg.Load(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.OverrideConfigWithFlags(cmd); err != nil {
		return fmt.Errorf("failed to apply flags: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cmd.ErrOrStderr(), cfg.GetLogLevel())
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"uri":      cfg.RedactedMongoURI(),
		"database": cfg.GetMongoDB(),
		"output":   cfg.GetOutputFile(),
	}).Info("Starting export")

	var m *metrics.Metrics
	if cfg.GetMetricsFile() != "" {
		m = metrics.NewMetrics()
		defer writeMetrics(m, cfg.GetMetricsFile(), logger)
	}

	def, err := pipeline.Resolve(cfg.GetPipelineFile(), cfg.GetMongoCollection())
	if err != nil {
		return recordFailure(m, logger, err)
	}
	header, err := def.Header()
	if err != nil {
		return recordFailure(m, logger, err)
	}
	logger.WithField("keys", header).Info("Pipeline keys")

	ctx := cmd.Context()
	logger.Info("Connecting to MongoDB")
	client, err := mongo.ConnectWithRetry(ctx, cfg, connectPolicy(cfg, logger), mongo.WithDriverLogger(logger))
	if err != nil {
		return recordFailure(m, logger, err)
	}
	defer closeClient(ctx, client, logger)
	logger.Info("Connected to MongoDB")

	source, err := extractor.NewMongoExtractor(client.Database(cfg.GetMongoDB()), def)
	if err != nil {
		return recordFailure(m, logger, err)
	}

	file, err := loader.CreateFileSink(cfg.GetOutputFile())
	if err != nil {
		return recordFailure(m, logger, err)
	}
	sink, err := loader.NewEncodedSink(file, cfg.GetOutputEncoding())
	if err != nil {
		_ = file.Close()
		return recordFailure(m, logger, err)
	}
	csvLoader := loader.NewCSVLoader(sink, header,
		loader.WithLogger(logger),
		loader.WithProgress(progress.NewReporter(logger, progress.DefaultInterval)),
	)

	target := exporter.Target{Database: cfg.GetMongoDB(), Collection: def.Collection}
	summary, err := exporter.NewService(source, csvLoader, target, logger, m).Run(ctx)
	if err != nil {
		logger.WithError(err).Error("Export failed")
		return err
	}

	logger.WithFields(logrus.Fields{
		"rows":    summary.Rows,
		"elapsed": summary.Elapsed.String(),
		"output":  cfg.GetOutputFile(),
	}).Info("Export complete")
	return nil
}

func connectPolicy(cfg *config.Config, logger logrus.FieldLogger) *retry.Policy {
	return retry.NewPolicy().
		WithMaxRetries(cfg.GetConnectRetries()).
		WithOnRetry(func(attempt int, delay time.Duration, err error) {
			logger.WithError(err).WithFields(logrus.Fields{
				"attempt": attempt,
				"delay":   delay.String(),
			}).Warn("MongoDB unreachable, retrying")
		})
}

// recordFailure counts a failure that happened before the export service started.
func recordFailure(m *metrics.Metrics, logger logrus.FieldLogger, err error) error {
	if m != nil {
		m.RecordError(err)
	}
	logger.WithError(err).Error("Export failed")
	return err
}

func writeMetrics(m *metrics.Metrics, path string, logger logrus.FieldLogger) {
	if err := m.WriteTextfile(path); err != nil {
		logger.WithError(err).Warn("Failed to write metrics file")
	}
}

func closeClient(ctx context.Context, client *mongo.Client, logger logrus.FieldLogger) {
	logger.Info("Closing connection")
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
	defer cancel()
	if err := client.Close(closeCtx); err != nil {
		logger.WithError(err).Warn("Failed to close connection")
		return
	}
	logger.Info("Connection closed")
}

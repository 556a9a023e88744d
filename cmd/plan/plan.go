package plan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mongo2csv/internal/config"
	"mongo2csv/internal/extractor"
	"mongo2csv/internal/flags"
	"mongo2csv/internal/logging"
	"mongo2csv/internal/mongo"
	"mongo2csv/internal/pipeline"
	"mongo2csv/internal/retry"
)

// NewPlanCmd builds the plan command.
func NewPlanCmd() *cobra.Command {
	planCmd := &cobra.Command{
		Use:   "plan HOST PORT DATABASE",
		Short: "Show export plan",
		Long: `Show the columns and the number of matching documents without writing
any output. The same aggregation as the export is run with a trailing $count.`,
		Args: flags.ExactNonEmptyArgs("HOST", "PORT", "DATABASE"),
		RunE: runPlan,
	}

	flags.AddMongoFlags(planCmd)
	flags.AddLogFlags(planCmd)
	return planCmd
}

func runPlan(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg := &config.Config{
		MongoHost: args[0],
		MongoPort: args[1],
		MongoDB:   args[2],
	}
	// Set dry run mode.
	cfg.SetDryRun(true)

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

	def, err := pipeline.Resolve(cfg.GetPipelineFile(), cfg.GetMongoCollection())
	if err != nil {
		return err
	}
	header, err := def.Header()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	policy := retry.NewPolicy().WithMaxRetries(cfg.GetConnectRetries())
	client, err := mongo.ConnectWithRetry(ctx, cfg, policy, mongo.WithDriverLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			logger.WithError(err).Warn("Failed to close connection")
		}
	}()

	source, err := extractor.NewMongoExtractor(client.Database(cfg.GetMongoDB()), def)
	if err != nil {
		return err
	}
	total, err := source.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count documents: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Collection: %s.%s\n", cfg.GetMongoDB(), source.Collection())
	fmt.Fprintf(out, "Columns (%d): %s\n", len(header), strings.Join(header, ", "))
	fmt.Fprintf(out, "Found %d documents to export\n", total)
	return nil
}

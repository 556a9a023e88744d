package flags

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultConnectRetries = 2
)

// AddMongoFlags adds MongoDB-related flags to the command.
func AddMongoFlags(cmd *cobra.Command) {
	cmd.Flags().String("mongo-user", "", "MongoDB username.")
	cmd.Flags().String("mongo-password", "", "MongoDB password.")
	cmd.Flags().String("mongo-collection", "", "Collection to aggregate (overrides the pipeline definition).")
	cmd.Flags().String("pipeline-file", "", "Extended JSON file with {\"collection\", \"pipeline\"} to run instead of the built-in query.")
	cmd.Flags().Duration("connect-timeout", defaultConnectTimeout, "Timeout for connecting to and pinging MongoDB.")
	cmd.Flags().Int("connect-retries", defaultConnectRetries, "Retries with backoff when MongoDB cannot be reached.")
}

// AddOutputFlags adds output-related flags to the command.
func AddOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics in textfile format to this path after the run.")
	cmd.Flags().String("output-encoding", "utf-8", "Character encoding of the CSV file (e.g. utf-8, windows-1252, iso-8859-1).")
}

// AddLogFlags adds logging flags to the command.
func AddLogFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error). debug also logs driver commands.")
}

// ExactNonEmptyArgs accepts exactly len(names) positional arguments, none of them blank.
func ExactNonEmptyArgs(names ...string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(len(names))(cmd, args); err != nil {
			return fmt.Errorf("%w: expected %s", err, strings.Join(names, " "))
		}
		for i, arg := range args {
			if strings.TrimSpace(arg) == "" {
				return fmt.Errorf("argument %s must not be empty", names[i])
			}
		}
		return nil
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yairfalse/lambdaterm/internal/config"
	"github.com/yairfalse/lambdaterm/types"
)

var version = "0.1.0"

// rootOptions holds flag values shared by every command
type rootOptions struct {
	configPath string
	envFile    string
	lookup     config.LookupFunc

	logLevel     string
	apiURL       string
	instanceIDs  string
	wait         bool
	timeout      int
	pollInterval string
	publish      bool
	outputPath   string
	policyPath   string
}

func newRootCmd(stdout, stderr io.Writer, lookup config.LookupFunc) *cobra.Command {
	opts := &rootOptions{lookup: lookup}

	rootCmd := &cobra.Command{
		Use:   "lambdaterm",
		Short: "Terminate Lambda Labs Cloud instances",
		Long: `lambdaterm - terminate Lambda Labs Cloud instances from CI

Sends a terminate request for the instances in INSTANCE_ID, publishes the
terminated instance id to GITHUB_OUTPUT, and optionally waits until the
provider reports the instance as terminated.

Running lambdaterm with no subcommand is the same as "lambdaterm terminate".

A dotenv file is read only when --env-file is given; a .env file in the
working directory is ignored otherwise. Variables already set in the
environment win over the file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.loadEnvFile()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTerminate(cmd, opts)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetVersionTemplate(`lambdaterm {{.Version}}
`)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	flags.StringVar(&opts.envFile, "env-file", "", "Path to a dotenv file layered under the environment (never loaded implicitly)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	flags.StringVar(&opts.apiURL, "api-url", "", "Provider API base URL")
	flags.StringVar(&opts.instanceIDs, "instance-ids", "", "Comma-separated instance ids (overrides INSTANCE_ID)")
	flags.BoolVar(&opts.wait, "wait", false, "Wait for the instance to reach terminated (overrides WAIT_FOR_TERMINATE)")
	flags.IntVar(&opts.timeout, "timeout", 0, "Wait budget in seconds (overrides TERMINATE_TIMEOUT)")
	flags.StringVar(&opts.pollInterval, "poll-interval", "", "Delay between status polls, e.g. 5s")
	flags.BoolVar(&opts.publish, "publish", true, "Publish instance_id to the output file (overrides PUBLISH_INSTANCE_ID)")
	flags.StringVar(&opts.outputPath, "output", "", "Output file path (overrides GITHUB_OUTPUT)")
	flags.StringVar(&opts.policyPath, "policy", "", "Rego guard evaluated before terminating")

	rootCmd.AddCommand(
		newTerminateCmd(opts),
		newStatusCmd(opts),
		newWaitCmd(opts),
	)

	return rootCmd
}

// run executes the CLI and returns the process exit code
func run(args []string, stdout, stderr io.Writer, lookup config.LookupFunc) int {
	rootCmd := newRootCmd(stdout, stderr, lookup)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())
	if err == nil {
		return 0
	}

	var perr *types.ProviderError
	if errors.As(err, &perr) {
		fmt.Fprintln(stdout, perr.Diagnostic())
	} else {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return 1
}

// loadEnvFile layers a dotenv file under the process environment.
// Real environment variables always win.
func (o *rootOptions) loadEnvFile() error {
	path := o.envFile
	if path == "" {
		return nil
	}

	values, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}

	base := o.lookup
	o.lookup = func(key string) (string, bool) {
		if v, ok := base(key); ok {
			return v, true
		}
		v, ok := values[key]
		return v, ok
	}
	return nil
}

// loadConfig builds the config from file, environment, and changed flags
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath, o.lookup)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("api-url") {
		cfg.APIURL = o.apiURL
	}
	if flags.Changed("instance-ids") {
		cfg.InstanceIDs = o.instanceIDs
	}
	if flags.Changed("wait") {
		cfg.WaitForTerminate = o.wait
	}
	if flags.Changed("timeout") {
		if o.timeout < 0 {
			return nil, &types.ConfigError{Field: "--timeout", Reason: "must not be negative"}
		}
		cfg.TerminateTimeout = secondsToDuration(o.timeout)
	}
	if flags.Changed("poll-interval") {
		d, err := parseDuration(o.pollInterval)
		if err != nil {
			return nil, &types.ConfigError{Field: "--poll-interval", Reason: err.Error()}
		}
		cfg.PollInterval = d
	}
	if flags.Changed("publish") {
		cfg.PublishInstanceID = o.publish
	}
	if flags.Changed("output") {
		cfg.OutputPath = o.outputPath
	}
	if flags.Changed("policy") {
		cfg.PolicyPath = o.policyPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

package cli

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// NewRootCommand creates the ledgerctl command tree. newJobs is called lazily
// so commands that need no Redis never dial it.
func NewRootCommand(newJobs func() *JobsCLI) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate the odyssey ledger",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newJobsCommand(newJobs), newScheduleCommand())
	return rootCmd
}

type redisEnv struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// DefaultJobs connects to the Redis named by REDIS_ADDR, REDIS_PASSWORD and REDIS_DB.
func DefaultJobs() *JobsCLI {
	var env redisEnv
	if err := envconfig.Process("", &env); err != nil {
		fmt.Fprintf(os.Stderr, "ledgerctl: %v; using defaults\n", err)
		env = redisEnv{Addr: "127.0.0.1:6379"}
	}
	return NewJobsCLI(cache.Options{Addr: env.Addr, Password: env.Password, DB: env.DB})
}

func newJobsCommand(newJobs func() *JobsCLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Enqueue and inspect background jobs",
	}

	var req TriggerRequest
	trigger := &cobra.Command{
		Use:       "trigger <depreciation|escalate|integrity>",
		Short:     "Enqueue a job now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"depreciation", "escalate", "integrity"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newJobs()
			defer c.Close()
			req.Job = args[0]
			info, err := c.Trigger(cmd.Context(), req)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return err
		},
	}
	trigger.Flags().Int64Var(&req.TenantID, "tenant", 0, "tenant id (all when omitted)")
	trigger.Flags().Int64Var(&req.CompanyID, "company", 0, "company id (all when omitted)")
	trigger.Flags().StringVar(&req.Period, "period", "", "depreciation period YYYY-MM (previous month when omitted)")
	trigger.Flags().Int64Var(&req.ActorID, "actor", jobs.SystemActorID, "user id recorded on posted entries")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := newJobs()
			defer c.Close()
			queues, err := c.InspectQueues(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, q := range queues {
				_, _ = fmt.Fprintf(out, "%-9s pending=%d active=%d scheduled=%d retry=%d\n", q.Queue, q.Pending, q.Active, q.Scheduled, q.Retry)
			}
			return nil
		},
	}

	var (
		queue string
		size  int
	)
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := newJobs()
			defer c.Close()
			tasks, err := c.ListScheduled(queue, size)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s next=%s\n", t.ID, t.Type, t.NextProcessAt.UTC().Format("2006-01-02T15:04:05Z"))
			}
			return nil
		},
	}
	scheduled.Flags().StringVar(&queue, "queue", jobs.QueueDefault, "queue name")
	scheduled.Flags().IntVar(&size, "size", 10, "page size")

	cmd.AddCommand(trigger, stats, scheduled)
	return cmd
}

func newScheduleCommand() *cobra.Command {
	var opts ScheduleOptions
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the depreciation schedule of a hypothetical asset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.Stdout = cmd.OutOrStdout()
			opts.Stderr = cmd.ErrOrStderr()
			if code := ScheduleCommand(opts); code != 0 {
				return fmt.Errorf("schedule failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Cost, "cost", "", "acquisition cost (required)")
	_ = cmd.MarkFlagRequired("cost")
	cmd.Flags().StringVar(&opts.Salvage, "salvage", "0", "salvage value")
	cmd.Flags().IntVar(&opts.LifeMonths, "life", 0, "useful life in months (required)")
	_ = cmd.MarkFlagRequired("life")
	cmd.Flags().StringVar(&opts.Method, "method", "STRAIGHT_LINE", "STRAIGHT_LINE, DECLINING_BALANCE or SUM_OF_YEARS_DIGITS")
	cmd.Flags().StringVar(&opts.Start, "start", "", "first depreciation period YYYY-MM (required)")
	_ = cmd.MarkFlagRequired("start")
	cmd.Flags().StringVar(&opts.Multiplier, "multiplier", "2", "declining balance multiplier")
	cmd.Flags().Int32Var(&opts.Scale, "scale", 2, "currency minor-unit scale")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "print JSON")
	return cmd
}

package cmd

import (
	"fmt"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tikuhub/qbank/internal/model"
)

func JobsCmd() *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and drive the generation queue",
	}

	jobsCmd.AddCommand(jobsListCmd())
	jobsCmd.AddCommand(jobsStatsCmd())
	jobsCmd.AddCommand(jobsRunOnceCmd())
	jobsCmd.AddCommand(jobsRecoverCmd())

	return jobsCmd
}

func jobsListCmd() *cobra.Command {
	var status string
	var limit int

	c := &cobra.Command{
		Use:   "list",
		Short: "List jobs in one status, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := model.JobStatus(status)
			if !s.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			jobs, err := a.JobRepository.ByStatus(cmd.Context(), s, limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSER\tQUESTIONS\tVIP\tATTEMPTS\tCREATED\tERROR")
			for _, job := range jobs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%d/%d\t%s\t%s\n",
					job.ID, job.UserID, len(job.QuestionIDs), job.IsVIP,
					job.Attempts, job.MaxAttempts,
					job.CreatedAt.Format(time.DateTime), job.ErrorMessage.V)
			}
			return tw.Flush()
		},
	}

	c.Flags().StringVar(&status, "status", string(model.JobStatusPending), "job status to list")
	c.Flags().IntVar(&limit, "limit", 50, "maximum number of jobs")
	return c
}

func jobsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count jobs per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			counts, err := a.JobRepository.CountByStatus(cmd.Context())
			if err != nil {
				return err
			}

			statuses := make([]string, 0, len(counts))
			for s := range counts {
				statuses = append(statuses, string(s))
			}
			slices.Sort(statuses)
			for _, s := range statuses {
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %d\n", s, counts[model.JobStatus(s)])
			}
			return nil
		},
	}
}

func jobsRunOnceCmd() *cobra.Command {
	var drain bool

	c := &cobra.Command{
		Use:   "run-once",
		Short: "Claim and run the next eligible job in this process",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ran := 0
			for {
				ok, err := a.Worker.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				ran++
				if !drain {
					break
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "jobs run: %d\n", ran)
			return nil
		},
	}

	c.Flags().BoolVar(&drain, "drain", false, "keep going until the queue is empty")
	return c
}

func jobsRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Time out jobs left running by a stopped or crashed worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Worker.RecoverStale(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "jobs recovered: %d\n", n)
			return nil
		},
	}
}

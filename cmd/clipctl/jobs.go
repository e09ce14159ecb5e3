package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/you-humble/audioclip/internal/domain"
)

var (
	serverURL    string
	submitRate   string
	waitForJob   bool
	pollInterval time.Duration
	downloadTo   string
)

var submitCmd = &cobra.Command{
	Use:   "submit URL START END",
	Short: "Submit a clip job to the ingress",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := submitRequest(args, submitRate)
		if err != nil {
			return err
		}

		c := newIngressClient(serverURL)
		jobID, err := c.submit(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), jobID)

		if !waitForJob {
			return nil
		}
		return waitAndDownload(cmd.Context(), c, jobID, cmd.OutOrStdout())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status JOB_ID",
	Short: "Print the status of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newIngressClient(serverURL)
		if waitForJob {
			return waitAndDownload(cmd.Context(), c, args[0], cmd.OutOrStdout())
		}

		st, err := c.status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), st)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel JOB_ID",
	Short: "Cancel a job that has not started storing its clip",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newIngressClient(serverURL).cancel(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), st)
	},
}

func init() {
	for _, c := range []*cobra.Command{submitCmd, statusCmd, cancelCmd} {
		c.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "ingress base url")
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{submitCmd, statusCmd} {
		c.Flags().BoolVar(&waitForJob, "wait", false, "poll until the job is terminal")
		c.Flags().DurationVar(&pollInterval, "poll", 2*time.Second, "poll interval with --wait")
		c.Flags().StringVarP(&downloadTo, "output", "o", "", "download the clip here once complete (with --wait)")
	}
	submitCmd.Flags().StringVar(&submitRate, "bitrate", "", "MP3 bitrate (default chosen by the server)")
}

func waitAndDownload(ctx context.Context, c *ingressClient, jobID string, out io.Writer) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	last := ""
	for {
		st, err := c.status(ctx, jobID)
		if err != nil {
			return err
		}
		if st.Stage != last {
			fmt.Fprintf(out, "%s: %s\n", st.State, st.Stage)
			last = st.Stage
		}

		switch st.State {
		case domain.StateComplete:
			if downloadTo == "" {
				return printJSON(out, st)
			}
			return download(ctx, c, jobID, out)
		case domain.StateFailed:
			if st.Error != nil {
				return fmt.Errorf("job failed: %s", st.Error.Error())
			}
			return fmt.Errorf("job failed")
		case domain.StateCancelled:
			return fmt.Errorf("job was cancelled")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func download(ctx context.Context, c *ingressClient, jobID string, out io.Writer) error {
	f, err := os.Create(downloadTo)
	if err != nil {
		return err
	}

	n, err := c.download(ctx, jobID, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(downloadTo)
		return err
	}

	fmt.Fprintf(out, "saved %s (%d bytes)\n", downloadTo, n)
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vietddude/txgate/internal/api"
	"github.com/vietddude/txgate/internal/core/domain"
)

var (
	watchAddr       string
	watchCommitment string
	watchTimeout    int64
	watchLogs       bool
	watchExpiry     uint64
)

var watchCmd = &cobra.Command{
	Use:   "watch <signature>",
	Short: "Stream status updates for a transaction from a running gateway",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchAddr, "addr", "localhost:50051", "gateway gRPC address")
	watchCmd.Flags().StringVar(&watchCommitment, "commitment", "", "commitment level (processed, confirmed, finalized)")
	watchCmd.Flags().Int64Var(&watchTimeout, "timeout", 0, "timeout in seconds (0 uses the server default)")
	watchCmd.Flags().BoolVar(&watchLogs, "logs", false, "include program logs with the final update")
	watchCmd.Flags().Uint64Var(&watchExpiry, "expiry-slot", 0, "last valid block height, enables dropped detection")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, conn, err := api.Dial(watchAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	stream, err := client.MonitorTransaction(ctx, &api.MonitorRequest{
		Signature:       args[0],
		CommitmentLevel: watchCommitment,
		IncludeLogs:     watchLogs,
		TimeoutSeconds:  watchTimeout,
		ExpirySlot:      watchExpiry,
	})
	if err != nil {
		return err
	}

	for {
		update, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		printUpdate(os.Stdout, update)
	}
}

func statusString(s domain.TxStatus) string {
	switch s {
	case domain.StatusFinalized, domain.StatusConfirmed:
		return color.GreenString(string(s))
	case domain.StatusProcessed:
		return color.CyanString(string(s))
	case domain.StatusTimedOut:
		return color.YellowString(string(s))
	case domain.StatusFailed, domain.StatusDropped:
		return color.RedString(string(s))
	}
	return string(s)
}

func printUpdate(w io.Writer, u *api.MonitorResponse) {
	fmt.Fprintf(w, "%-10s", statusString(u.Status))
	if u.Slot > 0 {
		fmt.Fprintf(w, " slot=%d", u.Slot)
	}
	if u.CurrentCommitment != "" {
		fmt.Fprintf(w, " commitment=%s", u.CurrentCommitment)
	}
	if u.ErrorCode != "" {
		fmt.Fprintf(w, " %s", color.RedString("%s: %s", u.ErrorCode, u.ErrorMessage))
	}
	fmt.Fprintln(w)
	for _, line := range u.Logs {
		fmt.Fprintf(w, "    %s\n", strings.TrimSpace(line))
	}
}

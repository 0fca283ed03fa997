package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/txgate/internal/infra/storage"
	"github.com/vietddude/txgate/internal/infra/storage/postgres"
)

var (
	journalLimit     int
	journalSignature string
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "List recorded submission attempts",
	RunE:  runJournal,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the submission journal migrations",
	RunE:  runMigrate,
}

func init() {
	journalCmd.Flags().IntVar(&journalLimit, "limit", 20, "number of records to show")
	journalCmd.Flags().StringVar(&journalSignature, "signature", "", "only show attempts for this signature")
	rootCmd.AddCommand(journalCmd, migrateCmd)
}

func openDB(cmd *cobra.Command) (*postgres.DB, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database.url is not configured")
	}
	return postgres.NewDB(cmd.Context(), cfg.Database)
}

func runJournal(cmd *cobra.Command, args []string) error {
	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	repo := postgres.NewJournalRepo(db)
	var records []*storage.SubmissionRecord
	if journalSignature != "" {
		records, err = repo.BySignature(ctx, journalSignature)
	} else {
		records, err = repo.Recent(ctx, journalLimit)
	}
	if err != nil {
		return fmt.Errorf("query journal: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "AT\tATTEMPT\tRESULT\tSIGNATURE\tCODE\tCERTAINTY")
	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.CreatedAt.Format(time.RFC3339), r.AttemptID, r.Result, r.Signature, r.ErrorCode, r.Certainty)
	}
	return w.Flush()
}

func runMigrate(cmd *cobra.Command, args []string) error {
	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	if err := db.Migrate(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Migrations applied")
	return nil
}

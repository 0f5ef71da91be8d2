package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"go-asset-sync/internal/database"
	"go-asset-sync/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the download journal",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().Bool("errors", false, "Show only failed downloads")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	errorsOnly, _ := cmd.Flags().GetBool("errors")

	db, err := openJournalDB()
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := database.NewJournal(db).AllRecords()
	if err != nil {
		return fmt.Errorf("reading journal: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No downloads recorded.")
		return nil
	}

	for _, rec := range records {
		if errorsOnly && rec.Status != models.StatusError {
			continue
		}
		when := time.Unix(rec.Timestamp, 0).Local().Format("2006-01-02 15:04")
		line := fmt.Sprintf("%s  %-10s  %d %s (%s, %d files)", when, rec.Status, rec.AssetID, rec.AssetName, rec.Size, rec.FileCount)
		if rec.ErrorDetails != "" {
			line += "  - " + rec.ErrorDetails
		}
		fmt.Println(line)
	}
	return nil
}

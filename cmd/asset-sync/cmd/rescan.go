package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Rescan the library directories for asset files",
	Long: `Walks every configured library directory, matches asset folders
against the asset index by name and refreshes which files (and
therefore which sizes and LODs) are available locally.`,
	RunE: runRescan,
}

func init() {
	rootCmd.AddCommand(rescanCmd)
}

func runRescan(cmd *cobra.Command, args []string) error {
	if len(globalConfig.LibraryPaths) == 0 {
		return fmt.Errorf("no library paths configured")
	}

	idx := openAssetIndex()
	report := idx.UpdateAllLocalAssets(globalConfig.LibraryPaths)

	saveAssetIndex(idx)
	if err := reindexSearch(idx); err != nil {
		log.WithError(err).Warn("Search index update failed")
	}

	fmt.Printf("Matched %d asset folder(s).\n", report.MatchedAssets)
	if len(report.AssetsWithoutFiles) > 0 {
		fmt.Printf("%d matched folder(s) contained no usable files.\n", len(report.AssetsWithoutFiles))
	}
	for _, dir := range report.UnmatchedDirs {
		log.Debugf("Unmatched directory: %s", dir)
	}
	if len(report.UnmatchedDirs) > 0 {
		fmt.Printf("%d folder(s) did not match any known asset (run 'catalog' first to widen the index).\n", len(report.UnmatchedDirs))
	}
	return nil
}

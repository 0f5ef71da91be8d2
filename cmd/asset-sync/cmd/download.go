package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-asset-sync/internal/database"
	"go-asset-sync/internal/download"
	"go-asset-sync/internal/helpers"
	"go-asset-sync/internal/pool"
)

var downloadCmd = &cobra.Command{
	Use:   "download <asset-id> [asset-id...]",
	Short: "Download assets into the primary library",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDownload,
}

func init() {
	downloadCmd.Flags().String("size", "", "Texture size to download (defaults to the configured DefaultSize)")
	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	size, _ := cmd.Flags().GetString("size")
	if size == "" {
		size = globalConfig.DefaultSize
	}

	assetIDs := make([]int, 0, len(args))
	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid asset ID %q", arg)
		}
		assetIDs = append(assetIDs, id)
	}

	db, err := openJournalDB()
	if err != nil {
		return err
	}
	defer db.Close()

	idx := openAssetIndex()
	client := newApiClient()
	pools := pool.NewManager()
	defer pools.ShutdownAll(true)

	manager := download.NewManager(client, idx, pools, database.NewJournal(db), globalConfig)

	writer := uilive.New()
	writer.Start()
	defer writer.Stop()

	progress := func(assetID int, downloaded, total int64) bool {
		if total > 0 {
			fmt.Fprintf(writer, "Asset %d: %s / %s (%.0f%%)\n",
				assetID, helpers.BytesToSize(uint64(downloaded)), helpers.BytesToSize(uint64(total)),
				float64(downloaded)/float64(total)*100)
		} else {
			fmt.Fprintf(writer, "Asset %d: %s\n", assetID, helpers.BytesToSize(uint64(downloaded)))
		}
		return true
	}

	handles := make(map[int]*pool.Handle, len(assetIDs))
	for _, id := range assetIDs {
		handle, err := manager.QueueDownload(id, size, progress)
		if err != nil {
			log.WithError(err).Warnf("Skipping asset %d", id)
			continue
		}
		handles[id] = handle
	}

	failures := 0
	for id, handle := range handles {
		value, err := handle.Result()
		if err != nil {
			log.WithError(err).Errorf("Download task for asset %d failed", id)
			failures++
			continue
		}
		result := value.(download.Result)
		if !result.OK {
			fmt.Fprintf(writer.Bypass(), "Asset %d failed: %s\n", id, result.Error)
			failures++
			continue
		}
		fmt.Fprintf(writer.Bypass(), "Asset %d done: %d files (%s) in %s\n",
			id, result.FilesDownloaded, result.Size, result.Duration.Round(time.Millisecond))
	}

	saveAssetIndex(idx)
	if err := reindexSearch(idx); err != nil {
		log.WithError(err).Warn("Search index update failed")
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d downloads failed", failures, len(handles))
	}
	return nil
}

package cmd

import (
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-asset-sync/internal/api"
	"go-asset-sync/internal/database"
	"go-asset-sync/internal/download"
	"go-asset-sync/internal/models"
	"go-asset-sync/internal/pool"
)

var purchaseCmd = &cobra.Command{
	Use:   "purchase <asset-id>",
	Short: "Purchase an asset with credits",
	Args:  cobra.ExactArgs(1),
	RunE:  runPurchase,
}

func init() {
	rootCmd.AddCommand(purchaseCmd)
}

func runPurchase(cmd *cobra.Command, args []string) error {
	assetID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid asset ID %q", args[0])
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

	handle, err := manager.QueuePurchase(assetID)
	if err != nil {
		return err
	}
	value, err := handle.Result()
	if err != nil {
		return err
	}
	resp := value.(api.Response)
	if !resp.OK {
		if resp.Error == api.ErrAlreadyPurchased {
			log.Infof("Asset %d was already purchased", assetID)
		} else {
			return fmt.Errorf("purchase failed: %s", resp.Error)
		}
	}

	var purchase models.PurchaseResponse
	if resp.OK && resp.Decode(&purchase) == nil && purchase.Message != "" {
		fmt.Printf("Purchased asset %d: %s\n", assetID, purchase.Message)
	} else {
		fmt.Printf("Purchased asset %d.\n", assetID)
	}

	saveAssetIndex(idx)
	return nil
}

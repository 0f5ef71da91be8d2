package cmd

import (
	"fmt"
	"hash/fnv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-asset-sync/internal/api"
	"go-asset-sync/internal/assetindex"
	"go-asset-sync/internal/assets"
	"go-asset-sync/internal/models"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Fetch catalog pages into the local asset index",
	Long: `Fetches pages of the marketplace catalog (or, with --mine, the
purchased assets) and folds them into the local asset index. Progress
through the pages is remembered, so an interrupted fetch resumes where
it left off.`,
	RunE: runCatalog,
}

func init() {
	catalogCmd.Flags().String("search", "", "Search term to filter the catalog")
	catalogCmd.Flags().String("type", "", "Asset type filter (Textures, Models, HDRIs, Brushes)")
	catalogCmd.Flags().String("category", "", "Category filter")
	catalogCmd.Flags().Bool("mine", false, "Fetch the purchased assets instead of the public catalog")
	catalogCmd.Flags().Int("pages", 0, "Maximum number of pages to fetch this run (0 = all)")
	catalogCmd.Flags().Bool("restart", false, "Ignore the remembered page and start from page 1")

	viper.BindPFlag("catalog.search", catalogCmd.Flags().Lookup("search"))
	viper.BindPFlag("catalog.type", catalogCmd.Flags().Lookup("type"))
	viper.BindPFlag("catalog.category", catalogCmd.Flags().Lookup("category"))
	viper.BindPFlag("catalog.pages", catalogCmd.Flags().Lookup("pages"))

	rootCmd.AddCommand(catalogCmd)
}

// catalogQueryHash keys the persisted page cursor on everything that
// changes the result set.
func catalogQueryHash(tab, search, assetType, category string) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%s", tab, search, assetType, category)
	return fmt.Sprintf("%x", h.Sum64())
}

func runCatalog(cmd *cobra.Command, args []string) error {
	search := viper.GetString("catalog.search")
	assetType := viper.GetString("catalog.type")
	category := viper.GetString("catalog.category")
	maxPages := viper.GetInt("catalog.pages")
	mine, _ := cmd.Flags().GetBool("mine")
	restart, _ := cmd.Flags().GetBool("restart")

	tab := assetindex.TabOnline
	if mine {
		tab = assetindex.TabMyAssets
	}

	db, err := openJournalDB()
	if err != nil {
		return err
	}
	defer db.Close()

	idx := openAssetIndex()
	client := newApiClient()

	queryHash := catalogQueryHash(tab, search, assetType, category)
	page := 1
	if restart {
		if err := db.DeletePageState(queryHash); err != nil {
			log.WithError(err).Debug("No page cursor to clear")
		}
	} else {
		page, err = db.GetPageState(queryHash)
		if err != nil {
			return fmt.Errorf("reading page cursor: %w", err)
		}
	}

	if resp := client.SignalEvent("view_screen_catalog", nil); resp.Error != "" && resp.Error != api.ErrOptedOut {
		log.Debugf("Catalog view event not sent: %s", resp.Error)
	}

	var types []string
	var keyType assets.AssetType
	if assetType != "" {
		types = strings.Split(assetType, ",")
		if len(types) == 1 {
			keyType = assets.TypeFromAPI(types[0])
		}
	}

	fetched := 0
	totalAdded := 0
	for {
		params := models.AssetQueryParameters{
			Query:    search,
			Types:    types,
			Category: category,
			Page:     page,
			PerPage:  globalConfig.PageSize,
		}

		var resp api.Response
		if mine {
			resp = client.GetUserAssets(params)
		} else {
			resp = client.GetAssets(params)
		}
		if !resp.OK {
			return fmt.Errorf("fetching catalog page %d: %s", page, resp.Error)
		}

		var assetsResp models.AssetsResponse
		if err := resp.Decode(&assetsResp); err != nil {
			return fmt.Errorf("decoding catalog page %d: %w", page, err)
		}

		key := assetindex.QueryKey{
			Tab:       tab,
			Type:      keyType,
			Category:  category,
			Search:    search,
			Chunk:     page,
			ChunkSize: globalConfig.PageSize,
		}
		added := idx.PopulateAssets(key, assetsResp.Payload.Data, false)
		totalAdded += added
		fetched++
		log.Infof("Page %d/%d: %d assets indexed", page, assetsResp.Payload.LastPage, added)

		if page >= assetsResp.Payload.LastPage {
			if err := db.DeletePageState(queryHash); err != nil {
				log.WithError(err).Debug("Could not clear page cursor")
			}
			break
		}
		page++
		if err := db.SetPageState(queryHash, page); err != nil {
			log.WithError(err).Warn("Could not persist page cursor")
		}
		if maxPages > 0 && fetched >= maxPages {
			log.Infof("Stopping after %d pages, resume with the same query", fetched)
			break
		}
	}

	saveAssetIndex(idx)
	if err := reindexSearch(idx); err != nil {
		log.WithError(err).Warn("Search index update failed")
	}

	fmt.Printf("Indexed %d assets across %d page(s). %d assets known in total.\n", totalAdded, fetched, idx.NumAssets())
	return nil
}

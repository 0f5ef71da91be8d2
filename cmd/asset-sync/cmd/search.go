package cmd

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-asset-sync/index"
	"go-asset-sync/internal/assetindex"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the local asset index",
	Long: `Searches the locally indexed assets with a bleve query string.
Field-scoped queries work on the indexed fields, e.g.
'+type:Textures metal' or '+local:T chair'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().Int("limit", 20, "Maximum number of hits to show")
	searchCmd.Flags().Bool("rebuild", false, "Rebuild the search index from the asset cache first")
	rootCmd.AddCommand(searchCmd)
}

// reindexSearch rewrites every known asset into the bleve index. Shared
// by the commands that mutate the asset index.
func reindexSearch(idx *assetindex.AssetIndex) error {
	bleveIndex, err := index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
	if err != nil {
		return err
	}
	defer bleveIndex.Close()

	indexed := 0
	for _, id := range idx.AllAssetIDs() {
		asset, err := idx.LoadAsset(id)
		if err != nil {
			continue
		}
		if err := index.IndexAsset(bleveIndex, asset); err != nil {
			log.WithError(err).Warnf("Could not index asset %d for search", id)
			continue
		}
		indexed++
	}
	log.Debugf("Search index refreshed with %d assets", indexed)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	rebuild, _ := cmd.Flags().GetBool("rebuild")
	query := strings.Join(args, " ")

	if rebuild {
		if err := index.DeleteIndex(globalConfig.BleveIndexPath); err != nil {
			return fmt.Errorf("deleting search index: %w", err)
		}
		if err := reindexSearch(openAssetIndex()); err != nil {
			return fmt.Errorf("rebuilding search index: %w", err)
		}
	}

	bleveIndex, err := index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
	if err != nil {
		return err
	}
	defer bleveIndex.Close()

	results, err := index.SearchIndex(bleveIndex, query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if results.Total == 0 {
		fmt.Println("No matches.")
		return nil
	}

	fmt.Printf("%d match(es):\n", results.Total)
	for i, hit := range results.Hits {
		if i >= limit {
			fmt.Printf("... and %d more\n", int(results.Total)-limit)
			break
		}
		name, _ := hit.Fields["displayName"].(string)
		if name == "" {
			name, _ = hit.Fields["name"].(string)
		}
		assetType, _ := hit.Fields["type"].(string)
		local, _ := hit.Fields["local"].(bool)
		marker := " "
		if local {
			marker = "*"
		}
		fmt.Printf("%s %-8s %-10s %s\n", marker, hit.ID, assetType, name)
	}
	if results.Total > 0 {
		fmt.Println("(* = available locally)")
	}
	return nil
}

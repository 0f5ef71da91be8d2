package index

import (
	"fmt"
	"os"
	"strconv"

	"go-asset-sync/internal/assets"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

const defaultIndexPath = "assets.bleve"

// Item is the searchable projection of an asset. Fields are queryable
// by their lowercase JSON tag names (e.g. '+type:Textures' or
// '+categories:Metal').
type Item struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	DisplayName  string   `json:"displayName"`
	Type         string   `json:"type"`
	Categories   []string `json:"categories,omitempty"`
	Sizes        []string `json:"sizes,omitempty"`
	Workflows    []string `json:"workflows,omitempty"`
	Local        bool     `json:"local"`
	Purchased    bool     `json:"purchased"`
	Credits      int      `json:"credits,omitempty"`
	DownloadedAt int64    `json:"downloadedAt,omitempty"`
}

// ItemFromAsset flattens an asset for indexing.
func ItemFromAsset(asset *assets.AssetData) Item {
	item := Item{
		ID:           strconv.Itoa(asset.AssetID),
		Name:         asset.AssetName,
		DisplayName:  asset.DisplayName,
		Type:         string(asset.AssetType),
		Categories:   asset.Categories,
		Sizes:        asset.SizeList(),
		Workflows:    asset.WorkflowList(),
		DownloadedAt: asset.DownloadedAt,
	}
	if asset.IsLocal != nil {
		item.Local = *asset.IsLocal
	}
	if asset.IsPurchased != nil {
		item.Purchased = *asset.IsPurchased
	}
	if asset.Credits != nil {
		item.Credits = *asset.Credits
	}
	return item
}

// OpenOrCreateIndex opens the search index at indexPath, creating it on
// first use.
func OpenOrCreateIndex(indexPath string) (bleve.Index, error) {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}

	idx, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		log.Debugf("Creating new search index at %s", indexPath)
		mapping := bleve.NewIndexMapping()
		return bleve.New(indexPath, mapping)
	}
	if err != nil {
		return nil, fmt.Errorf("opening search index %s: %w", indexPath, err)
	}
	return idx, nil
}

// IndexAsset adds or updates an asset in the search index.
func IndexAsset(idx bleve.Index, asset *assets.AssetData) error {
	item := ItemFromAsset(asset)
	return idx.Index(item.ID, item)
}

// SearchIndex runs a query-string search and returns all stored fields
// of the hits.
func SearchIndex(idx bleve.Index, query string) (*bleve.SearchResult, error) {
	searchQuery := bleve.NewQueryStringQuery(query)
	request := bleve.NewSearchRequest(searchQuery)
	request.Fields = []string{"*"}
	return idx.Search(request)
}

// DeleteIndex removes the index directory so the next open rebuilds it.
func DeleteIndex(indexPath string) error {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}
	log.Debugf("Deleting search index at %s", indexPath)
	return os.RemoveAll(indexPath)
}

package models

import (
	"encoding/json"
	"net/url"
	"strconv"
)

type (
	Config struct {
		// Connection/Auth
		ApiUrl      string `toml:"ApiUrl"`
		AccessToken string `toml:"AccessToken"`

		// Paths
		LibraryPaths   []string `toml:"LibraryPaths"` // First entry is the primary (download target) library
		CachePath      string   `toml:"CachePath"`    // Gzipped JSON asset index snapshot
		JournalPath    string   `toml:"JournalPath"`  // Bitcask download journal
		BleveIndexPath string   `toml:"BleveIndexPath"`

		// Download behavior
		DefaultSize                  string `toml:"DefaultSize"`
		PreferSixteenBit             bool   `toml:"PreferSixteenBit"`
		MaxParallelAssetDownloads    int    `toml:"MaxParallelAssetDownloads"`
		MaxParallelDownloadsPerAsset int    `toml:"MaxParallelDownloadsPerAsset"`
		VerifyChecksums              bool   `toml:"VerifyChecksums"`

		// API Query Behavior
		PageSize            int  `toml:"PageSize"`
		ApiClientTimeoutSec int  `toml:"ApiClientTimeoutSec"`
		LogApiRequests      bool `toml:"LogApiRequests"`
	}

	// Api Calls and Responses

	AssetQueryParameters struct {
		Query    string   `json:"query,omitempty"`
		Types    []string `json:"types,omitempty"`
		Category string   `json:"category,omitempty"`
		Page     int      `json:"page,omitempty"`
		PerPage  int      `json:"perPage,omitempty"`
	}

	// AssetsResponse is the envelope of the catalog endpoints. Items stay
	// raw so asset construction can report per-item decode failures
	// instead of failing the whole page.
	AssetsResponse struct {
		Payload AssetsPayload `json:"payload"`
	}

	AssetsPayload struct {
		Data        []json.RawMessage `json:"data"`
		Total       int               `json:"total"`
		CurrentPage int               `json:"current_page"`
		LastPage    int               `json:"last_page"`
	}

	CategoriesResponse struct {
		Payload []Category `json:"payload"`
	}

	Category struct {
		ID       int        `json:"id"`
		Name     string     `json:"name"`
		Children []Category `json:"children,omitempty"`
	}

	// DownloadAssetRequest asks the server for a download manifest.
	// Field population depends on the asset type: textures and HDRIs send
	// workflows and map type codes, models send LOD and software choices,
	// brushes send only sizes.
	DownloadAssetRequest struct {
		Assets []DownloadAssetEntry `json:"assets"`
	}

	DownloadAssetEntry struct {
		ID        int      `json:"id"`
		Sizes     []string `json:"sizes,omitempty"`
		Workflows []string `json:"workflows,omitempty"`
		TypeCodes []string `json:"type_codes,omitempty"`
		Lods      []string `json:"lods,omitempty"`
		Softwares []string `json:"softwares,omitempty"`
	}

	// DownloadManifest is the modern direct-URL response. Legacy accounts
	// instead get a file list without URLs; each file is then resolved
	// individually via its download ID.
	DownloadManifest struct {
		Files []ManifestFile `json:"files"`
	}

	ManifestFile struct {
		DownloadID string `json:"download_id,omitempty"` // Set only on legacy manifests
		Name       string `json:"name"`
		URL        string `json:"url,omitempty"`
		SizeBytes  int64  `json:"size_bytes"`
		Checksum   string `json:"checksum,omitempty"` // blake3 hex, when the server provides one
	}

	ResolvedURLResponse struct {
		Payload struct {
			URL string `json:"url"`
		} `json:"payload"`
	}

	LoginResponse struct {
		AccessToken string `json:"access_token"`
		User        User   `json:"user"`
	}

	User struct {
		ID    int    `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	BalanceResponse struct {
		SubscriptionBalance int `json:"subscription_balance"`
		OnDemandBalance     int `json:"ondemand_balance"`
	}

	SubscriptionResponse struct {
		Plan          string `json:"plan_name"`
		CreditsPerMth int    `json:"plan_credit"`
		NextCredits   string `json:"next_subscription_renewal_date"`
		PeriodEnd     string `json:"current_term_end"`
		Paused        bool   `json:"paused"`
	}

	PurchaseResponse struct {
		Message string `json:"message"`
	}

	// Internal journal entry for each asset download attempt.
	DownloadRecord struct {
		AssetID      int    `json:"assetId"`
		AssetName    string `json:"assetName"`
		Size         string `json:"size"`
		FileCount    int    `json:"fileCount"`
		Timestamp    int64  `json:"timestamp"`
		DurationMs   int64  `json:"durationMs,omitempty"`
		Status       string `json:"status"`
		ErrorDetails string `json:"errorDetails,omitempty"`
	}
)

// Journal Status Constants
const (
	StatusPending    = "Pending"
	StatusDownloaded = "Downloaded"
	StatusError      = "Error"
	StatusCancelled  = "Cancelled"
)

// ConstructAssetsUrl builds the catalog query URL for a given endpoint
// path (assets, assets/my_assets) from query parameters.
func ConstructAssetsUrl(baseUrl, path string, params AssetQueryParameters) string {
	base := baseUrl + "/" + path
	values := url.Values{}

	if params.Query != "" {
		values.Set("search", params.Query)
	}

	for _, t := range params.Types {
		values.Add("type", t)
	}

	if params.Category != "" {
		values.Set("category", params.Category)
	}

	if params.Page > 0 {
		values.Set("page", strconv.Itoa(params.Page))
	}

	if params.PerPage > 0 {
		values.Set("perPage", strconv.Itoa(params.PerPage))
	}

	queryString := values.Encode()
	if queryString != "" {
		return base + "?" + queryString
	}
	return base
}

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-asset-sync/internal/api"
	"go-asset-sync/internal/assetindex"
	"go-asset-sync/internal/config"
	"go-asset-sync/internal/database"
	"go-asset-sync/internal/models"
)

var cfgFile string

var logApiFlag bool

var libraryPathFlag string

var apiTimeoutFlag int

var debugFlag bool

// globalConfig holds the loaded configuration, populated before any
// command runs.
var globalConfig models.Config

// globalHttpTransport is the shared HTTP transport, wrapped for API
// tracing when enabled.
var globalHttpTransport http.RoundTripper

var rootCmd = &cobra.Command{
	Use:   "asset-sync",
	Short: "Synchronize marketplace assets with a local library",
	Long: `asset-sync browses the marketplace catalog, downloads purchased
assets into a local library and keeps the local asset index in sync
with what is on disk.`,
	PersistentPreRunE: loadGlobalConfig,
}

// Execute runs the root command. Called once from main.
func Execute() {
	defer func() {
		if loggingTransport, ok := globalHttpTransport.(*api.LoggingTransport); ok && loggingTransport != nil {
			if err := loggingTransport.Close(); err != nil {
				log.WithError(err).Error("Error closing API trace file")
			}
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultConfigFile, "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&logApiFlag, "log-api", false, "Trace API requests/responses to api.log (overrides config)")
	rootCmd.PersistentFlags().StringVar(&libraryPathFlag, "library-path", "", "Primary library directory (overrides config)")
	rootCmd.PersistentFlags().IntVar(&apiTimeoutFlag, "api-timeout", -1, "API HTTP client timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
}

func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	if debugFlag {
		log.SetLevel(log.DebugLevel)
	}

	var err error
	globalConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		log.WithError(err).Warnf("Failed to load configuration from %s", cfgFile)
	}

	if cmd.Flags().Changed("log-api") {
		globalConfig.LogApiRequests = logApiFlag
	}
	if cmd.Flags().Changed("library-path") && libraryPathFlag != "" {
		// The flag's path becomes the primary library; configured ones
		// stay available for scans.
		globalConfig.LibraryPaths = append([]string{libraryPathFlag}, globalConfig.LibraryPaths...)
	}
	if cmd.Flags().Changed("api-timeout") && apiTimeoutFlag > 0 {
		globalConfig.ApiClientTimeoutSec = apiTimeoutFlag
	}

	globalHttpTransport = http.DefaultTransport
	if globalConfig.LogApiRequests {
		logFilePath := "api.log"
		if len(globalConfig.LibraryPaths) > 0 {
			if _, statErr := os.Stat(globalConfig.LibraryPaths[0]); statErr == nil {
				logFilePath = filepath.Join(globalConfig.LibraryPaths[0], logFilePath)
			}
		}
		loggingTransport, err := api.NewLoggingTransport(http.DefaultTransport, logFilePath)
		if err != nil {
			log.WithError(err).Error("Failed to initialize API tracing, continuing without it")
		} else {
			log.Infof("Tracing API traffic to %s", logFilePath)
			globalHttpTransport = loggingTransport
		}
	}
	return nil
}

// newApiClient builds the API client from the global configuration. The
// invalidation hook surfaces expired sessions to the user.
func newApiClient() *api.Client {
	httpClient := &http.Client{Transport: globalHttpTransport}
	client := api.NewClient(globalConfig.ApiUrl, httpClient, globalConfig)
	client.OnInvalidated = func() {
		log.Warn("Session expired, log in again with 'asset-sync account login'")
	}
	return client
}

// openAssetIndex loads the persisted asset index. A missing cache file
// yields an empty index.
func openAssetIndex() *assetindex.AssetIndex {
	idx := assetindex.NewAssetIndex()
	if err := idx.LoadCache(globalConfig.CachePath); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.WithError(err).Warnf("Could not load asset cache from %s, starting empty", globalConfig.CachePath)
		}
	} else {
		log.Debugf("Loaded %d assets from cache", idx.NumAssets())
	}
	return idx
}

func saveAssetIndex(idx *assetindex.AssetIndex) {
	if err := idx.SaveCache(globalConfig.CachePath); err != nil {
		log.WithError(err).Errorf("Failed to persist asset cache to %s", globalConfig.CachePath)
	}
}

// openJournalDB opens the bitcask store backing the download journal and
// page state.
func openJournalDB() (*database.DB, error) {
	db, err := database.Open(globalConfig.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("opening journal at %s: %w", globalConfig.JournalPath, err)
	}
	return db, nil
}

package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-asset-sync/internal/api"
)

// isPartialFile matches the temp naming of interrupted downloads: a
// regular asset file name with the temp suffix appended, e.g.
// "Asset_COL_4K.pngdl". The extension check keeps unrelated files whose
// names merely end in the suffix safe.
func isPartialFile(name string) bool {
	if !strings.HasSuffix(name, api.TempSuffix) {
		return false
	}
	stem := strings.TrimSuffix(name, api.TempSuffix)
	switch strings.ToLower(filepath.Ext(stem)) {
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".psd", ".exr", ".hdr",
		".fbx", ".blend", ".max", ".c4d", ".zip":
		return true
	}
	return false
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove leftover partial downloads from the library",
	Long: `Finds files with the temporary download suffix in the library
directories, left behind by interrupted downloads, and removes them.`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().Bool("dry-run", false, "List partial files without removing them")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if len(globalConfig.LibraryPaths) == 0 {
		return fmt.Errorf("no library paths configured")
	}

	removed := 0
	for _, libraryDir := range globalConfig.LibraryPaths {
		err := filepath.WalkDir(libraryDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				log.WithError(err).Debugf("Skipping unreadable path %s", path)
				return nil
			}
			if d.IsDir() || !isPartialFile(d.Name()) {
				return nil
			}
			if dryRun {
				fmt.Printf("Would remove %s\n", path)
				removed++
				return nil
			}
			if err := os.Remove(path); err != nil {
				log.WithError(err).Warnf("Could not remove %s", path)
				return nil
			}
			log.Debugf("Removed partial file %s", path)
			removed++
			return nil
		})
		if err != nil {
			return fmt.Errorf("walking %s: %w", libraryDir, err)
		}
	}

	if dryRun {
		fmt.Printf("%d partial file(s) found.\n", removed)
	} else {
		fmt.Printf("%d partial file(s) removed.\n", removed)
	}
	return nil
}

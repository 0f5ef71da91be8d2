package helpers

import (
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

// VerifyChecksum streams a file through blake3 and compares the digest
// against the hex string from the download manifest. Comparison is
// case-insensitive.
func VerifyChecksum(path string, expectedHex string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("opening file for checksum: %w", err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return false, fmt.Errorf("hashing %s: %w", path, err)
	}

	calculated := hex.EncodeToString(hasher.Sum(nil))
	expected := strings.ToLower(strings.TrimSpace(expectedHex))
	if calculated != expected {
		log.Debugf("Checksum mismatch for %s: got %s, want %s", path, calculated, expected)
		return false, nil
	}
	return true, nil
}

// BytesToSize converts a byte count into a human-readable string.
func BytesToSize(bytes uint64) string {
	sizes := []string{"B", "KB", "MB", "GB", "TB"}
	if bytes == 0 {
		return "0B"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}
	return fmt.Sprintf("%.2f%s", float64(bytes)/math.Pow(1024, float64(i)), sizes[i])
}

// ConvertToSlug converts a string into a filesystem-friendly slug.
func ConvertToSlug(str string) string {
	str = strings.ReplaceAll(str, " ", "_")
	str = strings.ReplaceAll(str, ":", "-")
	str = strings.ToLower(str)

	allowedChars := "0123456789abcdefghijklmnopqrstuvwxyz._-"

	var filtered strings.Builder
	for _, ch := range str {
		if strings.ContainsRune(allowedChars, ch) {
			filtered.WriteRune(ch)
		}
	}
	str = filtered.String()

	// The mixed-separator replacements can recreate doubled runs, so the
	// collapse passes repeat until nothing changes.
	for {
		prev := str
		for strings.Contains(str, "--") {
			str = strings.ReplaceAll(str, "--", "-")
		}
		for strings.Contains(str, "__") {
			str = strings.ReplaceAll(str, "__", "_")
		}
		str = strings.ReplaceAll(str, "-_", "-")
		str = strings.ReplaceAll(str, "_-", "-")
		if str == prev {
			break
		}
	}

	str = strings.Trim(str, "_-")

	return str
}

// CheckAndMakeDir ensures a directory exists, creating it if necessary.
func CheckAndMakeDir(dir string) bool {
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		log.WithError(err).Errorf("Error creating directory %s", dir)
		return false
	}
	return true
}

package api

// The API layer reports failures through the closed set of error strings
// below, carried in Response.Error. Callers compare against these
// constants instead of parsing Go errors; the raw cause is logged where
// it happens.
const (
	ErrConnection       = "Failed to connect to the server"
	ErrTimeout          = "Connection to the server timed out"
	ErrProxy            = "Cannot reach the server due to a proxy error"
	ErrNotAuthorized    = "Not authorized, please log in again"
	ErrNoToken          = "No access token, log in first"
	ErrLoginFailed      = "Login failed"
	ErrServer           = "Server error"
	ErrOSNoSpace        = "No space left on device"
	ErrOSNoPermission   = "Permission denied writing to disk"
	ErrOSWrite          = "Failed to write file to disk"
	ErrMissingStream    = "Download response carried no stream"
	ErrMissingURLs      = "No download URLs received"
	ErrMissingSize      = "Download response carried no size"
	ErrWrongSize        = "Downloaded file has unexpected size"
	ErrChecksum         = "Downloaded file failed checksum verification"
	ErrUserCancel       = "User cancelled the download"
	ErrNotEnoughCredits = "Not enough credits for this purchase"
	ErrAlreadyPurchased = "Asset is already purchased"
	ErrOptedOut         = "Opted out of server communication"
	ErrTooFrequent      = "Event signaled too frequently"
	ErrDecode           = "Failed to decode server response"
	ErrInternal         = "Internal error"
)

// SkipReportErrs lists error strings that are expected in normal operation
// and should not be forwarded to error reporting.
var SkipReportErrs = []string{
	ErrConnection,
	ErrTimeout,
	ErrProxy,
	ErrNotAuthorized,
	ErrNoToken,
	ErrUserCancel,
	ErrOptedOut,
	ErrTooFrequent,
}

// ShouldReport reports whether an error string warrants error reporting.
func ShouldReport(errStr string) bool {
	if errStr == "" {
		return false
	}
	for _, skip := range SkipReportErrs {
		if errStr == skip {
			return false
		}
	}
	return true
}

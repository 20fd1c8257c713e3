package i18n

// englishMessages contains all English translations.
var englishMessages = map[string]string{
	// Asset names
	"asset.music":  "music",
	"asset.lyrics": "lyrics",
	"asset.cover":  "cover",
	"asset.none":   "none",

	// Error messages
	"error.generic":         "Something went wrong. Please try again.",
	"error.cancelled":       "The operation was cancelled",
	"error.network":         "network error, check your connection",
	"error.http_status":     "server returned status %d",
	"error.filesystem":      "could not write to %s",
	"error.no_source":       "the song has no playable url",
	"error.not_applicable":  "this song has no %s",
	"error.missing_api_key": "Please configure an API key first",
	"error.empty_input":     "Enter a song link or song IDs",
	"error.unsupported":     "%s does not support %s",
	"error.transform":       "could not read results from %s",
	"error.resolve_failed":  "Resolve failed: %s",

	// Single asset results
	"ensure.revealed": "%s is already downloaded",
	"ensure.done":     "%s downloaded",
	"ensure.failed":   "Failed to download %s: %s",

	// Batch results
	"ensure_all.done":    "Downloaded: %s",
	"ensure_all.nothing": "Everything is already downloaded",
	"ensure_all.aborted": "Music download failed, nothing else was attempted: %s",
	"ensure_all.partial": "Downloaded: %s; failed: %s (%s)",

	"delete.done":    "Removed: %s",
	"delete.none":    "Nothing to remove",
	"delete.partial": "Removed: %s; could not remove: %s",

	// Search and history
	"search.no_results": "No results",
	"history.empty":     "History is empty",
	"history.cleared":   "History cleared",
}

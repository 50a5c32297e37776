package application

import "strconv"

// Cache key formats are a stable contract shared with warm-up and
// administrative tooling; changing them orphans live entries.
const (
	credentialKeyPrefix = "credential"
	quotaKeyPrefix      = "quota"
)

// CredentialKey builds the cache key for an API key snapshot.
// Example: "credential:9f86d081..."
func CredentialKey(keyHash string) string {
	return credentialKeyPrefix + ":" + keyHash
}

// QuotaKey builds the counter key for one rate limit window.
// Example: "quota:9f86d081...:1640000000"
func QuotaKey(keyHash string, windowStart int64) string {
	return quotaKeyPrefix + ":" + keyHash + ":" + strconv.FormatInt(windowStart, 10)
}

package rediskey

import "fmt"

// Key conventions shared across services.
const (
	MonetizationSettingsKey = "monetization:settings"
	CreatorSummaryPrefix    = "earnings:summary:creator"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildCreatorSummaryKey returns "earnings:summary:creator:{userID}"
func BuildCreatorSummaryKey(userID string) string {
	return NamespaceKey(CreatorSummaryPrefix, userID)
}

package rediskey

import "fmt"

const (
	RankingPrefix = "ranking"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildRankingKey returns "ranking:{awardPeriodID}"
func BuildRankingKey(awardPeriodID uint64) string {
	return NamespaceKey(RankingPrefix, fmt.Sprint(awardPeriodID))
}

// BuildRankingSummaryKey returns "ranking:{awardPeriodID}:summary"
func BuildRankingSummaryKey(awardPeriodID uint64) string {
	return NamespaceKey(BuildRankingKey(awardPeriodID), "summary")
}

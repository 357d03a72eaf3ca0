package service

const (
	questionsCacheKey = "codemeet:questions:list"
	dashboardCacheKey = "codemeet:dashboard:stats"
)

package taskname

const (
	// Ranking tasks
	RankingPeriodRun = "ranking:period:run"
	RankingRunAll    = "ranking:run:all"
)

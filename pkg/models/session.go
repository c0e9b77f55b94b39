package models

// ActiveUserCounts is the dashboard view of approximate distinct active users.
// All windows trail from now except Today, which starts at UTC midnight.
type ActiveUserCounts struct {
	Last5m  int64 `json:"last_5m"`
	Last15m int64 `json:"last_15m"`
	Last30m int64 `json:"last_30m"`
	Last1h  int64 `json:"last_1h"`
	Today   int64 `json:"today"`
	Week    int64 `json:"week"`
	Month   int64 `json:"month"`
}

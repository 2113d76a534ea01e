package models

import "time"

// UserDashboard summarises a member's activity.
type UserDashboard struct {
	Points         int           `json:"points"`
	ItemsListed    int           `json:"items_listed"`
	ActiveSwaps    int           `json:"active_swaps"`
	CompletedSwaps int           `json:"completed_swaps"`
	RecentSwaps    []SwapRequest `json:"recent_swaps"`
}

// AdminStats summarises platform activity for moderators.
type AdminStats struct {
	TotalUsers      int           `json:"total_users"`
	TotalItems      int           `json:"total_items"`
	PendingApproval int           `json:"pending_approval"`
	CompletedSwaps  int           `json:"completed_swaps"`
	System          SystemMetrics `json:"system"`
}

// SystemMetrics captures process-local counters since start.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	SwapsCompleted           uint64    `json:"swaps_completed"`
	PointsTransferred        uint64    `json:"points_transferred"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

package provider

import (
	"strconv"
	"sync"
	"time"
)

// ProviderStatus represents the health state of a provider.
type ProviderStatus int

const (
	StatusHealthy   ProviderStatus = iota // Provider is working normally
	StatusDegraded                        // Provider is slow but working
	StatusThrottled                       // Provider is rate limiting this client
)

func (s ProviderStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	default:
		return "unknown"
	}
}

// MonitorStats holds monitoring statistics for a provider.
type MonitorStats struct {
	Status            ProviderStatus `json:"status"`
	AverageLatency    time.Duration  `json:"average_latency"`
	ThrottleCount     int            `json:"throttle_count"`
	RequestsLast1Hour int            `json:"requests_last_1h"`
	RetryAfter        time.Duration  `json:"retry_after"`
}

// ProviderMonitor tracks latency and 429 responses.
type ProviderMonitor struct {
	mu sync.RWMutex

	// Response time tracking
	recentLatencies  []time.Duration
	maxLatencyWindow int

	// Throttle tracking
	throttleCount      int
	lastThrottleTime   time.Time
	retryAfterDuration time.Duration

	// Sliding window
	requestTimestamps []time.Time
	windowDuration    time.Duration

	slowResponseThreshold time.Duration

	now func() time.Time
}

// NewProviderMonitor creates a new monitor with default settings.
func NewProviderMonitor() *ProviderMonitor {
	return &ProviderMonitor{
		recentLatencies:       make([]time.Duration, 0, 100),
		maxLatencyWindow:      100,
		requestTimestamps:     make([]time.Time, 0),
		windowDuration:        time.Hour,
		slowResponseThreshold: 3 * time.Second,
		now:                   time.Now,
	}
}

// RecordRequest records a successful request with its latency.
func (pm *ProviderMonitor) RecordRequest(latency time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	now := pm.now()

	pm.recentLatencies = append(pm.recentLatencies, latency)
	if len(pm.recentLatencies) > pm.maxLatencyWindow {
		pm.recentLatencies = pm.recentLatencies[1:]
	}

	pm.requestTimestamps = append(pm.requestTimestamps, now)

	// Timestamps are appended in order, so drop the expired head.
	cutoff := now.Add(-pm.windowDuration)
	i := 0
	for i < len(pm.requestTimestamps) && !pm.requestTimestamps[i].After(cutoff) {
		i++
	}
	pm.requestTimestamps = pm.requestTimestamps[i:]
}

// RecordThrottle records a 429 response. retryAfter is the raw Retry-After
// header (delta-seconds); anything unparsable falls back to one minute.
func (pm *ProviderMonitor) RecordThrottle(retryAfter string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.lastThrottleTime = pm.now()
	pm.throttleCount++

	pm.retryAfterDuration = 60 * time.Second // Default 1min
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
		pm.retryAfterDuration = time.Duration(secs) * time.Second
	}
}

// CheckProviderStatus returns the current status of the provider.
func (pm *ProviderMonitor) CheckProviderStatus() ProviderStatus {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if pm.throttleCount > 0 && pm.now().Sub(pm.lastThrottleTime) < pm.retryAfterDuration {
		return StatusThrottled
	}

	if len(pm.recentLatencies) > 10 && pm.averageLatencyLocked() > pm.slowResponseThreshold {
		return StatusDegraded
	}

	return StatusHealthy
}

// GetRetryAfter returns remaining time before the server asked us to come back.
func (pm *ProviderMonitor) GetRetryAfter() time.Duration {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.retryAfterLocked()
}

func (pm *ProviderMonitor) retryAfterLocked() time.Duration {
	if pm.retryAfterDuration > 0 {
		remaining := pm.retryAfterDuration - pm.now().Sub(pm.lastThrottleTime)
		if remaining > 0 {
			return remaining
		}
	}
	return 0
}

// GetAverageLatency returns the average latency of recent requests.
func (pm *ProviderMonitor) GetAverageLatency() time.Duration {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.averageLatencyLocked()
}

func (pm *ProviderMonitor) averageLatencyLocked() time.Duration {
	if len(pm.recentLatencies) == 0 {
		return 0
	}

	var total time.Duration
	for _, lat := range pm.recentLatencies {
		total += lat
	}
	return total / time.Duration(len(pm.recentLatencies))
}

// GetRequestCount returns number of requests in the given duration.
func (pm *ProviderMonitor) GetRequestCount(duration time.Duration) int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	cutoff := pm.now().Add(-duration)
	count := 0
	for _, t := range pm.requestTimestamps {
		if t.After(cutoff) {
			count++
		}
	}
	return count
}

// GetStats returns current monitoring statistics.
func (pm *ProviderMonitor) GetStats() MonitorStats {
	status := pm.CheckProviderStatus()
	reqLastHour := pm.GetRequestCount(time.Hour)

	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return MonitorStats{
		Status:            status,
		AverageLatency:    pm.averageLatencyLocked(),
		ThrottleCount:     pm.throttleCount,
		RequestsLast1Hour: reqLastHour,
		RetryAfter:        pm.retryAfterLocked(),
	}
}

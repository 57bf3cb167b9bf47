package resilience

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name      string
	Status    HealthStatus
	Message   string
	LastCheck time.Time
	Latency   time.Duration
}

// HealthCheck probes one component.
type HealthCheck func(ctx context.Context) ComponentHealth

// HealthAlert is raised when a component changes status.
type HealthAlert struct {
	Component string
	Previous  HealthStatus
	Status    HealthStatus
	Message   string
	Timestamp time.Time
}

// Recovered reports whether the alert marks a return to health.
func (a HealthAlert) Recovered() bool {
	return a.Status == HealthStatusHealthy && a.Previous != HealthStatusUnknown
}

// HealthMonitorConfig holds health monitor configuration.
type HealthMonitorConfig struct {
	CheckInterval time.Duration
	CheckTimeout  time.Duration
}

// DefaultHealthMonitorConfig returns default configuration.
func DefaultHealthMonitorConfig() HealthMonitorConfig {
	return HealthMonitorConfig{
		CheckInterval: time.Minute,
		CheckTimeout:  10 * time.Second,
	}
}

// HealthMonitor runs registered checks on an interval and reports status
// transitions. A component that stays unhealthy alerts once.
type HealthMonitor struct {
	mu sync.RWMutex

	cfg        HealthMonitorConfig
	components map[string]HealthCheck
	health     map[string]ComponentHealth
	onAlert    func(HealthAlert)
	now        func() time.Time
}

// NewHealthMonitor creates a new health monitor.
func NewHealthMonitor(cfg HealthMonitorConfig) *HealthMonitor {
	def := DefaultHealthMonitorConfig()
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = def.CheckTimeout
	}
	return &HealthMonitor{
		cfg:        cfg,
		components: make(map[string]HealthCheck),
		health:     make(map[string]ComponentHealth),
		now:        time.Now,
	}
}

// RegisterComponent registers a health check for a component.
func (m *HealthMonitor) RegisterComponent(name string, check HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = check
}

// SetAlertCallback sets the callback for health alerts.
func (m *HealthMonitor) SetAlertCallback(callback func(HealthAlert)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAlert = callback
}

// Run checks every component until ctx is done.
func (m *HealthMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	m.CheckNow(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// CheckNow runs every check once and fires alerts for changed components.
func (m *HealthMonitor) CheckNow(ctx context.Context) {
	m.mu.RLock()
	components := make(map[string]HealthCheck, len(m.components))
	for k, v := range m.components {
		components[k] = v
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.CheckTimeout)
	defer cancel()

	var wg sync.WaitGroup
	results := make(chan ComponentHealth, len(components))
	for name, check := range components {
		wg.Add(1)
		go func(n string, c HealthCheck) {
			defer wg.Done()
			results <- m.runCheck(ctx, n, c)
		}(name, check)
	}
	wg.Wait()
	close(results)

	var alerts []HealthAlert
	m.mu.Lock()
	for h := range results {
		prev, seen := m.health[h.Name]
		m.health[h.Name] = h
		previous := HealthStatusUnknown
		if seen {
			previous = prev.Status
		}
		if previous == h.Status {
			continue
		}
		// First observation of a healthy component is not news.
		if !seen && h.Status == HealthStatusHealthy {
			continue
		}
		alerts = append(alerts, HealthAlert{
			Component: h.Name,
			Previous:  previous,
			Status:    h.Status,
			Message:   h.Message,
			Timestamp: h.LastCheck,
		})
	}
	onAlert := m.onAlert
	m.mu.Unlock()

	if onAlert == nil {
		return
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Component < alerts[j].Component })
	for _, a := range alerts {
		onAlert(a)
	}
}

func (m *HealthMonitor) runCheck(ctx context.Context, name string, check HealthCheck) (h ComponentHealth) {
	start := m.now()
	defer func() {
		if r := recover(); r != nil {
			h = ComponentHealth{
				Status:  HealthStatusUnhealthy,
				Message: fmt.Sprintf("health check panicked: %v", r),
			}
		}
		h.Name = name
		h.LastCheck = m.now()
		h.Latency = h.LastCheck.Sub(start)
	}()
	return check(ctx)
}

// Components returns the latest result per component, sorted by name.
func (m *HealthMonitor) Components() []ComponentHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ComponentHealth, 0, len(m.health))
	for _, h := range m.health {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Status returns the worst status across components.
func (m *HealthMonitor) Status() HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.health) == 0 {
		return HealthStatusUnknown
	}
	status := HealthStatusHealthy
	for _, h := range m.health {
		switch h.Status {
		case HealthStatusUnhealthy:
			return HealthStatusUnhealthy
		case HealthStatusDegraded, HealthStatusUnknown:
			status = HealthStatusDegraded
		}
	}
	return status
}

// StreamHealthCheck reports a price stream as unhealthy when disconnected
// and degraded when its last tick is older than maxAge.
func StreamHealthCheck(isConnected func() bool, fresh func(maxAge time.Duration) bool, maxAge time.Duration) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		if !isConnected() {
			return ComponentHealth{Status: HealthStatusUnhealthy, Message: "price stream disconnected"}
		}
		if !fresh(maxAge) {
			return ComponentHealth{Status: HealthStatusDegraded, Message: fmt.Sprintf("no ticks for %v", maxAge)}
		}
		return ComponentHealth{Status: HealthStatusHealthy, Message: "price stream connected"}
	}
}

// BreakerHealthCheck maps a circuit breaker state onto a health status.
func BreakerHealthCheck(state func() CircuitState) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		switch s := state(); s {
		case CircuitOpen:
			return ComponentHealth{Status: HealthStatusUnhealthy, Message: "circuit open, calls rejected"}
		case CircuitHalfOpen:
			return ComponentHealth{Status: HealthStatusDegraded, Message: "circuit half-open, probing"}
		default:
			return ComponentHealth{Status: HealthStatusHealthy, Message: "circuit closed"}
		}
	}
}

// DatabaseHealthCheck creates a health check for database connections.
func DatabaseHealthCheck(ping func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: HealthStatusUnhealthy, Message: fmt.Sprintf("database ping failed: %v", err)}
		}
		return ComponentHealth{Status: HealthStatusHealthy, Message: "database reachable"}
	}
}

package resilience

import (
	"context"
	"testing"
	"time"
)

func TestHealthMonitorAlertsOnTransitions(t *testing.T) {
	hm := NewHealthMonitor(HealthMonitorConfig{CheckInterval: time.Hour, CheckTimeout: time.Second})

	state := CircuitClosed
	hm.RegisterComponent("gateway", BreakerHealthCheck(func() CircuitState { return state }))

	var alerts []HealthAlert
	hm.SetAlertCallback(func(a HealthAlert) { alerts = append(alerts, a) })
	ctx := context.Background()

	hm.CheckNow(ctx)
	if len(alerts) != 0 {
		t.Fatalf("healthy first check alerted: %+v", alerts)
	}
	if hm.Status() != HealthStatusHealthy {
		t.Errorf("status = %s, want HEALTHY", hm.Status())
	}

	state = CircuitOpen
	hm.CheckNow(ctx)
	hm.CheckNow(ctx)
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1 for a sustained outage", len(alerts))
	}
	if alerts[0].Status != HealthStatusUnhealthy || alerts[0].Previous != HealthStatusHealthy {
		t.Errorf("alert = %+v", alerts[0])
	}
	if hm.Status() != HealthStatusUnhealthy {
		t.Errorf("status = %s, want UNHEALTHY", hm.Status())
	}

	state = CircuitClosed
	hm.CheckNow(ctx)
	if len(alerts) != 2 || !alerts[1].Recovered() {
		t.Fatalf("expected recovery alert, got %+v", alerts)
	}
}

func TestHealthMonitorRecoversPanickingCheck(t *testing.T) {
	hm := NewHealthMonitor(HealthMonitorConfig{})
	hm.RegisterComponent("bad", func(context.Context) ComponentHealth { panic("probe") })

	var got []HealthAlert
	hm.SetAlertCallback(func(a HealthAlert) { got = append(got, a) })
	hm.CheckNow(context.Background())

	if len(got) != 1 || got[0].Component != "bad" || got[0].Status != HealthStatusUnhealthy {
		t.Fatalf("alerts = %+v", got)
	}
	comps := hm.Components()
	if len(comps) != 1 || comps[0].Name != "bad" {
		t.Errorf("components = %+v", comps)
	}
}

func TestStreamHealthCheck(t *testing.T) {
	tests := []struct {
		name      string
		connected bool
		fresh     bool
		want      HealthStatus
	}{
		{"disconnected", false, true, HealthStatusUnhealthy},
		{"stale", true, false, HealthStatusDegraded},
		{"live", true, true, HealthStatusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := StreamHealthCheck(
				func() bool { return tt.connected },
				func(time.Duration) bool { return tt.fresh },
				time.Minute,
			)
			if got := check(context.Background()).Status; got != tt.want {
				t.Errorf("status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHealthMonitorRunStopsOnCancel(t *testing.T) {
	hm := NewHealthMonitor(HealthMonitorConfig{CheckInterval: 10 * time.Millisecond})
	calls := make(chan struct{}, 16)
	hm.RegisterComponent("db", DatabaseHealthCheck(func(context.Context) error {
		select {
		case calls <- struct{}{}:
		default:
		}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hm.Run(ctx) }()

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("check never ran")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

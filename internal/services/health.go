package services

import (
	"context"
	"runtime"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const healthCheckTimeout = 5 * time.Second

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

type HealthService struct {
	critical    map[string]HealthCheck
	nonCritical map[string]HealthCheck
	logger      *logrus.Logger

	healthCheckStatus *prometheus.GaugeVec
	lastHealthCheck   *prometheus.GaugeVec
	systemMetrics     *prometheus.GaugeVec
}

// Overall health states.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

type HealthStatus struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Services    map[string]string `json:"services"`
	Critical    []string          `json:"critical_failures,omitempty"`
	NonCritical []string          `json:"non_critical_failures,omitempty"`
	Latency     time.Duration     `json:"latency,omitempty"`
}

// NewHealthService reports unhealthy when a critical check fails and
// degraded when only non-critical ones do.
func NewHealthService(critical, nonCritical map[string]HealthCheck, reg prometheus.Registerer, logger *logrus.Logger) *HealthService {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	hs := &HealthService{
		critical:    critical,
		nonCritical: nonCritical,
		logger:      logger,
	}

	hs.healthCheckStatus = register(reg, logger, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_status",
		Help: "Health check status (1 = healthy, 0 = unhealthy)",
	}, []string{"service"}))

	hs.lastHealthCheck = register(reg, logger, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_timestamp",
		Help: "Timestamp of last health check",
	}, []string{"service"}))

	hs.systemMetrics = register(reg, logger, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "system_info",
		Help: "System information metrics",
	}, []string{"metric_type"}))

	return hs
}

func (s *HealthService) CheckHealth(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{
		Timestamp: start,
		Services:  make(map[string]string),
	}

	status.Critical = s.run(ctx, s.critical, status, logrus.ErrorLevel)
	status.NonCritical = s.run(ctx, s.nonCritical, status, logrus.WarnLevel)

	switch {
	case len(status.Critical) > 0:
		status.Status = HealthUnhealthy
	case len(status.NonCritical) > 0:
		status.Status = HealthDegraded
	default:
		status.Status = HealthHealthy
	}
	status.Latency = time.Since(start)
	return status
}

func (s *HealthService) run(ctx context.Context, checks map[string]HealthCheck, status *HealthStatus, level logrus.Level) []string {
	var failed []string
	for name, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := check(checkCtx)
		cancel()

		if err != nil {
			status.Services[name] = HealthUnhealthy
			failed = append(failed, name)
			s.logger.WithError(err).WithField("service", name).Log(level, "Dependency is unhealthy")
			s.UpdateHealthMetrics(name, false)
			continue
		}
		status.Services[name] = HealthHealthy
		s.UpdateHealthMetrics(name, true)
	}
	sort.Strings(failed)
	return failed
}

// CollectSystemMetrics samples runtime statistics until ctx is done.
func (s *HealthService) CollectSystemMetrics(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var memStats runtime.MemStats
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		runtime.ReadMemStats(&memStats)
		s.systemMetrics.WithLabelValues("memory_alloc_bytes").Set(float64(memStats.Alloc))
		s.systemMetrics.WithLabelValues("memory_sys_bytes").Set(float64(memStats.Sys))
		s.systemMetrics.WithLabelValues("goroutines_count").Set(float64(runtime.NumGoroutine()))
		s.systemMetrics.WithLabelValues("gc_runs_total").Set(float64(memStats.NumGC))
	}
}

func (s *HealthService) UpdateHealthMetrics(serviceName string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1
	}
	s.healthCheckStatus.WithLabelValues(serviceName).Set(value)
	s.lastHealthCheck.WithLabelValues(serviceName).Set(float64(time.Now().Unix()))
}

package observability

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/blackboard-backend/internal/platform/envutil"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	llmRequests *CounterVec
	llmLatency  *HistogramVec
	llmTokens   *CounterVec

	imageCalls   *CounterVec
	imageLatency *HistogramVec
	lessonPlans  *CounterVec
	lessonSteps  *HistogramVec

	playbackTransitions *CounterVec
	narrationFailures   *CounterVec
	staleCallbacks      *Counter
	activeBoards        *Gauge
	sseClients          *Gauge

	dbStats   *GaugeVec
	redisUp   *Gauge
	redisPing *Gauge

	collectors []writer
}

type writer interface {
	WritePrometheus(w io.Writer) error
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	return envutil.Duration("METRICS_SCRAPE_INTERVAL", 15*time.Second)
}

// Init builds the process-wide registry. Returns nil when METRICS_ENABLED is off;
// every method on a nil *Metrics is a no-op.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

// New builds an unregistered metrics set. Tests use it directly.
func New() *Metrics {
	m := &Metrics{
		apiRequests: NewCounterVec("bb_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"bb_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight: NewGauge("bb_api_inflight_requests", "In-flight API requests."),
		llmRequests: NewCounterVec("bb_llm_requests_total", "LLM requests by model/endpoint/status.", []string{"model", "endpoint", "status"}),
		llmLatency: NewHistogramVec(
			"bb_llm_request_duration_seconds",
			"LLM request latency in seconds by model/endpoint/status.",
			[]string{"model", "endpoint", "status"},
			[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		),
		llmTokens:  NewCounterVec("bb_llm_tokens_total", "LLM tokens by model/direction.", []string{"model", "direction"}),
		imageCalls: NewCounterVec("bb_image_generation_total", "Image generation calls by outcome.", []string{"outcome"}),
		imageLatency: NewHistogramVec(
			"bb_image_generation_duration_seconds",
			"Image generation latency in seconds by outcome.",
			[]string{"outcome"},
			[]float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		),
		lessonPlans: NewCounterVec("bb_lesson_plans_total", "Lesson plans produced by outcome.", []string{"outcome"}),
		lessonSteps: NewHistogramVec(
			"bb_lesson_plan_steps",
			"Number of steps per produced lesson plan.",
			[]string{"language"},
			[]float64{0, 1, 4, 8, 12, 15, 20, 30},
		),
		playbackTransitions: NewCounterVec("bb_playback_transitions_total", "Playback phase transitions by target phase.", []string{"phase"}),
		narrationFailures:   NewCounterVec("bb_narration_failures_total", "Narration failures by source.", []string{"source"}),
		staleCallbacks:      NewCounter("bb_playback_stale_callbacks_total", "Narration and timer callbacks dropped as stale."),
		activeBoards:        NewGauge("bb_boards_active", "Boards with a live playback controller."),
		sseClients:          NewGauge("bb_sse_clients", "Connected SSE clients."),
		dbStats:             NewGaugeVec("bb_db_pool", "Database pool stats.", []string{"stat"}),
		redisUp:             NewGauge("bb_redis_up", "Redis reachability (1 = up)."),
		redisPing:           NewGauge("bb_redis_ping_seconds", "Redis ping latency in seconds."),
	}
	m.collectors = []writer{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.imageCalls, m.imageLatency, m.lessonPlans, m.lessonSteps,
		m.playbackTransitions, m.narrationFailures, m.staleCallbacks,
		m.activeBoards, m.sseClients,
		m.dbStats, m.redisUp, m.redisPing,
	}
	return m
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range m.collectors {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	model = orUnknown(model)
	endpoint = orUnknown(endpoint)
	status = strings.TrimSpace(status)
	if status == "" {
		status = "0"
	}
	m.llmRequests.Inc(model, endpoint, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), model, endpoint, status)
	}
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), model, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), model, "output")
	}
}

// ObserveImageGeneration records one image resolution. outcome is one of
// "ok", "unavailable", "error" or "canceled".
func (m *Metrics) ObserveImageGeneration(outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	outcome = orUnknown(outcome)
	m.imageCalls.Inc(outcome)
	if dur > 0 {
		m.imageLatency.Observe(dur.Seconds(), outcome)
	}
}

func (m *Metrics) IncLessonPlan(outcome, language string, steps int) {
	if m == nil {
		return
	}
	m.lessonPlans.Inc(orUnknown(outcome))
	m.lessonSteps.Observe(float64(steps), orUnknown(language))
}

func (m *Metrics) IncPlaybackTransition(phase string) {
	if m == nil {
		return
	}
	m.playbackTransitions.Inc(orUnknown(phase))
}

func (m *Metrics) IncNarrationFailure(source string) {
	if m == nil {
		return
	}
	m.narrationFailures.Inc(orUnknown(source))
}

func (m *Metrics) IncStaleCallback() {
	if m == nil {
		return
	}
	m.staleCallbacks.Inc()
}

func (m *Metrics) SetActiveBoards(n int) {
	if m == nil {
		return
	}
	m.activeBoards.Set(float64(n))
}

func (m *Metrics) SSEClientInc() {
	if m == nil {
		return
	}
	m.sseClients.Inc()
}

func (m *Metrics) SSEClientDec() {
	if m == nil {
		return
	}
	m.sseClients.Dec()
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.dbStats.Set(float64(stats.OpenConnections), "open_connections")
				m.dbStats.Set(float64(stats.InUse), "in_use")
				m.dbStats.Set(float64(stats.Idle), "idle")
				m.dbStats.Set(float64(stats.WaitCount), "wait_count")
				m.dbStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return s
}

package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-assets/types"
	"github.com/saiset-co/sai-assets/utils"
)

type PrometheusConfig struct {
	Path            string            `yaml:"path" json:"path"`
	Namespace       string            `yaml:"namespace" json:"namespace"`
	Subsystem       string            `yaml:"subsystem" json:"subsystem"`
	Labels          map[string]string `yaml:"labels" json:"labels"`
	EnableGoMetrics bool              `yaml:"enable_go_metrics" json:"enable_go_metrics"`
}

type PrometheusMetrics struct {
	logger     types.Logger
	config     *PrometheusConfig
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	mu         sync.Mutex
	running    int32
}

func NewPrometheusMetrics(logger types.Logger, config *types.MetricsConfig) (*PrometheusMetrics, error) {
	promConfig := &PrometheusConfig{
		Path:            "/metrics",
		Namespace:       "sai_assets",
		Labels:          make(map[string]string),
		EnableGoMetrics: true,
	}

	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, promConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal prometheus config")
		}
	}

	for key, value := range config.Labels {
		if promConfig.Labels == nil {
			promConfig.Labels = make(map[string]string)
		}
		promConfig.Labels[key] = value
	}

	registry := prometheus.NewRegistry()
	if promConfig.EnableGoMetrics {
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	metrics := &PrometheusMetrics{
		logger:     logger,
		config:     promConfig,
		registry:   registry,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}

	logger.Info("Prometheus metrics initialized",
		zap.String("namespace", promConfig.Namespace),
		zap.String("subsystem", promConfig.Subsystem),
		zap.Bool("go_metrics", promConfig.EnableGoMetrics))

	return metrics, nil
}

func (p *PrometheusMetrics) Start() error {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	p.logger.Info("Prometheus metrics started")
	return nil
}

func (p *PrometheusMetrics) Stop() error {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return types.ErrServerNotRunning
	}

	p.logger.Info("Prometheus metrics stopped")
	return nil
}

func (p *PrometheusMetrics) IsRunning() bool {
	return atomic.LoadInt32(&p.running) == 1
}

// Registry exposes the underlying registry, mainly for tests.
func (p *PrometheusMetrics) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusMetrics) Counter(name string, labels map[string]string) types.Counter {
	p.mu.Lock()
	defer p.mu.Unlock()

	counter, exists := p.counters[name]
	if !exists {
		counter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   p.config.Namespace,
				Subsystem:   p.config.Subsystem,
				Name:        name,
				Help:        fmt.Sprintf("Counter metric %s", name),
				ConstLabels: p.config.Labels,
			},
			labelNames(labels),
		)
		p.registry.MustRegister(counter)
		p.counters[name] = counter
		p.logger.Debug("Prometheus counter created", zap.String("name", name))
	}

	return &PrometheusCounter{logger: p.logger, counter: counter, labels: labels}
}

func (p *PrometheusMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	p.mu.Lock()
	defer p.mu.Unlock()

	gauge, exists := p.gauges[name]
	if !exists {
		gauge = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   p.config.Namespace,
				Subsystem:   p.config.Subsystem,
				Name:        name,
				Help:        fmt.Sprintf("Gauge metric %s", name),
				ConstLabels: p.config.Labels,
			},
			labelNames(labels),
		)
		p.registry.MustRegister(gauge)
		p.gauges[name] = gauge
		p.logger.Debug("Prometheus gauge created", zap.String("name", name))
	}

	return &PrometheusGauge{logger: p.logger, gauge: gauge, labels: labels}
}

func (p *PrometheusMetrics) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()

	histogram, exists := p.histograms[name]
	if !exists {
		if len(buckets) == 0 {
			buckets = prometheus.DefBuckets
		}
		histogram = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   p.config.Namespace,
				Subsystem:   p.config.Subsystem,
				Name:        name,
				Help:        fmt.Sprintf("Histogram metric %s", name),
				Buckets:     buckets,
				ConstLabels: p.config.Labels,
			},
			labelNames(labels),
		)
		p.registry.MustRegister(histogram)
		p.histograms[name] = histogram
		p.logger.Debug("Prometheus histogram created", zap.String("name", name))
	}

	return &PrometheusHistogram{histogram: histogram, labels: labels}
}

func (p *PrometheusMetrics) GetStats() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := types.MetricsStats{
		TotalMetrics:     len(p.counters) + len(p.gauges) + len(p.histograms),
		CounterMetrics:   len(p.counters),
		GaugeMetrics:     len(p.gauges),
		HistogramMetrics: len(p.histograms),
		LastUpdate:       time.Now(),
	}

	return utils.Marshal(stats)
}

func (p *PrometheusMetrics) RegisterRoutes(router types.HTTPRouter) {
	promHandler := promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})

	router.GET(p.config.Path, func(ctx *types.RequestCtx) {
		req, err := http.NewRequest(http.MethodGet, string(ctx.RequestURI()), nil)
		if err != nil {
			utils.CreateErrorResponse(ctx.RequestCtx)
			return
		}
		req.Header.Set("Accept", string(ctx.Request.Header.Peek("Accept")))

		promHandler.ServeHTTP(types.NewFastResponseWriter(ctx.RequestCtx), req)
	}).WithoutMiddlewares("logging", "compression").WithTimeout(5 * time.Second)
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type PrometheusCounter struct {
	logger  types.Logger
	counter *prometheus.CounterVec
	labels  map[string]string
}

func (c *PrometheusCounter) Inc() {
	c.counter.With(c.labels).Inc()
}

func (c *PrometheusCounter) Add(value float64) {
	c.counter.With(c.labels).Add(value)
}

func (c *PrometheusCounter) Get() float64 {
	metric := &dto.Metric{}
	if err := c.counter.With(c.labels).Write(metric); err != nil {
		c.logger.Error("Failed to read counter", zap.Error(err))
	}
	return metric.GetCounter().GetValue()
}

type PrometheusGauge struct {
	logger types.Logger
	gauge  *prometheus.GaugeVec
	labels map[string]string
}

func (g *PrometheusGauge) Set(value float64) {
	g.gauge.With(g.labels).Set(value)
}

func (g *PrometheusGauge) Inc() {
	g.gauge.With(g.labels).Inc()
}

func (g *PrometheusGauge) Dec() {
	g.gauge.With(g.labels).Dec()
}

func (g *PrometheusGauge) Add(value float64) {
	g.gauge.With(g.labels).Add(value)
}

func (g *PrometheusGauge) Sub(value float64) {
	g.gauge.With(g.labels).Sub(value)
}

func (g *PrometheusGauge) Get() float64 {
	metric := &dto.Metric{}
	if err := g.gauge.With(g.labels).Write(metric); err != nil {
		g.logger.Error("Failed to read gauge", zap.Error(err))
	}
	return metric.GetGauge().GetValue()
}

type PrometheusHistogram struct {
	histogram *prometheus.HistogramVec
	labels    map[string]string
}

func (h *PrometheusHistogram) Observe(value float64) {
	h.histogram.With(h.labels).Observe(value)
}

func (h *PrometheusHistogram) ObserveDuration(start time.Time) {
	h.histogram.With(h.labels).Observe(time.Since(start).Seconds())
}

func (h *PrometheusHistogram) GetCount() uint64 {
	if histogram := h.snapshot(); histogram != nil {
		return histogram.GetSampleCount()
	}
	return 0
}

func (h *PrometheusHistogram) GetSum() float64 {
	if histogram := h.snapshot(); histogram != nil {
		return histogram.GetSampleSum()
	}
	return 0
}

func (h *PrometheusHistogram) snapshot() *dto.Histogram {
	metric := &dto.Metric{}
	promMetric, ok := h.histogram.With(h.labels).(prometheus.Metric)
	if !ok {
		return nil
	}
	if err := promMetric.Write(metric); err != nil {
		return nil
	}
	return metric.GetHistogram()
}

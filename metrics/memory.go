package metrics

import (
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saiset-co/sai-assets/types"
	"github.com/saiset-co/sai-assets/utils"
)

type MemoryConfig struct {
	Path string `yaml:"path" json:"path"`
}

type MetricValue struct {
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Value  float64           `json:"value"`
	Count  uint64            `json:"count,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
}

// MemoryMetrics keeps every series in process. It serves a JSON snapshot
// instead of the Prometheus exposition format.
type MemoryMetrics struct {
	logger     types.Logger
	config     *MemoryConfig
	counters   map[string]*MemoryCounter
	gauges     map[string]*MemoryGauge
	histograms map[string]*MemoryHistogram
	mu         sync.RWMutex
	running    int32
}

func NewMemoryMetrics(logger types.Logger, config *types.MetricsConfig) (*MemoryMetrics, error) {
	memConfig := &MemoryConfig{Path: "/metrics"}

	if config != nil && config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, memConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal memory metrics config")
		}
	}

	return &MemoryMetrics{
		logger:     logger,
		config:     memConfig,
		counters:   make(map[string]*MemoryCounter),
		gauges:     make(map[string]*MemoryGauge),
		histograms: make(map[string]*MemoryHistogram),
	}, nil
}

func (m *MemoryMetrics) Start() error {
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		return types.ErrServerAlreadyRunning
	}
	return nil
}

func (m *MemoryMetrics) Stop() error {
	if !atomic.CompareAndSwapInt32(&m.running, 1, 0) {
		return types.ErrServerNotRunning
	}
	return nil
}

func (m *MemoryMetrics) IsRunning() bool {
	return atomic.LoadInt32(&m.running) == 1
}

func (m *MemoryMetrics) Counter(name string, labels map[string]string) types.Counter {
	key := seriesKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	counter, exists := m.counters[key]
	if !exists {
		counter = &MemoryCounter{name: name, labels: copyLabels(labels)}
		m.counters[key] = counter
	}
	return counter
}

func (m *MemoryMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	key := seriesKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	gauge, exists := m.gauges[key]
	if !exists {
		gauge = &MemoryGauge{name: name, labels: copyLabels(labels)}
		m.gauges[key] = gauge
	}
	return gauge
}

func (m *MemoryMetrics) Histogram(name string, _ []float64, labels map[string]string) types.Histogram {
	key := seriesKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	histogram, exists := m.histograms[key]
	if !exists {
		histogram = &MemoryHistogram{name: name, labels: copyLabels(labels)}
		m.histograms[key] = histogram
	}
	return histogram
}

func (m *MemoryMetrics) GetStats() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return utils.Marshal(types.MetricsStats{
		TotalMetrics:     len(m.counters) + len(m.gauges) + len(m.histograms),
		CounterMetrics:   len(m.counters),
		GaugeMetrics:     len(m.gauges),
		HistogramMetrics: len(m.histograms),
		LastUpdate:       time.Now(),
	})
}

func (m *MemoryMetrics) Snapshot() []MetricValue {
	m.mu.RLock()
	defer m.mu.RUnlock()

	values := make([]MetricValue, 0, len(m.counters)+len(m.gauges)+len(m.histograms))
	for _, c := range m.counters {
		values = append(values, MetricValue{Name: c.name, Type: "counter", Value: c.Get(), Labels: c.labels})
	}
	for _, g := range m.gauges {
		values = append(values, MetricValue{Name: g.name, Type: "gauge", Value: g.Get(), Labels: g.labels})
	}
	for _, h := range m.histograms {
		values = append(values, MetricValue{Name: h.name, Type: "histogram", Value: h.GetSum(), Count: h.GetCount(), Labels: h.labels})
	}

	sort.Slice(values, func(i, j int) bool {
		if values[i].Name != values[j].Name {
			return values[i].Name < values[j].Name
		}
		return seriesKey("", values[i].Labels) < seriesKey("", values[j].Labels)
	})

	return values
}

func (m *MemoryMetrics) RegisterRoutes(router types.HTTPRouter) {
	router.GET(m.config.Path, func(ctx *types.RequestCtx) {
		body, err := utils.Marshal(m.Snapshot())
		if err != nil {
			utils.CreateErrorResponse(ctx.RequestCtx)
			return
		}
		ctx.SetContentType("application/json")
		ctx.SetBody(body)
	}).WithoutMiddlewares("logging")
}

func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	return b.String()
}

func copyLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

type atomicFloat struct {
	bits uint64
}

func (f *atomicFloat) add(delta float64) {
	for {
		old := atomic.LoadUint64(&f.bits)
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(&f.bits, old, next) {
			return
		}
	}
}

func (f *atomicFloat) set(value float64) {
	atomic.StoreUint64(&f.bits, math.Float64bits(value))
}

func (f *atomicFloat) get() float64 {
	return math.Float64frombits(atomic.LoadUint64(&f.bits))
}

type MemoryCounter struct {
	name   string
	labels map[string]string
	value  atomicFloat
}

func (c *MemoryCounter) Inc() { c.value.add(1) }

func (c *MemoryCounter) Add(value float64) {
	if value < 0 {
		return
	}
	c.value.add(value)
}

func (c *MemoryCounter) Get() float64 { return c.value.get() }

type MemoryGauge struct {
	name   string
	labels map[string]string
	value  atomicFloat
}

func (g *MemoryGauge) Set(value float64) { g.value.set(value) }
func (g *MemoryGauge) Inc()              { g.value.add(1) }
func (g *MemoryGauge) Dec()              { g.value.add(-1) }
func (g *MemoryGauge) Add(value float64) { g.value.add(value) }
func (g *MemoryGauge) Sub(value float64) { g.value.add(-value) }
func (g *MemoryGauge) Get() float64      { return g.value.get() }

type MemoryHistogram struct {
	name   string
	labels map[string]string
	sum    atomicFloat
	count  uint64
}

func (h *MemoryHistogram) Observe(value float64) {
	h.sum.add(value)
	atomic.AddUint64(&h.count, 1)
}

func (h *MemoryHistogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

func (h *MemoryHistogram) GetCount() uint64 { return atomic.LoadUint64(&h.count) }
func (h *MemoryHistogram) GetSum() float64  { return h.sum.get() }

package metrics

import (
	"sync"
	"time"

	"marketfeed/logger"
)

// Metric is one feed measurement: a reconnect, a demo fallback, a venue's used
// weight. The API keeps the recent ones for /api/metrics.
type Metric struct {
	Timestamp time.Time     `json:"timestamp"`
	Component string        `json:"component"`
	Name      string        `json:"name"`
	Value     interface{}   `json:"value"`
	Type      string        `json:"type"`
	Fields    logger.Fields `json:"fields"`
}

// Numeric converts the value to a float for publishers that only take numbers.
// Durations are reported in seconds.
func (m Metric) Numeric() (float64, bool) {
	switch v := m.Value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case time.Duration:
		return v.Seconds(), true
	default:
		return 0, false
	}
}

// Sink receives every emitted metric.
type Sink func(Metric)

// SinkID identifies an attached sink. Zero is never issued.
type SinkID uint64

type sinkEntry struct {
	id   SinkID
	sink Sink
}

// sinkSet fans metrics out to sinks in attach order.
type sinkSet struct {
	mu      sync.RWMutex
	entries []sinkEntry
	lastID  SinkID
}

var sinks = &sinkSet{}

func (s *sinkSet) add(sink Sink) SinkID {
	if sink == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	s.entries = append(s.entries, sinkEntry{id: s.lastID, sink: sink})
	return s.lastID
}

func (s *sinkSet) remove(id SinkID) {
	if id == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.id == id {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			return
		}
	}
}

// deliver calls sinks outside the lock so a sink may detach itself.
func (s *sinkSet) deliver(m Metric) {
	s.mu.RLock()
	targets := make([]Sink, len(s.entries))
	for i, e := range s.entries {
		targets[i] = e.sink
	}
	s.mu.RUnlock()

	for _, sink := range targets {
		sink(m)
	}
}

func (s *sinkSet) reset() {
	s.mu.Lock()
	s.entries = nil
	s.lastID = 0
	s.mu.Unlock()
}

// AddSink attaches sink to the metric stream. A nil sink yields id 0.
func AddSink(sink Sink) SinkID {
	return sinks.add(sink)
}

// RemoveSink detaches the sink with the given id. Unknown ids are ignored.
func RemoveSink(id SinkID) {
	sinks.remove(id)
}

// recordMetric logs the metric at debug level and delivers it to the sinks.
// Metrics without a name are dropped.
func recordMetric(log *logger.Log, component, name string, value interface{}, metricType string, fields logger.Fields) (Metric, bool) {
	if name == "" {
		return Metric{}, false
	}
	if metricType == "" {
		metricType = "counter"
	}
	if log == nil {
		log = logger.GetLogger()
	}

	m := Metric{
		Timestamp: time.Now().UTC(),
		Component: component,
		Name:      name,
		Value:     value,
		Type:      metricType,
		Fields:    make(logger.Fields, len(fields)),
	}
	for k, v := range fields {
		m.Fields[k] = v
	}

	log.WithComponent(component).WithFields(m.Fields).WithFields(logger.Fields{
		"metric":      name,
		"metric_type": metricType,
		"value":       value,
	}).Debug("metric")

	sinks.deliver(m)
	return m, true
}

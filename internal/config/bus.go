package config

import "time"

// BusConfig configures the message bus and topology.
type BusConfig struct {
	// HistorySize bounds the rolling message history.
	HistorySize int `yaml:"history_size"`

	// ObserveBufferSize is the default buffer for observation-stream
	// subscribers. Slow subscribers drop, never block routing.
	ObserveBufferSize int `yaml:"observe_buffer_size"`

	// PersistQueueSize bounds the persistence work queue.
	PersistQueueSize int `yaml:"persist_queue_size"`

	// PersistDrainTimeout bounds how long StopAsync waits for the
	// persistence worker to drain.
	PersistDrainTimeout time.Duration `yaml:"persist_drain_timeout"`

	// HebbianOnDelivery applies a co-activation update on every
	// non-suppressed weighted delivery.
	HebbianOnDelivery bool `yaml:"hebbian_on_delivery"`

	// DefaultPlasticity seeds the learning rate for auto-created edges.
	DefaultPlasticity float64 `yaml:"default_plasticity"`
}

// DefaultBusConfig returns sensible defaults.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		HistorySize:         1000,
		ObserveBufferSize:   100,
		PersistQueueSize:    256,
		PersistDrainTimeout: 5 * time.Second,
		HebbianOnDelivery:   true,
		DefaultPlasticity:   0.1,
	}
}

func (c *BusConfig) applyDefaults() {
	d := DefaultBusConfig()
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	if c.ObserveBufferSize <= 0 {
		c.ObserveBufferSize = d.ObserveBufferSize
	}
	if c.PersistQueueSize <= 0 {
		c.PersistQueueSize = d.PersistQueueSize
	}
	if c.PersistDrainTimeout <= 0 {
		c.PersistDrainTimeout = d.PersistDrainTimeout
	}
	if c.DefaultPlasticity <= 0 || c.DefaultPlasticity > 1 {
		c.DefaultPlasticity = d.DefaultPlasticity
	}
}

package outbox

import "time"

// Config tunes debouncing and the retry policy.
type Config struct {
	Debounce      time.Duration `yaml:"debounce"`
	MaxAttempts   int           `yaml:"max_attempts"`
	BaseBackoff   time.Duration `yaml:"base_backoff"`
	MaxBackoff    time.Duration `yaml:"max_backoff"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	CallTimeout   time.Duration `yaml:"call_timeout"`
	BatchSize     int           `yaml:"batch_size"`
	LockTTL       time.Duration `yaml:"lock_ttl"`
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		Debounce:      300 * time.Millisecond,
		MaxAttempts:   8,
		BaseBackoff:   time.Second,
		MaxBackoff:    5 * time.Minute,
		RetryInterval: time.Second,
		CallTimeout:   10 * time.Second,
		BatchSize:     50,
		LockTTL:       30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Debounce < 0 {
		c.Debounce = 0
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = d.RetryInterval
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.LockTTL <= 0 {
		c.LockTTL = d.LockTTL
	}
	return c
}

// backoff is the delay before retry number attempts+1: BaseBackoff doubled per
// failed attempt, capped at MaxBackoff.
func (c Config) backoff(attempts int) time.Duration {
	d := c.BaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return min(d, c.MaxBackoff)
}

package execution

import "time"

// Config tunes polling and timeouts.
type Config struct {
	// PollInterval is the delay between a status response and the next request.
	PollInterval time.Duration `yaml:"poll_interval"`
	// MaxPollFailures is the number of consecutive failed status checks after
	// which the execution is marked as failed.
	MaxPollFailures int `yaml:"max_poll_failures"`
	// Timeout bounds a whole execution. A negative value disables it.
	Timeout time.Duration `yaml:"timeout"`
	// CallTimeout bounds a single call to the job service. A negative value disables it.
	CallTimeout time.Duration `yaml:"call_timeout"`
	// ClaimTimeout bounds the wait for a distributed claim.
	ClaimTimeout time.Duration `yaml:"claim_timeout"`
	// LockTTL is the expiry of a distributed claim. Defaults to Timeout plus a minute.
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		PollInterval:    2 * time.Second,
		MaxPollFailures: 3,
		Timeout:         10 * time.Minute,
		CallTimeout:     30 * time.Second,
		ClaimTimeout:    2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxPollFailures <= 0 {
		c.MaxPollFailures = d.MaxPollFailures
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = d.CallTimeout
	}
	if c.ClaimTimeout <= 0 {
		c.ClaimTimeout = d.ClaimTimeout
	}
	return c
}

func (c Config) lockTTL() time.Duration {
	if c.LockTTL > 0 {
		return c.LockTTL
	}
	if c.Timeout > 0 {
		return c.Timeout + time.Minute
	}
	return time.Hour
}

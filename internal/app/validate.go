package app

import (
	"fmt"
	"time"

	"echoclub/pkg/config"
)

// validateConfig checks the effective config early so the process fails
// fast on nonsense values instead of surfacing them mid-flight.
func validateConfig(eff config.Effective) error {
	c := eff.Config
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Security.RateLimit.RPS < 0 {
		return fmt.Errorf("rate limit rps must not be negative")
	}
	if c.Security.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit burst must not be negative")
	}
	if c.Retention.Period != "" {
		if _, err := time.ParseDuration(c.Retention.Period); err != nil {
			return fmt.Errorf("invalid retention period %q: %w", c.Retention.Period, err)
		}
	}
	if (c.Server.TLS.CertFile == "") != (c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("tls cert_file and key_file must both be set")
	}
	return nil
}

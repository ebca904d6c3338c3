package config

import (
	"fmt"
	"strings"
)

// validate validates the configuration
func validate(cfg *Config) error {
	ports := make(map[int]string)

	reflectors := []struct {
		name string
		rc   ReflectorConfig
	}{
		{"p25", cfg.Reflectors.P25.ReflectorConfig},
		{"nxdn", cfg.Reflectors.NXDN.ReflectorConfig},
		{"ysf", cfg.Reflectors.YSF.ReflectorConfig},
		{"m17", cfg.Reflectors.M17.ReflectorConfig},
	}
	for _, r := range reflectors {
		if !r.rc.Enabled {
			continue
		}
		if r.rc.Port < 0 || r.rc.Port > 65535 {
			return fmt.Errorf("reflectors.%s.port must be between 0 and 65535", r.name)
		}
		if r.rc.Port != 0 {
			if other, dup := ports[r.rc.Port]; dup {
				return fmt.Errorf("reflectors.%s.port %d already used by reflectors.%s", r.name, r.rc.Port, other)
			}
			ports[r.rc.Port] = r.name
		}
		if r.rc.Timeout < 0 {
			return fmt.Errorf("reflectors.%s.timeout must not be negative", r.name)
		}
		if r.rc.ReapInterval <= 0 {
			return fmt.Errorf("reflectors.%s.reap_interval must be positive", r.name)
		}
	}

	if nx := cfg.Reflectors.NXDN; nx.Enabled && nx.TargetGroup == 0 {
		return fmt.Errorf("reflectors.nxdn.target_group is required")
	}

	if ysf := cfg.Reflectors.YSF; ysf.Enabled && strings.TrimSpace(ysf.Name) == "" {
		return fmt.Errorf("reflectors.ysf.name is required")
	}

	if m17 := cfg.Reflectors.M17; m17.Enabled {
		if len(m17.Reflector) != 3 {
			return fmt.Errorf("reflectors.m17.reflector must be a three character designator")
		}
		for i, mod := range m17.Modules {
			if len(mod.Module) != 1 || mod.Module[0] < 'A' || mod.Module[0] > 'Z' {
				return fmt.Errorf("reflectors.m17.modules[%d]: module must be a single letter A-Z", i)
			}
		}
	}

	if cfg.Reporter.Enabled {
		if cfg.Reporter.Host == "" {
			return fmt.Errorf("reporter.host is required when reporter is enabled")
		}
		if cfg.Reporter.Port <= 0 || cfg.Reporter.Port > 65535 {
			return fmt.Errorf("reporter.port must be between 1 and 65535")
		}
	}

	if cfg.Web.Enabled {
		if cfg.Web.Port <= 0 || cfg.Web.Port > 65535 {
			return fmt.Errorf("web.port must be between 1 and 65535")
		}
		if cfg.Web.PasswordHash != "" && !strings.Contains(cfg.Web.PasswordHash, ":") {
			return fmt.Errorf("web.password_hash must have the form salt:hash")
		}
	}

	if cfg.Database.Enabled && cfg.Database.Path == "" {
		return fmt.Errorf("database.path is required when database is enabled")
	}

	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}

	return nil
}

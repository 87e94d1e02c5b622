// Package conf loads the fleet configuration file.
package conf

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultRegion is used when the file does not name one.
	DefaultRegion = "us-east-1"
	// DefaultHealthURL is probed on each instance unless overridden.
	DefaultHealthURL = "http://127.0.0.1/healthcheck"
	// DefaultHealthExpect is the exact body a healthy service answers with.
	DefaultHealthExpect = "Everything is awesome"
)

// Config is the root of the fleet configuration file.
type Config struct {
	Region       string        `yaml:"region"`
	Environments []Environment `yaml:"environments"`
}

// HealthCheck describes the instance-local liveness probe.
type HealthCheck struct {
	URL    string `yaml:"url"`
	Expect string `yaml:"expect"`
}

// Environment describes one deployable fleet. An environment is either
// legacy, serving a single fixed target group, or blue/green, serving one of
// two color target groups selected by a marker parameter.
type Environment struct {
	Name string `yaml:"name"`

	// BlueGreen selects the two-target-group topology. When set,
	// TargetGroupPrefix and ActiveColorParameter are required and
	// TargetGroup must be empty.
	BlueGreen            bool   `yaml:"blue_green"`
	TargetGroup          string `yaml:"target_group"`
	TargetGroupPrefix    string `yaml:"target_group_prefix"`
	ActiveColorParameter string `yaml:"active_color_parameter"`

	// MOTDParameter, when set, receives the update message for the
	// duration of a fleet restart.
	MOTDParameter string `yaml:"motd_parameter"`

	// ServiceUnit is the systemd unit restarted on each instance.
	ServiceUnit string `yaml:"service_unit"`

	// Protected environments refuse bulk stop unless forced.
	Protected bool `yaml:"protected"`

	Health HealthCheck `yaml:"health"`
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "conf: failed to read %s", path)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrapf(err, "conf: failed to parse %s", path)
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrapf(err, "conf: invalid configuration in %s", path)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Environment returns the named environment.
func (c *Config) Environment(name string) (Environment, error) {
	for _, env := range c.Environments {
		if env.Name == name {
			return env, nil
		}
	}
	return Environment{}, errors.Errorf("conf: unknown environment %q", name)
}

func (c *Config) validate() error {
	if len(c.Environments) == 0 {
		return errors.New("no environments defined")
	}
	seen := make(map[string]bool, len(c.Environments))
	for _, env := range c.Environments {
		if env.Name == "" {
			return errors.New("environment with no name")
		}
		if seen[env.Name] {
			return errors.Errorf("environment %q defined twice", env.Name)
		}
		seen[env.Name] = true
		if err := env.validate(); err != nil {
			return errors.Wrapf(err, "environment %q", env.Name)
		}
	}
	return nil
}

func (e Environment) validate() error {
	if e.ServiceUnit == "" {
		return errors.New("service_unit is required")
	}
	if e.BlueGreen {
		if e.TargetGroupPrefix == "" {
			return errors.New("blue_green requires target_group_prefix")
		}
		if e.ActiveColorParameter == "" {
			return errors.New("blue_green requires active_color_parameter")
		}
		if e.TargetGroup != "" {
			return errors.New("blue_green and target_group are mutually exclusive")
		}
		return nil
	}
	if e.TargetGroup == "" {
		return errors.New("target_group is required")
	}
	if e.TargetGroupPrefix != "" || e.ActiveColorParameter != "" {
		return errors.New("target_group_prefix and active_color_parameter need blue_green")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	for i := range c.Environments {
		env := &c.Environments[i]
		if env.Health.URL == "" {
			env.Health.URL = DefaultHealthURL
		}
		if env.Health.Expect == "" {
			env.Health.Expect = DefaultHealthExpect
		}
	}
}

// ServiceCommand builds the systemctl invocation for the environment's unit.
func (e Environment) ServiceCommand(verb string) []string {
	return []string{"sudo", "systemctl", verb, e.ServiceUnit}
}

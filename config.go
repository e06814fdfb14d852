package authtask

import (
	"errors"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultEventTopic         = "authtask:auth-events"
	DefaultTaskRetention      = 15 * time.Minute
	DefaultSweepInterval      = time.Minute
	DefaultEventSinkCapacity  = 256
	DefaultMaxSessionMessages = 100
)

// Config holds the runtime options of the task and correlation layer.
type Config struct {
	NodeID             string        `yaml:"node_id" json:"node_id"`
	EventTopic         string        `yaml:"event_topic" json:"event_topic"`
	TaskRetention      time.Duration `yaml:"task_retention" json:"task_retention"`
	SweepInterval      time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
	EventSinkCapacity  int           `yaml:"event_sink_capacity" json:"event_sink_capacity"`
	MaxSessionMessages int           `yaml:"max_session_messages" json:"max_session_messages"`
	// LinkExternalCredentials allows linking external credentials with the
	// user already authenticated in the session.
	LinkExternalCredentials bool `yaml:"link_external_credentials" json:"link_external_credentials"`
	// ConfigurationMode disables credential linking while the server is
	// being set up.
	ConfigurationMode bool `yaml:"configuration_mode" json:"configuration_mode"`
}

// DefaultConfig returns the built in defaults.
func DefaultConfig() Config {
	return Config{
		EventTopic:              DefaultEventTopic,
		TaskRetention:           DefaultTaskRetention,
		SweepInterval:           DefaultSweepInterval,
		EventSinkCapacity:       DefaultEventSinkCapacity,
		MaxSessionMessages:      DefaultMaxSessionMessages,
		LinkExternalCredentials: true,
	}
}

// LoadConfig reads a YAML file over DefaultConfig. A missing file yields the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read config file").
			WithMetadata(map[string]any{"path": path})
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryValidation, "failed to parse config file").
			WithMetadata(map[string]any{"path": path})
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&c,
			validation.Field(&c.EventTopic, validation.Required, validation.Length(1, 256)),
			validation.Field(&c.TaskRetention, validation.Required, validation.Min(time.Second)),
			validation.Field(&c.SweepInterval, validation.Required, validation.Min(minSweepInterval)),
			validation.Field(&c.EventSinkCapacity, validation.Required, validation.Min(1)),
			validation.Field(&c.MaxSessionMessages, validation.Required, validation.Min(1)),
		)
	}, "invalid authtask config"); err != nil {
		return err
	}
	return nil
}

// SessionOptions returns the session options implied by the config.
func (c Config) SessionOptions() []SessionOption {
	return []SessionOption{
		WithSessionEventCapacity(c.EventSinkCapacity),
		WithSessionMaxMessages(c.MaxSessionMessages),
	}
}

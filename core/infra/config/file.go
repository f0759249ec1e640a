package config

import (
	"embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robonet-io/armbridge/core/infra/schema"
)

const bridgeSchemaFile = "schema/bridge.schema.json"

//go:embed schema/*.json
var configSchemaFS embed.FS

type fileConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	MetricsAddr    string `yaml:"metrics_addr"`
	Controller     string `yaml:"controller"`
	ControllerID   string `yaml:"controller_id"`
	NatsURL        string `yaml:"nats_url"`
	RedisURL       string `yaml:"redis_url"`
	StagingDir     string `yaml:"staging_dir"`
	ProgramName    string `yaml:"program_name"`
	RemoteDir      string `yaml:"remote_dir"`
	CommandSubject string `yaml:"command_subject"`
	MastershipTTL  string `yaml:"mastership_ttl"`
}

// ApplyFile overlays settings from a YAML file onto cfg. The document is
// validated against the embedded schema before any field is applied.
func (c *Config) ApplyFile(path string) error {
	// #nosec G304 -- config path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read bridge config %s: %w", path, err)
	}
	parsed, err := parseFileConfig(data)
	if err != nil {
		return fmt.Errorf("load bridge config %s: %w", path, err)
	}
	if parsed == nil {
		return nil
	}

	apply := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	apply(&c.ListenAddr, parsed.ListenAddr)
	apply(&c.MetricsAddr, parsed.MetricsAddr)
	apply(&c.Controller, parsed.Controller)
	apply(&c.ControllerID, parsed.ControllerID)
	apply(&c.NatsURL, parsed.NatsURL)
	apply(&c.RedisURL, parsed.RedisURL)
	apply(&c.StagingDir, parsed.StagingDir)
	apply(&c.ProgramName, parsed.ProgramName)
	apply(&c.RemoteDir, parsed.RemoteDir)
	apply(&c.CommandSubject, parsed.CommandSubject)
	if parsed.MastershipTTL != "" {
		ttl, err := time.ParseDuration(parsed.MastershipTTL)
		if err != nil || ttl <= 0 {
			return fmt.Errorf("bridge config %s: invalid mastership_ttl %q", path, parsed.MastershipTTL)
		}
		c.MastershipTTL = ttl
	}
	return nil
}

func parseFileConfig(data []byte) (*fileConfig, error) {
	if len(data) == 0 {
		return nil, nil
	}
	schemaBytes, err := configSchemaFS.ReadFile(bridgeSchemaFile)
	if err != nil {
		return nil, fmt.Errorf("load bridge schema: %w", err)
	}
	var payload any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse bridge config: %w", err)
	}
	if err := schema.ValidateSchema("bridge", schemaBytes, payload); err != nil {
		return nil, err
	}
	var parsed fileConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse bridge config: %w", err)
	}
	return &parsed, nil
}

package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	defaultListenAddr    = ":8650"
	defaultMetricsAddr   = ":9095"
	defaultController    = "sim"
	defaultControllerID  = "irc5"
	defaultProgramName   = "BlockProgram"
	defaultRemoteDir     = "armbridge"
	defaultMastershipTTL = 30 * time.Second

	envListenAddr     = "ARMBRIDGE_LISTEN_ADDR"
	envMetricsAddr    = "ARMBRIDGE_METRICS_ADDR"
	envController     = "ARMBRIDGE_CONTROLLER"
	envControllerID   = "ARMBRIDGE_CONTROLLER_ID"
	envStagingDir     = "ARMBRIDGE_STAGING_DIR"
	envProgramName    = "ARMBRIDGE_PROGRAM_NAME"
	envRemoteDir      = "ARMBRIDGE_REMOTE_DIR"
	envCommandSubject = "ARMBRIDGE_COMMAND_SUBJECT"
	envConfigPath     = "ARMBRIDGE_CONFIG_PATH"
	envMastershipTTL  = "ARMBRIDGE_MASTERSHIP_TTL"
	envNATSURL        = "NATS_URL"
	envRedisURL       = "REDIS_URL"
)

// Config holds runtime configuration for the bridge.
type Config struct {
	ListenAddr  string
	MetricsAddr string

	// Controller selects the capability implementation: "sim" for the
	// in-memory simulated controller, "nats" for a physical controller
	// reached via its on-robot agent.
	Controller   string
	ControllerID string

	NatsURL  string
	RedisURL string

	StagingDir  string
	ProgramName string
	RemoteDir   string

	// CommandSubject, when set, mirrors the editor vocabulary on a NATS
	// subject for automation tooling.
	CommandSubject string

	MastershipTTL time.Duration
}

// Load returns configuration from environment variables with sane defaults,
// overlaid by the optional YAML file named in ARMBRIDGE_CONFIG_PATH.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:     envOr(envListenAddr, defaultListenAddr),
		MetricsAddr:    envOr(envMetricsAddr, defaultMetricsAddr),
		Controller:     envOr(envController, defaultController),
		ControllerID:   envOr(envControllerID, defaultControllerID),
		NatsURL:        os.Getenv(envNATSURL),
		RedisURL:       os.Getenv(envRedisURL),
		StagingDir:     envOr(envStagingDir, defaultStagingDir()),
		ProgramName:    envOr(envProgramName, defaultProgramName),
		RemoteDir:      envOr(envRemoteDir, defaultRemoteDir),
		CommandSubject: os.Getenv(envCommandSubject),
		MastershipTTL:  defaultMastershipTTL,
	}
	if raw := os.Getenv(envMastershipTTL); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			cfg.MastershipTTL = parsed
		}
	}
	if path := os.Getenv(envConfigPath); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// defaultStagingDir places staged programs under the user's documents area,
// mirroring where the original desktop bridge kept them.
func defaultStagingDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "armbridge")
	}
	return filepath.Join(home, "Documents", "armbridge")
}

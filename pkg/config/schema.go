package config

// rawConfig is the declarative file schema from spec.md §6, decoded
// by gopkg.in/yaml.v3 (the teacher's own config library). Strategy and
// middleware entries are tagged unions, keyed on their type name, and
// get a second decoding pass through github.com/mitchellh/mapstructure
// once the tag has been read (see decode.go) — the Go equivalent of
// original_source configuration.rs's TryFrom<(String, Value)> dispatch.
type rawConfig struct {
	HTTPAddress      string                   `yaml:"http_address"`
	HTTPSAddress     string                   `yaml:"https_address"`
	BackendPools     []rawBackendPool         `yaml:"backend_pools"`
	Certificates     map[string]rawCertificate `yaml:"certificates"`
	HealthInterval   rawHealthInterval        `yaml:"health_interval"`
}

type rawHealthInterval struct {
	CheckEvery int `yaml:"check_every"`
}

type rawBackendPool struct {
	Matcher      string              `yaml:"matcher" validate:"required"`
	Addresses    []string            `yaml:"addresses"`
	Schemes      []string            `yaml:"schemes" validate:"dive,oneof=HTTP HTTPS"`
	Client       *rawClient          `yaml:"client"`
	HealthConfig rawHealthConfig     `yaml:"health_config"`
	Strategy     map[string]any      `yaml:"strategy" validate:"required"`
	Middlewares  []map[string]any    `yaml:"middlewares"`
}

type rawClient struct {
	PoolIdleTimeoutSec int `yaml:"pool_idle_timeout"`
	PoolMaxIdlePerHost int `yaml:"pool_max_idle_per_host"`
}

type rawHealthConfig struct {
	SlowThresholdMs int64  `yaml:"slow_threshold" default:"300"`
	TimeoutMs       int64  `yaml:"timeout" default:"500"`
	Path            string `yaml:"path" default:"/"`
}

type rawCertificate struct {
	Kind string `yaml:"kind" validate:"required,oneof=Local ACME"`

	CertificatePath string `yaml:"certificate_path"`
	PrivateKeyPath  string `yaml:"private_key_path"`

	Staging    bool     `yaml:"staging"`
	Email      string   `yaml:"email"`
	AltNames   []string `yaml:"alt_names"`
	PersistDir string   `yaml:"persist_dir"`
}

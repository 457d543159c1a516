// Package ksictx implements the context container spec.md §5/§9
// describes as owning all mutable per-client state: the publications-
// file cache, the request-id counter, the last-error chain, and the
// trust-store handle. A Context is single-threaded by contract;
// separate goroutines must use separate Contexts (spec.md §5).
package ksictx

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/certenio/ksi-go/pkg/hashing"
)

// Duration wraps time.Duration for YAML unmarshaling, grounded on
// pkg/config.Duration's ${VAR}-friendly "5s"-style string encoding.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("ksictx: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Config is a Context's static configuration: service endpoints,
// credentials, and verification defaults. Loaded from YAML with
// ${VAR_NAME} environment substitution, same idiom as
// pkg/config.LoadAnchorConfig.
type Config struct {
	AggregatorURL      string   `yaml:"aggregator_url"`
	AggregatorUser     string   `yaml:"aggregator_user"`
	AggregatorPass     string   `yaml:"aggregator_pass"`
	ExtenderURL        string   `yaml:"extender_url"`
	ExtenderUser       string   `yaml:"extender_user"`
	ExtenderPass       string   `yaml:"extender_pass"`
	PublicationsURL    string   `yaml:"publications_url"`
	PublicationsTTL    Duration `yaml:"publications_ttl"`
	HmacAlgorithm      string   `yaml:"hmac_algorithm"`
	RequestTimeout     Duration `yaml:"request_timeout"`
	LocalAggregation   int      `yaml:"local_aggregation_level"`
	AllowExtending     bool     `yaml:"allow_extending"`
	TrustAnchorFiles   []string `yaml:"trust_anchor_files"`
	TrustAnchorDirs    []string `yaml:"trust_anchor_dirs"`
	CertConstraints    map[string]string `yaml:"cert_constraints"`
}

// HashAlgorithm resolves the configured HMAC algorithm name to its
// registry id.
func (c *Config) HashAlgorithm() (hashing.Algorithm, error) {
	switch c.HmacAlgorithm {
	case "", "SHA-256":
		return hashing.SHA256, nil
	case "SHA-384":
		return hashing.SHA384, nil
	case "SHA-512":
		return hashing.SHA512, nil
	case "SHA3-256":
		return hashing.SHA3_256, nil
	default:
		return 0, fmt.Errorf("ksictx: unknown hmac_algorithm %q", c.HmacAlgorithm)
	}
}

// applyDefaults fills in the defaults a freshly loaded Config needs
// before first use.
func (c *Config) applyDefaults() {
	if c.HmacAlgorithm == "" {
		c.HmacAlgorithm = "SHA-256"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = Duration(30 * time.Second)
	}
	if c.PublicationsTTL == 0 {
		c.PublicationsTTL = Duration(10 * time.Minute)
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
}

// LoadConfig reads a Context configuration from a YAML file, expanding
// ${VAR_NAME} environment references before parsing (spec.md §6
// deliberately leaves configuration loading to the host application;
// this is an optional loader, and no other package of the library calls
// it).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ksictx: reading config file %s: %w", path, err)
	}
	expanded := substituteEnvVars(string(data))
	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("ksictx: parsing config file %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

package dialect

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the repository descriptor handed to New. The zero value is usable:
// missing fields are filled by defaults.
type Config struct {
	// FulltextDisabled turns fulltext search off entirely.
	FulltextDisabled bool `yaml:"fulltextDisabled"`
	// FulltextAnalyzer is the text search configuration (PostgreSQL) or
	// language (SQL Server) used when an index has no analyzer of its own.
	FulltextAnalyzer string `yaml:"fulltextAnalyzer"`
	// FulltextCatalog is the SQL Server fulltext catalog name.
	FulltextCatalog string `yaml:"fulltextCatalog"`
	// ACLOptimizationsEnabled switches security filtering to the read ACL index.
	ACLOptimizationsEnabled bool `yaml:"aclOptimizationsEnabled"`
	// ReadACLMaxSize bounds the size of a precomputed read ACL, 0 for no limit.
	ReadACLMaxSize int `yaml:"readAclMaxSize"`
	// ArraySeparator joins list values on backends without array support.
	ArraySeparator string `yaml:"arraySeparator"`
	// PathOptimizationsEnabled maintains the ancestors table used by path queries.
	PathOptimizationsEnabled bool `yaml:"pathOptimizationsEnabled"`
	// ClusteringEnabled turns on database-backed cluster invalidations.
	ClusteringEnabled bool `yaml:"clusteringEnabled"`
	// ClusterNodeID identifies this node; a random id is used when empty.
	ClusterNodeID string `yaml:"clusterNodeId"`
	// Permissions granting read access, checked by security predicates.
	Permissions []string `yaml:"permissions"`
}

// DefaultPermissions are the permissions implying read access.
var DefaultPermissions = []string{"Browse", "Read", "ReadWrite", "ReadRemove", "Everything"}

const (
	defaultAnalyzer       = "english"
	defaultCatalog        = "nuxeo"
	defaultArraySeparator = "|"
)

var nameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// LoadConfig reads a YAML repository descriptor from path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("dialect: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML repository descriptor.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("dialect: parse config: %w", err)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	if c.FulltextAnalyzer == "" {
		c.FulltextAnalyzer = defaultAnalyzer
	}
	if c.FulltextCatalog == "" {
		c.FulltextCatalog = defaultCatalog
	}
	if c.ArraySeparator == "" {
		c.ArraySeparator = defaultArraySeparator
	}
	if len(c.Permissions) == 0 {
		c.Permissions = append([]string(nil), DefaultPermissions...)
	}
	return c
}

// Validate checks the names that end up inlined in generated SQL.
func (c Config) Validate() error {
	if c.FulltextAnalyzer != "" && !nameRe.MatchString(c.FulltextAnalyzer) {
		return NewConfigError("", "fulltextAnalyzer", "invalid analyzer name %q", c.FulltextAnalyzer)
	}
	if c.FulltextCatalog != "" && !nameRe.MatchString(c.FulltextCatalog) {
		return NewConfigError("", "fulltextCatalog", "invalid catalog name %q", c.FulltextCatalog)
	}
	if c.ReadACLMaxSize < 0 {
		return NewConfigError("", "readAclMaxSize", "negative size %d", c.ReadACLMaxSize)
	}
	if strings.TrimSpace(c.ArraySeparator) == "" && c.ArraySeparator != "" {
		return NewConfigError("", "arraySeparator", "separator must not be blank")
	}
	if strings.ContainsAny(c.ArraySeparator, `'"\`) {
		return NewConfigError("", "arraySeparator", "invalid separator %q", c.ArraySeparator)
	}
	for _, p := range c.Permissions {
		if !nameRe.MatchString(p) {
			return NewConfigError("", "permissions", "invalid permission name %q", p)
		}
	}
	return nil
}

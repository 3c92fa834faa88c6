package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/akam1o/cbs-volume/pkg/cbs"
	"github.com/akam1o/cbs-volume/pkg/reconciler"
)

// Identity types
const (
	IdentityRackspace = "rackspace"
	IdentityKeystone  = "keystone"
)

const (
	// RackspaceIdentityEndpoint is used when identity_type is rackspace and no endpoint is set
	RackspaceIdentityEndpoint = "https://identity.api.rackspacecloud.com/v2.0/"

	// DefaultRegion is the region used when none is configured
	DefaultRegion = "DFW"

	// credentialsSection is the INI section holding username and api_key
	credentialsSection = "rackspace_cloud"
)

// Config represents the tool configuration
type Config struct {
	// Authentication and endpoint configuration
	Auth AuthConfig `yaml:"auth"`

	// Desired volume
	Volume VolumeConfig `yaml:"volume"`
}

// AuthConfig holds identity and transport configuration
type AuthConfig struct {
	IdentityType    string    `yaml:"identity_type"`
	AuthEndpoint    string    `yaml:"auth_endpoint"`
	Username        string    `yaml:"username"`
	APIKey          string    `yaml:"api_key"`
	TenantID        string    `yaml:"tenant_id"`
	TenantName      string    `yaml:"tenant_name"`
	Region          string    `yaml:"region"`
	CredentialsFile string    `yaml:"credentials_file"`
	VerifySSL       bool      `yaml:"verify_ssl"`
	Timeout         Duration  `yaml:"timeout"`
	TLS             TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS configuration
type TLSConfig struct {
	CACertPath     string `yaml:"ca_cert_path"`
	ClientCertPath string `yaml:"client_cert_path"`
	ClientKeyPath  string `yaml:"client_key_path"`
}

// VolumeConfig holds the desired volume state
type VolumeConfig struct {
	Name        string            `yaml:"name"`
	Size        int               `yaml:"size"`
	VolumeType  string            `yaml:"volume_type"`
	Description string            `yaml:"description"`
	Metadata    map[string]string `yaml:"metadata"`
	SnapshotID  string            `yaml:"snapshot_id"`
	State       string            `yaml:"state"`
	Wait        bool              `yaml:"wait"`
	WaitTimeout int               `yaml:"wait_timeout"` // seconds
}

// Duration is a wrapper for time.Duration to support YAML unmarshaling
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	duration, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = duration
	return nil
}

// DefaultConfig returns a configuration holding every default value
func DefaultConfig() *Config {
	return &Config{
		Auth: AuthConfig{
			IdentityType: IdentityRackspace,
			Region:       DefaultRegion,
			VerifySSL:    true,
			Timeout:      Duration{30 * time.Second},
		},
		Volume: VolumeConfig{
			Size:        reconciler.MinVolumeSizeGB,
			VolumeType:  cbs.VolumeTypeSATA,
			Metadata:    map[string]string{},
			State:       string(reconciler.StatePresent),
			WaitTimeout: reconciler.DefaultWaitTimeoutSeconds,
		},
	}
}

// LoadConfig loads configuration from a file, applies RAX_* environment
// overrides and reads the credentials file. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Keys missing from the file keep their defaults
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.ApplyEnvironment(os.Getenv)

	if err := config.LoadCredentialsFile(); err != nil {
		return nil, err
	}

	if config.Volume.Metadata == nil {
		config.Volume.Metadata = map[string]string{}
	}

	return config, nil
}

// ApplyEnvironment overrides auth settings from RAX_* variables
func (c *Config) ApplyEnvironment(getenv func(string) string) {
	overrides := []struct {
		name   string
		target *string
	}{
		{"RAX_USERNAME", &c.Auth.Username},
		{"RAX_API_KEY", &c.Auth.APIKey},
		{"RAX_CREDS_FILE", &c.Auth.CredentialsFile},
		{"RAX_REGION", &c.Auth.Region},
		{"RAX_TENANT_ID", &c.Auth.TenantID},
		{"RAX_IDENTITY_TYPE", &c.Auth.IdentityType},
		{"RAX_AUTH_ENDPOINT", &c.Auth.AuthEndpoint},
	}

	for _, o := range overrides {
		if value := getenv(o.name); value != "" {
			klog.V(4).Infof("Using %s from environment", o.name)
			*o.target = value
		}
	}
}

// LoadCredentialsFile fills username and api_key, when still empty, from the
// [rackspace_cloud] section of the configured credentials file
func (c *Config) LoadCredentialsFile() error {
	if c.Auth.CredentialsFile == "" {
		return nil
	}

	path, err := expandHome(c.Auth.CredentialsFile)
	if err != nil {
		return err
	}

	file, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("failed to read credentials file: %w", err)
	}

	section, err := file.GetSection(credentialsSection)
	if err != nil {
		return fmt.Errorf("credentials file %s has no [%s] section", path, credentialsSection)
	}

	if c.Auth.Username == "" {
		c.Auth.Username = section.Key("username").String()
	}
	if c.Auth.APIKey == "" {
		c.Auth.APIKey = section.Key("api_key").String()
	}
	klog.V(2).Infof("Loaded credentials from %s", path)
	return nil
}

// Validate validates the authentication settings. Volume settings are checked
// by the reconciler so that they fail before any remote call.
func (c *Config) Validate() error {
	switch c.Auth.IdentityType {
	case IdentityRackspace:
	case IdentityKeystone:
		if c.Auth.AuthEndpoint == "" {
			return fmt.Errorf("auth.auth_endpoint is required for identity_type %q", IdentityKeystone)
		}
	default:
		return fmt.Errorf("auth.identity_type must be %q or %q, got %q", IdentityRackspace, IdentityKeystone, c.Auth.IdentityType)
	}

	if c.Auth.Region == "" {
		return fmt.Errorf("auth.region is required")
	}

	if (c.Auth.Username == "") != (c.Auth.APIKey == "") {
		return fmt.Errorf("auth.username and auth.api_key must be set together")
	}

	if c.Auth.Timeout.Duration <= 0 {
		return fmt.Errorf("auth.timeout must be positive")
	}

	if (c.Auth.TLS.ClientCertPath == "") != (c.Auth.TLS.ClientKeyPath == "") {
		return fmt.Errorf("auth.tls.client_cert_path and auth.tls.client_key_path must be set together")
	}

	return nil
}

// IdentityEndpoint returns the configured endpoint or the identity type default
func (c *Config) IdentityEndpoint() string {
	if c.Auth.AuthEndpoint != "" {
		return c.Auth.AuthEndpoint
	}
	if c.Auth.IdentityType == IdentityRackspace {
		return RackspaceIdentityEndpoint
	}
	return ""
}

// ToVolumeSpec converts to the reconciler input
func (c *Config) ToVolumeSpec() reconciler.VolumeSpec {
	metadata := make(map[string]string, len(c.Volume.Metadata))
	for k, v := range c.Volume.Metadata {
		metadata[k] = v
	}

	return reconciler.VolumeSpec{
		Name:               c.Volume.Name,
		Size:               c.Volume.Size,
		VolumeType:         c.Volume.VolumeType,
		Description:        c.Volume.Description,
		Metadata:           metadata,
		SnapshotID:         c.Volume.SnapshotID,
		State:              reconciler.DesiredState(c.Volume.State),
		Wait:               c.Volume.Wait,
		WaitTimeoutSeconds: c.Volume.WaitTimeout,
	}
}

// ToClientConfig converts to block storage client configuration
func (c *Config) ToClientConfig() *cbs.ClientConfig {
	return &cbs.ClientConfig{
		IdentityEndpoint: c.IdentityEndpoint(),
		Username:         c.Auth.Username,
		APIKey:           c.Auth.APIKey,
		TenantID:         c.Auth.TenantID,
		TenantName:       c.Auth.TenantName,
		Region:           c.Auth.Region,
		Timeout:          c.Auth.Timeout.Duration,
		APIKeyAuth:       c.Auth.IdentityType == IdentityRackspace,
		TLSConfig: &cbs.TLSConfig{
			CACertPath:     c.Auth.TLS.CACertPath,
			ClientCertPath: c.Auth.TLS.ClientCertPath,
			ClientKeyPath:  c.Auth.TLS.ClientKeyPath,
			InsecureSkip:   !c.Auth.VerifySSL,
		},
	}
}

// ParseMetadata parses "key=value,key=value" into a map
func ParseMetadata(s string) (map[string]string, error) {
	metadata := map[string]string{}
	if strings.TrimSpace(s) == "" {
		return metadata, nil
	}

	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata entry %q, expected key=value", pair)
		}
		metadata[key] = strings.TrimSpace(value)
	}
	return metadata, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

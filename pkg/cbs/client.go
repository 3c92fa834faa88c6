package cbs

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"k8s.io/klog/v2"
)

// Client is a Cloud Block Storage API client
type Client struct {
	serviceClient *gophercloud.ServiceClient
	region        string
}

// ClientConfig holds configuration for the block storage client
type ClientConfig struct {
	IdentityEndpoint string
	Username         string
	APIKey           string
	TenantID         string
	TenantName       string
	Region           string
	Timeout          time.Duration
	TLSConfig        *TLSConfig

	// APIKeyAuth authenticates with RAX-KSKEY API key credentials against an
	// identity v2 endpoint instead of sending the key as a password
	APIKeyAuth bool
}

// TLSConfig holds TLS configuration
type TLSConfig struct {
	CACertPath     string
	ClientCertPath string
	ClientKeyPath  string
	InsecureSkip   bool
}

// NewClient authenticates against the identity service and returns a client
// bound to the block storage endpoint of the configured region
func NewClient(ctx context.Context, config *ClientConfig) (*Client, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	authOpts, err := authOptions(config)
	if err != nil {
		return nil, err
	}

	provider, err := openstack.NewClient(authOpts.IdentityEndpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid identity endpoint %q: %v", ErrConfiguration, authOpts.IdentityEndpoint, err)
	}
	provider.Context = ctx

	httpClient, err := newHTTPClient(config)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build TLS config: %v", ErrConfiguration, err)
	}
	provider.HTTPClient = httpClient

	klog.V(2).Infof("Authenticating against %s", authOpts.IdentityEndpoint)
	if config.APIKeyAuth && config.APIKey != "" {
		err = authenticateAPIKey(provider, config)
	} else {
		err = openstack.Authenticate(provider, authOpts)
	}
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", mapSDKError(err))
	}

	serviceClient, err := openstack.NewBlockStorageV3(provider, gophercloud.EndpointOpts{
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: no block storage endpoint for region %q: %v", ErrConfiguration, config.Region, err)
	}
	klog.V(2).Infof("Using block storage endpoint %s", serviceClient.Endpoint)

	return newClientForService(serviceClient, config.Region), nil
}

// newClientForService wraps an already-built service client
func newClientForService(serviceClient *gophercloud.ServiceClient, region string) *Client {
	return &Client{
		serviceClient: serviceClient,
		region:        region,
	}
}

// Region returns the region the client operates in
func (c *Client) Region() string {
	return c.region
}

// authOptions builds identity options from the configuration, falling back to
// the OS_* environment when no credentials are configured
func authOptions(config *ClientConfig) (gophercloud.AuthOptions, error) {
	if config.Username == "" && config.APIKey == "" {
		opts, err := openstack.AuthOptionsFromEnv()
		if err != nil {
			return gophercloud.AuthOptions{}, fmt.Errorf("%w: no credentials configured: %v", ErrConfiguration, err)
		}
		klog.V(2).Info("Using credentials from OS_* environment")
		opts.AllowReauth = true
		if config.IdentityEndpoint != "" {
			opts.IdentityEndpoint = config.IdentityEndpoint
		}
		return opts, nil
	}

	if config.Username == "" || config.APIKey == "" {
		return gophercloud.AuthOptions{}, fmt.Errorf("%w: username and api key must be set together", ErrConfiguration)
	}
	if config.IdentityEndpoint == "" {
		return gophercloud.AuthOptions{}, fmt.Errorf("%w: identity endpoint is required", ErrConfiguration)
	}

	return gophercloud.AuthOptions{
		IdentityEndpoint: config.IdentityEndpoint,
		Username:         config.Username,
		Password:         config.APIKey,
		TenantID:         config.TenantID,
		TenantName:       config.TenantName,
		AllowReauth:      true,
	}, nil
}

// newHTTPClient builds the identity and API transport. The default transport
// is cloned so proxy settings and dial timeouts survive a custom TLS config.
func newHTTPClient(config *ClientConfig) (http.Client, error) {
	httpClient := http.Client{
		Timeout: config.Timeout,
	}

	// Configure TLS if provided
	if config.TLSConfig != nil {
		tlsConfig, err := buildTLSConfig(config.TLSConfig)
		if err != nil {
			return http.Client{}, err
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsConfig
		httpClient.Transport = transport
	}

	return httpClient, nil
}

// buildTLSConfig builds TLS configuration from file paths
func buildTLSConfig(config *TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: config.InsecureSkip,
	}

	// Load CA certificate
	if config.CACertPath != "" {
		caCert, err := os.ReadFile(config.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA cert")
		}
		tlsConfig.RootCAs = caCertPool
	}

	// Load client certificate and key
	if config.ClientCertPath != "" && config.ClientKeyPath != "" {
		cert, err := tls.LoadX509KeyPair(config.ClientCertPath, config.ClientKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert/key: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

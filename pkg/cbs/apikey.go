package cbs

import (
	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	tokens2 "github.com/gophercloud/gophercloud/openstack/identity/v2/tokens"
	"k8s.io/klog/v2"
)

// apiKeyAuthOptions is an identity v2 token request using the RAX-KSKEY
// extension, which accepts an API key where Keystone expects a password
type apiKeyAuthOptions struct {
	Username   string
	APIKey     string
	TenantID   string
	TenantName string
}

// ToTokenV2CreateMap implements tokens2.AuthOptionsBuilder
func (o apiKeyAuthOptions) ToTokenV2CreateMap() (map[string]interface{}, error) {
	auth := map[string]interface{}{
		"RAX-KSKEY:apiKeyCredentials": map[string]interface{}{
			"username": o.Username,
			"apiKey":   o.APIKey,
		},
	}
	if o.TenantID != "" {
		auth["tenantId"] = o.TenantID
	}
	if o.TenantName != "" {
		auth["tenantName"] = o.TenantName
	}
	return map[string]interface{}{"auth": auth}, nil
}

// authenticateAPIKey obtains a token with API key credentials and points the
// provider's endpoint lookup at the returned service catalog
func authenticateAPIKey(provider *gophercloud.ProviderClient, config *ClientConfig) error {
	identity, err := openstack.NewIdentityV2(provider, gophercloud.EndpointOpts{})
	if err != nil {
		return err
	}

	result := tokens2.Create(identity, apiKeyAuthOptions{
		Username:   config.Username,
		APIKey:     config.APIKey,
		TenantID:   config.TenantID,
		TenantName: config.TenantName,
	})

	token, err := result.ExtractToken()
	if err != nil {
		return err
	}
	catalog, err := result.ExtractServiceCatalog()
	if err != nil {
		return err
	}

	provider.SetToken(token.ID)
	provider.EndpointLocator = func(opts gophercloud.EndpointOpts) (string, error) {
		return openstack.V2EndpointURL(catalog, opts)
	}

	klog.V(2).Infof("Authenticated %s with an API key, token expires %s", config.Username, token.ExpiresAt)
	return nil
}

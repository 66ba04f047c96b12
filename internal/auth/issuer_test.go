package auth

import "github.com/brporter/remoteview/internal/auth/authtest"

func providerFor(iss *authtest.Issuer, name string) ProviderConfig {
	return ProviderConfig{Name: name, Issuer: iss.URL(), ClientID: authtest.ClientID}
}

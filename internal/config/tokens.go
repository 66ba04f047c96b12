package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const tokenFile = "tokens.json"

// TokenCache stores cached auth tokens.
type TokenCache struct {
	IDToken      string `json:"id_token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Issuer       string `json:"issuer"`
}

// Bearer returns the token to present to the device farm.
func (c *TokenCache) Bearer() string {
	if c.IDToken != "" {
		return c.IDToken
	}
	return c.AccessToken
}

func tokenPath() (string, error) {
	return xdg.ConfigFile(filepath.Join(appName, tokenFile))
}

// LoadTokenCache reads the cached tokens from disk.
func LoadTokenCache() (*TokenCache, error) {
	path, err := tokenPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cache TokenCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

// SaveTokenCache writes tokens to disk with restricted permissions.
func SaveTokenCache(cache *TokenCache) error {
	path, err := tokenPath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ClearTokenCache removes the cached tokens.
func ClearTokenCache() error {
	path, err := tokenPath()
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

var ErrNoDeviceEndpoint = errors.New("issuer has no device authorization endpoint")

// DevicePrompt shows the user where to approve the login.
type DevicePrompt func(*oauth2.DeviceAuthResponse)

// DeviceLogin runs the OAuth2 device authorization grant and waits until
// the user approves, denies or the code expires.
func DeviceLogin(ctx context.Context, conf *oauth2.Config, prompt DevicePrompt) (*oauth2.Token, error) {
	if conf.Endpoint.DeviceAuthURL == "" {
		return nil, ErrNoDeviceEndpoint
	}

	da, err := conf.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("request device code: %w", err)
	}
	if prompt != nil {
		prompt(da)
	}

	tok, err := conf.DeviceAccessToken(ctx, da)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			switch re.ErrorCode {
			case "expired_token":
				return nil, errors.New("device code expired, please try again")
			case "access_denied":
				return nil, errors.New("access denied by user")
			}
		}
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	return tok, nil
}

// IDToken extracts the OIDC ID token from a token response.
func IDToken(tok *oauth2.Token) string {
	if tok == nil {
		return ""
	}
	raw, _ := tok.Extra("id_token").(string)
	return raw
}

// Package oidc is the relying-party side of the OpenID Connect code flow
// against the Mozilla IAM provider.
package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

var ErrNoIDToken = errors.New("token endpoint: empty id_token")

// Tokens is the token endpoint response.
type Tokens struct {
	AccessToken string
	IDToken     string
	TokenType   string
	Expiry      time.Time
}

// UserInfo is the subset of the userinfo response used to find a profile.
type UserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

type Config struct {
	ClientID              string
	ClientSecret          string
	AuthorizationEndpoint string
	TokenEndpoint         string
	UserEndpoint          string
	RedirectURL           string
}

type Client struct {
	oauth       *oauth2.Config
	userinfoURL string
	http        *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthorizationEndpoint,
				TokenURL: cfg.TokenEndpoint,

				// client_secret in the form, as mozilla_django_oidc sends it
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userinfoURL: cfg.UserEndpoint,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) withHTTP(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

// AuthURL is where the browser is sent to log in.
func (c *Client) AuthURL(state, nonce string) string {
	return c.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("nonce", nonce))
}

// Exchange trades an authorization code for tokens.
func (c *Client) Exchange(ctx context.Context, code string) (Tokens, error) {
	tok, err := c.oauth.Exchange(c.withHTTP(ctx), code)
	if err != nil {
		return Tokens{}, fmt.Errorf("token endpoint: %w", err)
	}
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return Tokens{}, ErrNoIDToken
	}
	return Tokens{
		AccessToken: tok.AccessToken,
		IDToken:     idToken,
		TokenType:   tok.Type(),
		Expiry:      tok.Expiry,
	}, nil
}

// UserInfo fetches the claims of the access token's owner.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (UserInfo, error) {
	cli := oauth2.NewClient(c.withHTTP(ctx), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userinfoURL, nil)
	if err != nil {
		return UserInfo{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cli.Do(req)
	if err != nil {
		return UserInfo{}, fmt.Errorf("userinfo endpoint: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return UserInfo{}, fmt.Errorf("userinfo endpoint: http %d", resp.StatusCode)
	}
	var u UserInfo
	if err := json.Unmarshal(raw, &u); err != nil {
		return UserInfo{}, fmt.Errorf("userinfo endpoint: decode: %w", err)
	}
	return u, nil
}

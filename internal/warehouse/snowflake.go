package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/snowflakedb/gosnowflake"
	"golang.org/x/oauth2"

	"npisearch/internal/config"
)

// OpenSnowflake prepares a lazily connecting Snowflake handle. Authentication
// happens on the first query, so login failures surface from Execute.
func OpenSnowflake(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	sfCfg, err := snowflakeConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	connector := gosnowflake.NewConnector(gosnowflake.SnowflakeDriver{}, *sfCfg)
	return sql.OpenDB(connector), nil
}

func snowflakeConfig(ctx context.Context, cfg config.Config) (*gosnowflake.Config, error) {
	if err := cfg.Require("SNOWFLAKE_ACCOUNT", cfg.SnowflakeAccount); err != nil {
		return nil, err
	}
	if err := cfg.Require("SNOWFLAKE_USER", cfg.SnowflakeUser); err != nil {
		return nil, err
	}

	sfCfg := &gosnowflake.Config{
		Account:   cfg.SnowflakeAccount,
		User:      cfg.SnowflakeUser,
		Warehouse: cfg.SnowflakeWarehouse,
		Database:  cfg.SnowflakeDatabase,
		Schema:    cfg.SnowflakeSchema,
		Role:      cfg.SnowflakeRole,
	}

	switch cfg.SnowflakeAuthenticator {
	case "", "externalbrowser":
		sfCfg.Authenticator = gosnowflake.AuthTypeExternalBrowser
	case "snowflake", "password":
		if err := cfg.Require("SNOWFLAKE_PASSWORD", cfg.SnowflakePassword); err != nil {
			return nil, err
		}
		sfCfg.Authenticator = gosnowflake.AuthTypeSnowflake
		sfCfg.Password = cfg.SnowflakePassword
	case "oauth":
		token, err := snowflakeToken(ctx, cfg)
		if err != nil {
			return nil, err
		}
		sfCfg.Authenticator = gosnowflake.AuthTypeOAuth
		sfCfg.Token = token
	default:
		return nil, fmt.Errorf("unsupported snowflake authenticator: %s", cfg.SnowflakeAuthenticator)
	}
	return sfCfg, nil
}

// snowflakeToken exchanges the configured refresh token for an access token.
func snowflakeToken(ctx context.Context, cfg config.Config) (string, error) {
	if err := cfg.Require("SNOWFLAKE_OAUTH_CLIENT_ID", cfg.SnowflakeOAuthClientID); err != nil {
		return "", err
	}
	if err := cfg.Require("SNOWFLAKE_OAUTH_CLIENT_SECRET", cfg.SnowflakeOAuthClientSecret); err != nil {
		return "", err
	}
	if err := cfg.Require("SNOWFLAKE_OAUTH_REFRESH_TOKEN", cfg.SnowflakeOAuthRefreshToken); err != nil {
		return "", err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.SnowflakeOAuthClientID,
		ClientSecret: cfg.SnowflakeOAuthClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.SnowflakeTokenURL(),
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	tok, err := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.SnowflakeOAuthRefreshToken}).Token()
	if err != nil {
		return "", fmt.Errorf("snowflake oauth token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("snowflake oauth token: empty access token")
	}
	return tok.AccessToken, nil
}

package main

import (
	"fmt"

	"github.com/nhle/pmbridge/internal/backend"
	"github.com/nhle/pmbridge/internal/backend/github"
	"github.com/nhle/pmbridge/internal/backend/jira"
	"github.com/nhle/pmbridge/internal/credential"
	"github.com/nhle/pmbridge/internal/model"
)

// buildAdapter constructs (or fetches from the registry) the adapter for
// one configured backend, resolving its token from the system keyring.
func buildAdapter(
	reg *backend.Registry,
	cfg model.BackendConfig,
) (backend.Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return reg.Get(backend.Kind(cfg.Kind), cfg.Instance, func() (backend.Adapter, error) {
		key := cfg.CredentialKey
		if key == "" {
			key = credential.Key(cfg.Kind, cfg.Instance)
		}
		token, err := credential.Get(key)
		if err != nil {
			return nil, fmt.Errorf(
				"resolving credentials for %s/%s: %w", cfg.Kind, cfg.Instance, err,
			)
		}

		switch backend.Kind(cfg.Kind) {
		case backend.KindJira:
			return jira.New(jira.Config{
				BaseURL:  cfg.BaseURL,
				Token:    token,
				Instance: cfg.Instance,
				Projects: cfg.Projects,
			})
		case backend.KindGitHub:
			return github.New(github.Config{
				BaseURL:       cfg.BaseURL,
				GraphQLURL:    cfg.Options["graphql_url"],
				Token:         token,
				Instance:      cfg.Instance,
				WebhookSecret: cfg.WebhookSecret,
				Projects:      cfg.Projects,
			})
		default:
			return nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
		}
	})
}

// loadBackends constructs every configured adapter.
func loadBackends(
	reg *backend.Registry,
	cfg *model.Config,
) (map[string]backend.Adapter, error) {
	adapters := make(map[string]backend.Adapter, len(cfg.Backends))
	for _, bc := range cfg.Backends {
		adapter, err := buildAdapter(reg, bc)
		if err != nil {
			return nil, err
		}
		adapters[bc.Kind+"/"+bc.Instance] = adapter
	}
	return adapters, nil
}

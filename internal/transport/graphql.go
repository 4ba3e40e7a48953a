package transport

import (
	"context"
	"fmt"

	"github.com/machinebox/graphql"
)

// GraphQL is a thin wrapper around a machinebox GraphQL client that
// injects Bearer authentication on every request.
type GraphQL struct {
	gql   *graphql.Client
	token string
}

// NewGraphQL creates a GraphQL client for the given endpoint.
func NewGraphQL(endpoint, token string) *GraphQL {
	return &GraphQL{
		gql:   graphql.NewClient(endpoint),
		token: token,
	}
}

// Run executes a GraphQL query with the given variables and decodes the
// data into resp.
func (g *GraphQL) Run(
	ctx context.Context,
	query string,
	vars map[string]any,
	resp any,
) error {
	req := graphql.NewRequest(query)
	for key, value := range vars {
		req.Var(key, value)
	}
	req.Header.Set("Authorization", "Bearer "+g.token)

	if err := g.gql.Run(ctx, req, resp); err != nil {
		return fmt.Errorf("graphql query: %w", err)
	}
	return nil
}

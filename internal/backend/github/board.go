package github

import (
	"context"
	"fmt"

	"github.com/nhle/pmbridge/internal/apierr"
	"github.com/nhle/pmbridge/internal/model"
	"github.com/nhle/pmbridge/internal/paging"
)

// boardIDQuery resolves a Projects v2 board to its node id. The owner may
// be a user or an organization.
const boardIDQuery = `
query($owner: String!, $number: Int!) {
	repositoryOwner(login: $owner) {
		... on User {
			projectV2(number: $number) { id }
		}
		... on Organization {
			projectV2(number: $number) { id }
		}
	}
}`

// boardItemsQuery pages through a board's item connection. Only the
// cursor changes between pages.
const boardItemsQuery = `
query($project: ID!, $cursor: String) {
	node(id: $project) {
		... on ProjectV2 {
			items(first: 100, after: $cursor) {
				pageInfo {
					hasNextPage
					endCursor
				}
				nodes {
					id
					isArchived
					fieldValueByName(name: "Status") {
						... on ProjectV2ItemFieldSingleSelectValue {
							name
						}
					}
					content {
						__typename
						... on Issue {
							number
							title
							body
							state
							url
							createdAt
							updatedAt
							author { login }
						}
					}
				}
			}
		}
	}
}`

// boardKey is the status-mapping key for a board: "owner/#number".
func boardKey(owner string, number int) string {
	return fmt.Sprintf("%s/#%d", owner, number)
}

// boardID resolves and memoizes the node id of a Projects v2 board. The
// cache is append-only for the adapter's lifetime.
func (a *Adapter) boardID(ctx context.Context, owner string, number int) (string, error) {
	key := boardKey(owner, number)

	a.mu.RLock()
	id, ok := a.boardIDs[key]
	a.mu.RUnlock()
	if ok {
		return id, nil
	}

	var resp struct {
		RepositoryOwner *struct {
			ProjectV2 *struct {
				ID string `json:"id"`
			} `json:"projectV2"`
		} `json:"repositoryOwner"`
	}
	vars := map[string]any{"owner": owner, "number": number}
	if err := a.gql.Run(ctx, boardIDQuery, vars, &resp); err != nil {
		return "", a.translate(err)
	}
	if resp.RepositoryOwner == nil || resp.RepositoryOwner.ProjectV2 == nil {
		// GraphQL reports an absent board as a null node, not an HTTP
		// status; classify it here.
		return "", &apierr.Error{
			Kind:    apierr.KindNotFound,
			Message: fmt.Sprintf("board %s not found", key),
		}
	}

	id = resp.RepositoryOwner.ProjectV2.ID
	a.mu.Lock()
	a.boardIDs[key] = id
	a.mu.Unlock()
	return id, nil
}

// ListBoardItems lists the issues on a Projects v2 board, walking the
// GraphQL connection cursor by cursor. The board's single-select status
// option is the status token; an archived board item forces the
// normalized status to closed regardless of the mapping.
func (a *Adapter) ListBoardItems(
	ctx context.Context,
	owner string,
	number int,
) ([]*model.Issue, error) {
	projectID, err := a.boardID(ctx, owner, number)
	if err != nil {
		return nil, err
	}
	key := boardKey(owner, number)

	nodes, err := paging.CollectCursor(ctx,
		func(ctx context.Context, cursor string) ([]boardItem, paging.PageInfo, error) {
			var resp struct {
				Node *struct {
					Items struct {
						PageInfo paging.PageInfo `json:"pageInfo"`
						Nodes    []boardItem     `json:"nodes"`
					} `json:"items"`
				} `json:"node"`
			}

			vars := map[string]any{"project": projectID}
			if cursor != "" {
				vars["cursor"] = cursor
			}
			if err := a.gql.Run(ctx, boardItemsQuery, vars, &resp); err != nil {
				return nil, paging.PageInfo{}, err
			}
			if resp.Node == nil {
				return nil, paging.PageInfo{}, &apierr.Error{
					Kind:    apierr.KindNotFound,
					Message: fmt.Sprintf("board %s disappeared during listing", key),
				}
			}
			return resp.Node.Items.Nodes, resp.Node.Items.PageInfo, nil
		})
	if err != nil {
		return nil, a.translate(err)
	}

	issues := make([]*model.Issue, 0, len(nodes))
	for _, item := range nodes {
		if item.Content == nil || item.Content.Typename != "Issue" {
			continue
		}
		token := ""
		if item.FieldValueByName != nil {
			token = item.FieldValueByName.Name
		}

		author := ""
		if item.Content.Author != nil {
			author = item.Content.Author.Login
		}

		issues = append(issues, &model.Issue{
			ID:          item.ID,
			Key:         fmt.Sprintf("%s#%d", key, item.Content.Number),
			ProjectID:   key,
			Title:       item.Content.Title,
			Description: item.Content.Body,
			Status:      a.statuses.Normalize(key, token, item.IsArchived),
			Author:      author,
			URL:         item.Content.URL,
			CreatedAt:   parseTime(item.Content.CreatedAt),
			UpdatedAt:   parseTime(item.Content.UpdatedAt),
		})
	}
	return issues, nil
}

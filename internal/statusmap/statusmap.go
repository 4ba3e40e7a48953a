// Package statusmap implements the status normalization engine: a
// per-project table mapping backend status tokens (list/column ids or
// names) onto the fixed normalized vocabulary, plus the reverse lookup
// used before status transitions.
package statusmap

import (
	"github.com/nhle/pmbridge/internal/apierr"
	"github.com/nhle/pmbridge/internal/model"
)

// projectTable is one project's token mapping. The token order is the
// configuration order, which makes reverse lookup deterministic.
type projectTable struct {
	order   []string
	byToken map[string]model.Status
}

// Mapper maps backend status tokens to normalized statuses per project.
// It deep-copies its configuration at construction and is never mutated
// afterwards, so a Mapper bound to an adapter is safe for concurrent use.
type Mapper struct {
	projects map[string]*projectTable
}

// New builds a Mapper from per-project ordered mapping rules. Duplicate
// tokens within a project keep their first-configured status.
func New(mappings []model.ProjectMapping) *Mapper {
	projects := make(map[string]*projectTable, len(mappings))
	for _, pm := range mappings {
		table, ok := projects[pm.ProjectID]
		if !ok {
			table = &projectTable{byToken: make(map[string]model.Status)}
			projects[pm.ProjectID] = table
		}
		for _, rule := range pm.Statuses {
			if _, exists := table.byToken[rule.Token]; exists {
				continue
			}
			table.order = append(table.order, rule.Token)
			table.byToken[rule.Token] = rule.Status
		}
	}
	return &Mapper{projects: projects}
}

// Normalize maps a backend status token to the normalized vocabulary for
// the given project. Tokens absent from the mapping default to open.
//
// The archived flag is an unconditional override: when the backend marks
// the record archived/closed through any backend-specific flag, the
// result is closed regardless of the mapping, even over an explicit
// mapping that assigns the archived token to some other status. Boards
// that map their archive column elsewhere will find this surprising, but
// the precedence is deliberate.
func (m *Mapper) Normalize(projectID, token string, archived bool) model.Status {
	status := model.StatusOpen
	if table, ok := m.projects[projectID]; ok {
		if mapped, ok := table.byToken[token]; ok {
			status = mapped
		}
	}
	if archived {
		return model.StatusClosed
	}
	return status
}

// Denormalize resolves a normalized status back to a backend token for
// the given project. It fails with a configuration error, never a silent
// default, when the project has no mapping or no token maps to the
// status. When several tokens map to the same status the first-configured
// token wins; callers needing strict determinism should keep mappings
// one-to-one per status.
func (m *Mapper) Denormalize(projectID string, status model.Status) (string, error) {
	table, ok := m.projects[projectID]
	if !ok {
		return "", apierr.Configurationf(
			"no status mapping configured for project %q", projectID,
		)
	}
	for _, token := range table.order {
		if table.byToken[token] == status {
			return token, nil
		}
	}
	return "", apierr.Configurationf(
		"no status token maps to %q for project %q", status, projectID,
	)
}

// ValidStatuses returns the normalized statuses reachable for a project,
// in configuration order and without duplicates.
func (m *Mapper) ValidStatuses(projectID string) []model.Status {
	table, ok := m.projects[projectID]
	if !ok {
		return nil
	}
	seen := make(map[model.Status]bool, len(table.order))
	var statuses []model.Status
	for _, token := range table.order {
		status := table.byToken[token]
		if seen[status] {
			continue
		}
		seen[status] = true
		statuses = append(statuses, status)
	}
	return statuses
}

// StatusKnown reports whether some token maps to status for the project.
// Callers use it to fail fast before attempting a status transition.
func (m *Mapper) StatusKnown(projectID string, status model.Status) bool {
	table, ok := m.projects[projectID]
	if !ok {
		return false
	}
	for _, token := range table.order {
		if table.byToken[token] == status {
			return true
		}
	}
	return false
}

package statusmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/pmbridge/internal/apierr"
	"github.com/nhle/pmbridge/internal/model"
)

func newTestMapper() *Mapper {
	return New([]model.ProjectMapping{
		{
			ProjectID: "BOARD-1",
			Statuses: []model.StatusRule{
				{Token: "list_41", Status: model.StatusOpen},
				{Token: "list_42", Status: model.StatusInProgress},
				{Token: "list_43", Status: model.StatusBlocked},
				{Token: "list_44", Status: model.StatusClosed},
				{Token: "list_45", Status: model.StatusClosed},
			},
		},
	})
}

func TestNormalizeMappedToken(t *testing.T) {
	m := newTestMapper()

	assert.Equal(t, model.StatusInProgress, m.Normalize("BOARD-1", "list_42", false))
	assert.Equal(t, model.StatusBlocked, m.Normalize("BOARD-1", "list_43", false))
}

func TestNormalizeUnmappedTokenDefaultsToOpen(t *testing.T) {
	m := newTestMapper()

	assert.Equal(t, model.StatusOpen, m.Normalize("BOARD-1", "list_999", false))
	assert.Equal(t, model.StatusOpen, m.Normalize("NO-SUCH-BOARD", "anything", false))
}

func TestNormalizeArchivedOverridesMapping(t *testing.T) {
	m := newTestMapper()

	// The archived flag wins even over an explicit mapping that assigns
	// the token to a non-closed status.
	assert.Equal(t, model.StatusClosed, m.Normalize("BOARD-1", "list_42", true))
	assert.Equal(t, model.StatusClosed, m.Normalize("BOARD-1", "unmapped", true))
}

func TestDenormalizeReturnsFirstConfiguredToken(t *testing.T) {
	m := newTestMapper()

	token, err := m.Denormalize("BOARD-1", model.StatusClosed)
	require.NoError(t, err)
	assert.Equal(t, "list_44", token)
}

func TestDenormalizeUnmappedStatusIsConfigurationError(t *testing.T) {
	m := newTestMapper()

	_, err := m.Denormalize("BOARD-1", model.StatusOnHold)
	require.Error(t, err)
	assert.True(t, apierr.IsConfiguration(err))
}

func TestDenormalizeUnknownProjectIsConfigurationError(t *testing.T) {
	m := newTestMapper()

	_, err := m.Denormalize("NO-SUCH-BOARD", model.StatusClosed)
	require.Error(t, err)
	assert.True(t, apierr.IsConfiguration(err))
}

func TestValidStatuses(t *testing.T) {
	m := newTestMapper()

	assert.Equal(t, []model.Status{
		model.StatusOpen, model.StatusInProgress,
		model.StatusBlocked, model.StatusClosed,
	}, m.ValidStatuses("BOARD-1"))
	assert.Nil(t, m.ValidStatuses("NO-SUCH-BOARD"))
}

func TestStatusKnown(t *testing.T) {
	m := newTestMapper()

	assert.True(t, m.StatusKnown("BOARD-1", model.StatusBlocked))
	assert.False(t, m.StatusKnown("BOARD-1", model.StatusOnHold))
	assert.False(t, m.StatusKnown("NO-SUCH-BOARD", model.StatusOpen))
}

func TestDuplicateTokensKeepFirstStatus(t *testing.T) {
	m := New([]model.ProjectMapping{
		{
			ProjectID: "P",
			Statuses: []model.StatusRule{
				{Token: "dup", Status: model.StatusBlocked},
				{Token: "dup", Status: model.StatusOnHold},
			},
		},
	})

	assert.Equal(t, model.StatusBlocked, m.Normalize("P", "dup", false))
}

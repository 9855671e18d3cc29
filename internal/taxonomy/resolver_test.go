package taxonomy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-advisory/guidance-cli/internal/config"
)

func fixtureRepo() *MemoryRepository {
	return NewMemoryRepository(map[Vocabulary][]Term{
		VocabDiscipline: {
			{ID: "D06", Name: "Perimeter Security", Category: "physical"},
			{ID: "D07", Name: "Physical Security", Category: "physical"},
			{ID: "D04", Name: "Electronic Security Systems", Category: "electronic"},
		},
		VocabSector: {
			{ID: "S03", Name: "Government Facilities"},
		},
	})
}

func TestResolve_Exact(t *testing.T) {
	r := NewResolver(fixtureRepo(), config.TaxonomyConfig{})

	m, err := r.Resolve(context.Background(), VocabDiscipline, "Physical Security")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "D07", m.ID)
	assert.True(t, m.Exact)
	assert.Equal(t, 1.0, m.Score)
	assert.Equal(t, "physical", m.Category)
}

func TestResolve_ExactIsCaseAndSpaceInsensitive(t *testing.T) {
	r := NewResolver(fixtureRepo(), config.TaxonomyConfig{})

	m, err := r.Resolve(context.Background(), VocabDiscipline, "  physical  security ")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "D07", m.ID)
	assert.True(t, m.Exact)
}

func TestResolve_FuzzyTypo(t *testing.T) {
	r := NewResolver(fixtureRepo(), config.TaxonomyConfig{FuzzyThreshold: 0.7})

	m, err := r.Resolve(context.Background(), VocabDiscipline, "Physical Securty")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "D07", m.ID)
	assert.False(t, m.Exact)
	assert.GreaterOrEqual(t, m.Score, 0.7)
}

func TestResolve_MissReturnsNil(t *testing.T) {
	r := NewResolver(fixtureRepo(), config.TaxonomyConfig{})

	m, err := r.Resolve(context.Background(), VocabDiscipline, "Underwater Basket Weaving")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestResolve_EmptyLabel(t *testing.T) {
	r := NewResolver(fixtureRepo(), config.TaxonomyConfig{})

	m, err := r.Resolve(context.Background(), VocabDiscipline, "   ")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestResolve_Deterministic(t *testing.T) {
	r := NewResolver(fixtureRepo(), config.TaxonomyConfig{})

	var first *Match
	for i := 0; i < 10; i++ {
		m, err := r.Resolve(context.Background(), VocabDiscipline, "Physical Securty")
		require.NoError(t, err)
		require.NotNil(t, m)
		if first == nil {
			first = m
		} else {
			assert.Equal(t, first.ID, m.ID)
			assert.Equal(t, first.Score, m.Score)
		}
	}
}

func TestMemoryRepository_StableNameOrder(t *testing.T) {
	repo := fixtureRepo()

	terms, err := repo.Terms(context.Background(), VocabDiscipline)
	require.NoError(t, err)
	require.Len(t, terms, 3)
	assert.Equal(t, "Electronic Security Systems", terms[0].Name)
	assert.Equal(t, "Perimeter Security", terms[1].Name)
	assert.Equal(t, "Physical Security", terms[2].Name)
}

func TestMemoryRepository_UnknownVocabulary(t *testing.T) {
	repo := fixtureRepo()

	terms, err := repo.Terms(context.Background(), VocabSubsector)
	require.NoError(t, err)
	assert.Empty(t, terms)
}

package lifecycle

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
)

func TestRunStepsOrderingAndPolicy(t *testing.T) {
	e := New(Deps{})
	var ran []string
	record := func(name string, err error) func(context.Context) error {
		return func(context.Context) error {
			ran = append(ran, name)
			return err
		}
	}

	err := e.core.runSteps(ctx, "test",
		critical("one", record("one", nil)),
		bestEffort("two", record("two", errDown)),
		critical("three", record("three", nil)),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, ran)

	ran = nil
	err = e.core.runSteps(ctx, "test",
		critical("one", record("one", errDown)),
		critical("two", record("two", nil)),
	)
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, domain.StatusOf(err))
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, []string{"one"}, ran)
}

func TestRunStepsKeepsDomainErrors(t *testing.T) {
	e := New(Deps{})
	err := e.core.runSteps(ctx, "test", critical("gone", func(context.Context) error {
		return domain.NotFound("store", "contract gone")
	}))
	assert.Equal(t, http.StatusNotFound, domain.StatusOf(err))
}

func TestMemberStepsRunIndexBeforeDirectory(t *testing.T) {
	f := newFixture(t)
	steps := f.engine.core.memberSteps("ctr_x", []domain.Effect{
		{Kind: domain.EffectGroupDelete},
		{Kind: domain.EffectGroupMemberRemove, Principal: "itemA1"},
		{Kind: domain.EffectItemIndexRemove, Principal: "itemA1"},
		{Kind: domain.EffectGatewaysChanged, Oids: []string{"itemA1"}},
	})
	var names []string
	for _, s := range steps {
		names = append(names, s.name)
		assert.False(t, s.critical, s.name)
	}
	assert.Equal(t, []string{"item_index_remove", "directory_remove_principal", "directory_delete_group"}, names)
}

package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgseldump/pgseldump/internal/rules"
	"github.com/pgseldump/pgseldump/internal/schema"
)

func TestInitialMatchesExtensionWithoutConditionIsSkipped(t *testing.T) {
	g := schema.NewGraph()
	g.AddObject(&schema.Object{OID: 1, Schema: "public", Name: "t1", Kind: schema.KindTable, Extension: "hstore"})

	m := rules.NewMatcher()
	m.AddRules([]*rules.Rule{{Action: rules.ActionDump}})

	set, err := InitialMatches(g, m)
	require.NoError(t, err)
	assert.Equal(t, rules.ActionSkip, set.Get(1).Action)
}

func TestInitialMatchesExtensionWithConditionIsMatchedNormally(t *testing.T) {
	g := schema.NewGraph()
	g.AddObject(&schema.Object{
		OID: 1, Schema: "public", Name: "t1", Kind: schema.KindTable,
		Extension: "hstore", ExtConditionSet: true, ExtCondition: "",
	})

	m := rules.NewMatcher()
	m.AddRules([]*rules.Rule{{Action: rules.ActionDump}})

	set, err := InitialMatches(g, m)
	require.NoError(t, err)
	assert.Equal(t, rules.ActionDump, set.Get(1).Action)
}

func TestInitialMatchesNoRuleIsUnknown(t *testing.T) {
	g := schema.NewGraph()
	g.AddObject(&schema.Object{OID: 1, Schema: "public", Name: "t1", Kind: schema.KindTable})

	set, err := InitialMatches(g, rules.NewMatcher())
	require.NoError(t, err)
	assert.Equal(t, rules.ActionUnknown, set.Get(1).Action)
}

func TestInitialMatchesErrorActionAppendsDiagnostic(t *testing.T) {
	g := schema.NewGraph()
	g.AddObject(&schema.Object{OID: 1, Schema: "public", Name: "secrets", Kind: schema.KindTable})

	m := rules.NewMatcher()
	m.AddRules([]*rules.Rule{{Names: map[string]struct{}{"secrets": {}}, Action: rules.ActionError, Filename: "r.yaml", Line: 3}})

	set, err := InitialMatches(g, m)
	require.NoError(t, err)
	got := set.Get(1)
	assert.Equal(t, rules.ActionError, got.Action)
	require.Len(t, got.Errors, 1)
	assert.Contains(t, got.Errors[0], "r.yaml:3")
}

func TestInitialMatchesAmbiguousPropagatesError(t *testing.T) {
	g := schema.NewGraph()
	g.AddObject(&schema.Object{OID: 1, Schema: "public", Name: "t1", Kind: schema.KindTable})

	m := rules.NewMatcher()
	m.AddRules([]*rules.Rule{
		{Names: map[string]struct{}{"t1": {}}, Filename: "a.yaml", Line: 1},
		{Names: map[string]struct{}{"t1": {}}, Filename: "b.yaml", Line: 2},
	})

	_, err := InitialMatches(g, m)
	require.Error(t, err)
}

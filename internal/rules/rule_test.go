package rules

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/pgseldump/pgseldump/internal/schema"
)

func TestScore(t *testing.T) {
	cases := []struct {
		name string
		rule Rule
		want int
	}{
		{"bare", Rule{}, 0},
		{"names exact", Rule{Names: map[string]struct{}{"t1": {}}}, 1000},
		{"names regex", Rule{NamesRe: regexp.MustCompile(".*")}, 500},
		{"schemas exact", Rule{Schemas: map[string]struct{}{"public": {}}}, 100},
		{"schemas regex", Rule{SchemasRe: regexp.MustCompile(".*")}, 50},
		{"kinds", Rule{Kinds: map[schema.Kind]struct{}{schema.KindTable: {}}}, 10},
		{"adjust only", Rule{AdjustScore: -5}, -5},
		{
			"everything",
			Rule{
				Names:   map[string]struct{}{"t1": {}},
				Schemas: map[string]struct{}{"public": {}},
				Kinds:   map[schema.Kind]struct{}{schema.KindTable: {}},
				AdjustScore: 3,
			},
			1113,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.rule.Score())
		})
	}
}

func TestMatchesNamesExact(t *testing.T) {
	r := Rule{Names: map[string]struct{}{"t1": {}, "t2": {}}}
	assert.True(t, r.Matches(&schema.Object{Name: "t1"}))
	assert.False(t, r.Matches(&schema.Object{Name: "t3"}))
}

func TestMatchesNamesRegexVerbose(t *testing.T) {
	// The rule-file loader strips verbose-mode whitespace before compiling,
	// so ` ^ t \d+ $` in a rule file reaches the Rule as `^t\d+$`.
	re := regexp.MustCompile(`^t\d+$`)
	r := Rule{NamesRe: re}
	assert.True(t, r.Matches(&schema.Object{Name: "t42"}))
	assert.False(t, r.Matches(&schema.Object{Name: "users"}))
}

func TestMatchesSchemasAndKinds(t *testing.T) {
	r := Rule{
		Schemas: map[string]struct{}{"app": {}},
		Kinds:   map[schema.Kind]struct{}{schema.KindTable: {}},
	}
	assert.True(t, r.Matches(&schema.Object{Schema: "app", Kind: schema.KindTable}))
	assert.False(t, r.Matches(&schema.Object{Schema: "public", Kind: schema.KindTable}))
	assert.False(t, r.Matches(&schema.Object{Schema: "app", Kind: schema.KindSequence}))
}

func TestMatchesNoSelectorsMatchesEverything(t *testing.T) {
	r := Rule{}
	assert.True(t, r.Matches(&schema.Object{Name: "anything", Schema: "any", Kind: schema.KindSequence}))
}

func TestPos(t *testing.T) {
	assert.Equal(t, ":", (&Rule{}).Pos())
	assert.Equal(t, "rules.yaml:12", (&Rule{Filename: "rules.yaml", Line: 12}).Pos())
}

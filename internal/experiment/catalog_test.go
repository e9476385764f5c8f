package experiment_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/variant-goat/internal/experiment"
)

const catalogYAML = `
tests:
  - id: t1
    name: Headline
    variants:
      - id: control
        name: Control
        traffic_split: 50
        is_control: true
      - id: A
        name: Variant A
        description: shorter copy
        traffic_split: 50
  - id: t2
    variants:
      - id: control
        traffic_split: 30
      - id: B
        traffic_split: 30
`

func TestParseCatalog(t *testing.T) {
	c, err := experiment.ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	tests := c.Tests()
	assert.Equal(t, "t1", tests[0].ID)
	assert.Equal(t, "t2", tests[1].ID)

	t1, ok := c.Get("t1")
	require.True(t, ok)
	require.Len(t, t1.Variants, 2)
	assert.Equal(t, "control", t1.Variants[0].ID)
	assert.True(t, t1.Variants[0].IsControl)
	assert.Equal(t, 50.0, t1.Variants[1].TrafficSplit)
	assert.Equal(t, "shorter copy", t1.Variants[1].Description)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestParseCatalog_UnevenSplitsStillLoad(t *testing.T) {
	c, err := experiment.ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"t2"}, c.UnevenSplits())
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing test id", "tests:\n  - variants:\n      - id: control\n"},
		{"no variants", "tests:\n  - id: t1\n"},
		{"missing variant id", "tests:\n  - id: t1\n    variants:\n      - name: x\n"},
		{"duplicate ids", "tests:\n  - id: t1\n    variants: [{id: control}]\n  - id: t1\n    variants: [{id: control}]\n"},
		{"duplicate variant ids", "tests:\n  - id: t1\n    variants: [{id: control, traffic_split: 50}, {id: control, traffic_split: 50}]\n"},
		{"bad yaml", "tests: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := experiment.ParseCatalog([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestNewCatalog_DuplicateVariant(t *testing.T) {
	_, err := experiment.NewCatalog([]experiment.Test{{
		ID: "t1",
		Variants: []experiment.Variant{
			{ID: "A", TrafficSplit: 50},
			{ID: "A", TrafficSplit: 50},
		},
	}})
	assert.ErrorContains(t, err, "unique")
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tests.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))

	c, err := experiment.LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	_, err = experiment.LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaultCatalog(t *testing.T) {
	c := experiment.DefaultCatalog()
	require.NotZero(t, c.Len())
	assert.Empty(t, c.UnevenSplits())

	for _, test := range c.Tests() {
		_, ok := test.Variant(experiment.ControlVariantID)
		assert.True(t, ok, "test %s has no control variant", test.ID)
	}
}

func TestEventTypeValid(t *testing.T) {
	assert.True(t, experiment.EventConversion.Valid())
	assert.True(t, experiment.EventEngagement.Valid())
	assert.True(t, experiment.EventVariantAssigned.Valid())
	assert.False(t, experiment.EventType("view").Valid())
}

package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow-dev/stepflow/types"
)

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	return NewLoader(log.NewLogger(log.DiscardHandler()))
}

const validManifest = `
features:
  - name: authentication
    tags: ["@critical"]
    scenarios:
      - name: successful login
        tags: ["@smoke"]
        steps:
          - keyword: Given
            text: a registered user
          - keyword: When
            text: the user logs in
          - keyword: Then
            text: the dashboard is shown
      - name: login per role
        type: scenario_outline
        steps:
          - keyword: When
            text: the user <name> logs in
        examples:
          - rows:
              - name: alice
              - name: bob
`

func TestParseValidManifest(t *testing.T) {
	features, err := newTestLoader(t).Parse([]byte(validManifest))
	require.NoError(t, err)
	require.Len(t, features, 1)

	f := features[0]
	assert.Equal(t, "authentication", f.Name)
	assert.Equal(t, "feature:authentication", f.URI, "missing URIs are derived from the name")
	assert.Equal(t, []string{"@critical"}, f.Tags)
	require.Len(t, f.Scenarios, 2)

	login := f.Scenarios[0]
	assert.Equal(t, "feature:authentication/0", login.ID, "missing IDs are assigned")
	assert.Equal(t, types.ScenarioTypeStandard, login.Type)
	assert.Equal(t, "authentication", login.FeatureName)
	assert.Equal(t, "feature:authentication", login.FeatureURI)
	require.Len(t, login.Steps, 3)
	assert.Equal(t, "Given", login.Steps[0].Keyword)
	assert.Equal(t, "a registered user", login.Steps[0].Text)

	outline := f.Scenarios[1]
	assert.Equal(t, types.ScenarioTypeOutline, outline.Type)
	require.Len(t, outline.Examples, 1)
	assert.Len(t, outline.Examples[0].Rows, 2)
}

func TestParseRejectsInvalidManifests(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		wantErr  string
	}{
		{
			name:     "not yaml",
			manifest: "{{{",
			wantErr:  "failed to parse",
		},
		{
			name:     "no features",
			manifest: "features: []",
			wantErr:  "no features",
		},
		{
			name: "unnamed feature",
			manifest: `
features:
  - scenarios:
      - name: s
`,
			wantErr: "has no name",
		},
		{
			name: "unnamed scenario",
			manifest: `
features:
  - name: f
    scenarios:
      - steps: []
`,
			wantErr: "has no name",
		},
		{
			name: "outline without examples",
			manifest: `
features:
  - name: f
    scenarios:
      - name: s
        type: scenario_outline
        steps: []
`,
			wantErr: "no example tables",
		},
		{
			name: "duplicate scenario id",
			manifest: `
features:
  - name: f
    scenarios:
      - name: a
        id: dup
      - name: b
        id: dup
`,
			wantErr: "duplicate scenario id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestLoader(t).Parse([]byte(tt.manifest))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "features.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validManifest), 0o644))

	features, err := newTestLoader(t).Load(path)
	require.NoError(t, err)
	assert.Len(t, features, 1)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := newTestLoader(t).Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}

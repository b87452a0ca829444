package iconconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethpandaops/iconbench/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_CoversEveryFormat(t *testing.T) {
	c := Default()

	for _, f := range record.Formats() {
		t.Run(string(f), func(t *testing.T) {
			variants, err := c.Variants(string(f))
			require.NoError(t, err)
			require.NotEmpty(t, variants)

			seen := make(map[string]struct{}, len(variants))

			for _, v := range variants {
				assert.NotEmpty(t, v.Name)
				assert.NotEmpty(t, v.Selector)
				assert.Contains(t, v.Markup, "{{.Index}}")

				_, dup := seen[v.Name]
				assert.False(t, dup, "duplicate variant %q", v.Name)
				seen[v.Name] = struct{}{}
			}
		})
	}
}

func TestCatalog_Lookups(t *testing.T) {
	c := Default()

	_, err := c.Variants("bmp")
	require.ErrorIs(t, err, ErrUnknownFormat)

	tt, err := c.TestType("quick")
	require.NoError(t, err)
	assert.Equal(t, "quick", tt.Name)
	assert.Positive(t, tt.Iterations)
	assert.Positive(t, tt.IconCount)

	_, err = c.TestType("marathon")
	require.ErrorIs(t, err, ErrUnknownTestType)

	assert.Equal(t, []string{"quick", "standard", "stress"}, c.TestTypeNames())
}

func TestCatalog_VariantsReturnsCopy(t *testing.T) {
	c := Default()

	v, err := c.Variants("svg")
	require.NoError(t, err)

	v[0].Name = "mutated"

	again, err := c.Variants("svg")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again[0].Name)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantErr  string
		validate func(t *testing.T, c *Catalog)
	}{
		{
			name: "overlay replaces format and adds test type",
			content: `
formats:
  png:
    - name: Tiny
      selector: img.tiny
      markup: '<img class="tiny" data-i="{{.Index}}">'
test_types:
  marathon:
    iterations: 50
    icon_count: 2000
`,
			validate: func(t *testing.T, c *Catalog) {
				v, err := c.Variants("png")
				require.NoError(t, err)
				require.Len(t, v, 1)
				assert.Equal(t, "Tiny", v[0].Name)

				svg, err := c.Variants("svg")
				require.NoError(t, err)
				assert.Len(t, svg, len(Default().Formats[record.FormatSVG]))

				tt, err := c.TestType("marathon")
				require.NoError(t, err)
				assert.Equal(t, TestType{Name: "marathon", Iterations: 50, IconCount: 2000}, tt)
			},
		},
		{
			name: "unknown format",
			content: `
formats:
  bmp:
    - name: x
      markup: x
`,
			wantErr: "invalid format",
		},
		{
			name: "variant without markup",
			content: `
formats:
  css:
    - name: x
`,
			wantErr: "markup is required",
		},
		{
			name: "non-positive test type",
			content: `
test_types:
  broken:
    iterations: 0
    icon_count: 10
`,
			wantErr: "positive iterations",
		},
		{
			name:    "invalid yaml",
			content: "formats: [",
			wantErr: "parsing icons file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "icons.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			c, err := Load(path)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)

				return
			}

			require.NoError(t, err)
			tt.validate(t, c)
		})
	}
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

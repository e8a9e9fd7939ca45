package feed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidPackageName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "simple", input: "left-pad", want: true},
		{name: "scoped", input: "@asyncapi/specs", want: true},
		{name: "dots and underscores", input: "lodash.merge_x", want: true},
		{name: "empty", input: "", want: false},
		{name: "legacy uppercase", input: "JSONStream", want: true},
		{name: "leading dot", input: ".bin", want: false},
		{name: "shell metacharacters", input: "pkg; rm -rf /", want: false},
		{name: "too long", input: strings.Repeat("a", 215), want: false},
		{name: "scope without name", input: "@scope/", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidPackageName(tt.input))
		})
	}
}

func TestParseDelimited(t *testing.T) {
	input := `Package,Version
posthog-node,= 4.3.2 || = 4.3.3
@asyncapi/specs,"= 6.8.2 || =6.9.1"
kill-port,
left-pad,*
JSONStream,= 1.3.6
Not A Package,= 1.0.0
# comment,= 9.9.9
`
	deny, err := ParseDelimited(strings.NewReader(input))
	require.NoError(t, err)

	assert.Len(t, deny, 5)
	assert.Equal(t, []string{"4.3.2", "4.3.3"}, deny["posthog-node"].Sorted())
	assert.Equal(t, []string{"6.8.2", "6.9.1"}, deny["@asyncapi/specs"].Sorted())
	assert.True(t, deny["kill-port"].IsWildcard())
	assert.True(t, deny["left-pad"].IsWildcard())
	assert.True(t, deny["JSONStream"].Has("1.3.6"))
	assert.False(t, deny.Watches("Not A Package"))
}

func TestParseDelimitedWithoutHeader(t *testing.T) {
	deny, err := ParseDelimited(strings.NewReader("left-pad,= 1.2.3\n"))
	require.NoError(t, err)
	assert.True(t, deny["left-pad"].Has("1.2.3"))
}

func TestParseStructured(t *testing.T) {
	input := []byte(`{
		"left-pad": ["1.2.3", "= 1.2.4"],
		"@scope/pkg": {"versions": ["2.0.0"]},
		"everything": null,
		"crossenv": {"versions": []},
		"single": "3.0.0 || 3.0.1",
		"BAD NAME": ["1.0.0"]
	}`)

	deny, err := ParseStructured(input)
	require.NoError(t, err)

	assert.Equal(t, []string{"1.2.3", "1.2.4"}, deny["left-pad"].Sorted())
	assert.True(t, deny["@scope/pkg"].Has("2.0.0"))
	assert.True(t, deny["everything"].IsWildcard())
	assert.True(t, deny["crossenv"].IsWildcard())
	assert.Equal(t, []string{"3.0.0", "3.0.1"}, deny["single"].Sorted())
	assert.False(t, deny.Watches("BAD NAME"))
}

func TestParseStructuredRejectsNonObject(t *testing.T) {
	for _, input := range []string{`["left-pad"]`, `"left-pad"`, `42`, ``} {
		_, err := ParseStructured([]byte(input))
		assert.Error(t, err, "input %q", input)
	}
}

func TestDenylistMerge(t *testing.T) {
	a := Denylist{}
	a.Add("left-pad", "1.0.0")
	b := Denylist{}
	b.Add("left-pad", "1.0.1")
	b.Add("kill-port", Wildcard)

	a.Merge(b)
	assert.Equal(t, []string{"1.0.0", "1.0.1"}, a["left-pad"].Sorted())
	assert.True(t, a["kill-port"].IsWildcard())
}

func TestMatchConstraint(t *testing.T) {
	deny := Denylist{}
	for _, v := range []string{"1.2.3", "1.3.0", "2.0.0", "not-semver", Wildcard} {
		deny.Add("left-pad", v)
	}

	got, err := deny.MatchConstraint("left-pad", "^1.2.0")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.2.3", "1.3.0"}, got)

	_, err = deny.MatchConstraint("left-pad", "not a range !!")
	assert.Error(t, err)
}

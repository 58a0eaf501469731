package judge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractEntryPointJavaScriptShapes(t *testing.T) {
	cases := map[string]string{
		"function twoSum(nums, target) { return []; }": "twoSum",
		"const twoSum = function(nums, target) {}":     "twoSum",
		"const twoSum = (nums, target) => []":          "twoSum",
		"let solve = function() {}":                    "solve",
		"let solve = (a) => a":                         "solve",
		"var solve = function(a, b) {}":                "solve",
		"var solve = (a, b) => a + b":                  "solve",
	}

	for source, want := range cases {
		name, err := ExtractEntryPoint(source, LanguageJavaScript)
		require.NoError(t, err, source)
		require.Equal(t, want, name, source)
	}
}

func TestExtractEntryPointPython(t *testing.T) {
	name, err := ExtractEntryPoint("def two_sum(nums, target):\n    return []", LanguagePython)
	require.NoError(t, err)
	require.Equal(t, "two_sum", name)
}

func TestExtractEntryPointNotFound(t *testing.T) {
	_, err := ExtractEntryPoint("console.log('no function here')", LanguageJavaScript)
	require.ErrorIs(t, err, ErrEntryPointNotFound)
}

func TestExtractEntryPointUnknownLanguagePassesThrough(t *testing.T) {
	name, err := ExtractEntryPoint("int main() { return 0; }", LanguageCPP)
	require.NoError(t, err)
	require.Empty(t, name)
}

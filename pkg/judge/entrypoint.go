package judge

import "regexp"

// Declaration shapes recognized per language. String-based extraction is
// fragile (multi-line arrow functions, classes and default exports are not
// recognized); the narrow contract here keeps it swappable for a real parser.
var entryPointPatterns = map[string][]*regexp.Regexp{
	LanguageJavaScript: {
		regexp.MustCompile(`function\s+(\w+)\s*\(`),
		regexp.MustCompile(`const\s+(\w+)\s*=\s*function`),
		regexp.MustCompile(`const\s+(\w+)\s*=\s*\([^)]*\)\s*=>`),
		regexp.MustCompile(`let\s+(\w+)\s*=\s*function`),
		regexp.MustCompile(`let\s+(\w+)\s*=\s*\([^)]*\)\s*=>`),
		regexp.MustCompile(`var\s+(\w+)\s*=\s*function`),
		regexp.MustCompile(`var\s+(\w+)\s*=\s*\([^)]*\)\s*=>`),
	},
	LanguagePython: {
		regexp.MustCompile(`def\s+(\w+)\s*\(`),
	},
}

// ExtractEntryPoint returns the name of the callable a submission defines.
// Languages without registered declaration shapes (compiled languages judged
// whole-program on the remote backend) return an empty name and no error.
// For recognized languages a missing match is ErrEntryPointNotFound, which is
// fatal for every test case of the submission.
func ExtractEntryPoint(source, language string) (string, error) {
	patterns := entryPointPatterns[language]
	if len(patterns) == 0 {
		return "", nil
	}
	for _, pattern := range patterns {
		if match := pattern.FindStringSubmatch(source); match != nil {
			return match[1], nil
		}
	}
	return "", ErrEntryPointNotFound
}

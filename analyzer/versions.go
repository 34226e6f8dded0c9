package analyzer

import (
	"regexp"
	"sort"
	"strings"
)

// maxDetectedVersions caps how many version strings a single analysis
// reports.
const maxDetectedVersions = 10

// versionPatterns are applied independently to the lossily decoded buffer.
// Labeled patterns capture the value after the label; the bare dotted
// patterns match version-shaped tokens anywhere in the text.
var versionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)version[:\s]+v?(\d+(?:\.\d+){1,3})`),
	regexp.MustCompile(`(?i)\bver[:\s]+v?(\d+(?:\.\d+){1,3})`),
	regexp.MustCompile(`(?i)firmware[:\s]+v?(\d+(?:\.\d+){1,3})`),
	regexp.MustCompile(`(?i)build[:\s]+v?(\d+(?:\.\d+){1,3})`),
	regexp.MustCompile(`\b(\d+\.\d+\.\d+\.\d+)\b`),
	regexp.MustCompile(`\b(\d+\.\d+\.\d+)\b`),
}

// ExtractVersionStrings pulls version-looking strings out of a binary
// buffer. Matches from all patterns are pooled, deduplicated by exact string
// equality, sorted, and truncated to the first maxDetectedVersions entries.
func ExtractVersionStrings(data []byte) []string {
	// Lossy decode: invalid byte sequences become replacement runes so the
	// regexes can run over arbitrary binary content.
	text := strings.ToValidUTF8(string(data), "�")

	seen := make(map[string]struct{})
	for _, pattern := range versionPatterns {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			version := match[1]
			if _, ok := seen[version]; !ok {
				seen[version] = struct{}{}
			}
		}
	}

	if len(seen) == 0 {
		return nil
	}

	versions := make([]string, 0, len(seen))
	for v := range seen {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	if len(versions) > maxDetectedVersions {
		versions = versions[:maxDetectedVersions]
	}
	return versions
}

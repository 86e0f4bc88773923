package parsers

import (
	"strings"
	"unicode"

	"github.com/haukened/exfil-watch/internal/dns/common/utils"
)

const (
	maxNameLength  = 255
	maxLabelLength = 63
)

// isValidFQDN checks that name looks like a whitelistable domain:
//   - total length at most 255
//   - at least two labels, each 1 to 63 bytes
//   - the first label starts with a letter or digit
func isValidFQDN(name string) bool {
	if len(name) > maxNameLength {
		return false
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) > maxLabelLength || len(label) == 0 {
			return false
		}
	}
	first := []rune(labels[0])
	return isAlphaNumeric(first[0])
}

// normalizeDomainName trims whitespace, drops a leading "*." or "." marker
// (every whitelist entry already matches as a suffix), and canonicalizes.
func normalizeDomainName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "*.")
	name = strings.TrimPrefix(name, ".")
	return utils.CanonicalDNSName(name)
}

func isAlphaNumeric(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// stripLineBOM removes a UTF-8 byte order mark from the start of a line.
func stripLineBOM(line string) string {
	return strings.TrimPrefix(line, "\uFEFF")
}

// classifyLine reports whether a raw line is blank or a whole-line comment.
func classifyLine(line string) (isEmpty, isComment bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true, false
	}
	return false, strings.HasPrefix(trimmed, "#")
}

// stripInlineComment drops everything from the first '#'.
func stripInlineComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		return line[:idx]
	}
	return line
}

package scope

import (
	"fmt"
	"strings"
)

// checkName trims name and validates it. Empty names are allowed (unnamed).
func checkName(name string) (string, error) {
	name = strings.TrimSpace(name)
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '_' || c == '-':
		case c == '/':
			return "", fmt.Errorf("%w: %q: contains '/'", ErrInvalidName, name)
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			return "", fmt.Errorf("%w: %q: contains whitespace", ErrInvalidName, name)
		default:
			return "", fmt.Errorf("%w: %q: allowed chars are [A-Za-z0-9._-]", ErrInvalidName, name)
		}
	}
	return name, nil
}

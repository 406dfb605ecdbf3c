package subsidy

import (
	"strings"

	"github.com/inbucket/html2text"
)

// plainText flattens the HTML body J-Grants returns for subsidy descriptions.
func plainText(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	out, err := html2text.FromReader(strings.NewReader(s), html2text.Options{
		OmitLinks:    false,
		PrettyTables: false,
	})
	if err != nil {
		return s
	}
	return strings.TrimSpace(out)
}

package subsidy

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

const (
	keywordMinLen = 2
	keywordMaxLen = 255
	filterMaxLen  = 255
	idMaxLen      = 18
)

var (
	sortValues       = []string{SortCreatedDate, SortAcceptanceStart, SortAcceptanceEnd}
	orderValues      = []string{OrderAsc, OrderDesc}
	acceptanceValues = []string{AcceptanceAll, AcceptanceActive}
)

func (f ListFilters) Validate() error {
	if err := validateKeyword("keyword", f.Keyword); err != nil {
		return err
	}
	if err := oneOf("sort", f.Sort, sortValues); err != nil {
		return err
	}
	if err := oneOf("order", f.Order, orderValues); err != nil {
		return err
	}
	if err := oneOf("acceptance", f.Acceptance, acceptanceValues); err != nil {
		return err
	}
	if err := maxLen("use_purpose", f.UsePurpose, filterMaxLen); err != nil {
		return err
	}
	if err := maxLen("industry", f.Industry, filterMaxLen); err != nil {
		return err
	}
	return nil
}

func (q SearchQuery) Validate() error {
	if err := validateKeyword("searchQuery", q.Query); err != nil {
		return err
	}
	if err := maxLen("industry", q.Industry, filterMaxLen); err != nil {
		return err
	}
	return maxLen("area", q.Area, filterMaxLen)
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if strings.ContainsAny(id, "/?#") {
		return &ValidationError{Field: "id", Reason: "contains reserved characters"}
	}
	return maxLen("id", id, idMaxLen)
}

func validateKeyword(field, v string) error {
	n := utf8.RuneCountInString(v)
	if n < keywordMinLen || n > keywordMaxLen {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("length must be %d-%d characters, got %d", keywordMinLen, keywordMaxLen, n)}
	}
	return nil
}

func maxLen(field, v string, limit int) error {
	if utf8.RuneCountInString(v) > limit {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be at most %d characters", limit)}
	}
	return nil
}

func oneOf(field, v string, allowed []string) error {
	if !slices.Contains(allowed, v) {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be one of %s, got %q", strings.Join(allowed, "|"), v)}
	}
	return nil
}

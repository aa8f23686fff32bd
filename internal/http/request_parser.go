package http

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"jobcost/internal/core"
)

// maxParamLen caps a single filter input; dates and project ids are short.
const maxParamLen = 128

// FilterParams holds the raw dashboard filter inputs. Empty values are filled
// from the snapshot defaults by core.Dataset.Resolve. Err is set when an input
// is refused outright.
type FilterParams struct {
	Project string
	Start   string
	End     string
	Err     error
}

// ParseFilterParams reads project, start_date and end_date from query values.
// project_id is accepted as an alias of project. The project id is passed on
// verbatim because it is compared exactly; dates are cleaned up.
func ParseFilterParams(query url.Values) FilterParams {
	project := query.Get("project")
	if project == "" {
		project = query.Get("project_id")
	}
	return FilterParams{
		Project: project,
		Start:   sanitizeInput(query.Get("start_date")),
		End:     sanitizeInput(query.Get("end_date")),
		Err:     checkProject(project),
	}
}

// checkProject refuses project ids no store could hold as a dashboard choice.
func checkProject(s string) error {
	switch {
	case len(s) > maxParamLen:
		return fmt.Errorf("%w: project id longer than %d bytes", core.ErrInvalidFilter, maxParamLen)
	case !utf8.ValidString(s):
		return fmt.Errorf("%w: project id is not valid UTF-8", core.ErrInvalidFilter)
	case strings.IndexFunc(s, unicode.IsControl) >= 0:
		return fmt.Errorf("%w: project id contains control characters", core.ErrInvalidFilter)
	}
	return nil
}

// sanitizeInput trims whitespace, drops control characters and caps the length
// on a rune boundary.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	if len(s) > maxParamLen {
		cut := maxParamLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}

// wantsJSON reports whether the client prefers a JSON response.
func wantsJSON(accept string) bool {
	return strings.Contains(strings.ToLower(accept), "application/json")
}

// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the transport layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// Rule maps errors matching Target to a problem status.
type Rule struct {
	Target error
	Status int
	Title  string
	// Code extracts a machine-readable code from the error, if any.
	Code func(error) string
}

var baseRules = []Rule{
	{Target: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Target: ErrValidation, Status: http.StatusBadRequest, Title: "Validation Failed"},
	{Target: ErrForbidden, Status: http.StatusForbidden, Title: "Forbidden"},
	{Target: ErrUnauthorized, Status: http.StatusUnauthorized, Title: "Unauthorized"},
}

// RespondError maps err to an RFC7807 response. Module rules are checked in
// order before the transport sentinels; anything unmatched is a 500 without detail.
func RespondError(w http.ResponseWriter, err error, rules ...Rule) {
	for _, set := range [][]Rule{rules, baseRules} {
		for _, rule := range set {
			if !errors.Is(err, rule.Target) {
				continue
			}
			p := ProblemDetail{Title: rule.Title, Status: rule.Status, Detail: err.Error()}
			if rule.Code != nil {
				p.Code = rule.Code(err)
			}
			JSON(w, rule.Status, p)
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

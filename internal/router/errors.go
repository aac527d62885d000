package router

import "fmt"

// ErrorKind classifies a routing failure.
type ErrorKind int

const (
	UpgradeNotAllowed ErrorKind = iota + 1
)

// RouteError is returned when a request matches a rule but cannot be served
// by it. It is reported to the client and never stops the router.
type RouteError struct {
	Kind   ErrorKind
	Path   string
	Prefix string
}

func (e *RouteError) Error() string {
	switch e.Kind {
	case UpgradeNotAllowed:
		return fmt.Sprintf("upgrade not allowed for %s (rule %s)", e.Path, e.Prefix)
	default:
		return fmt.Sprintf("route error for %s", e.Path)
	}
}

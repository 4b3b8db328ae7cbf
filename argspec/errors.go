package argspec

import (
	"fmt"
)

var (
	ErrOpen               = fmt.Errorf("cannot open")
	ErrNoDebugInfo        = fmt.Errorf("no debug info")
	ErrNotFound           = fmt.Errorf("not found")
	ErrMalformedTypeChain = fmt.Errorf("malformed type chain")
	ErrInvalidSpec        = fmt.Errorf("invalid spec")
)

package page

import (
	"fmt"
	"strings"
	"time"

	"trade-mirror-bot/internal/interfaces"
)

// NewDriver builds the driver named by kind: CHROME or STATIC.
func NewDriver(kind string, headless bool, userAgent string, timeout time.Duration) (interfaces.PageDriver, error) {
	switch strings.ToUpper(kind) {
	case "CHROME", "":
		return NewChromeDriver(headless, userAgent, timeout), nil
	case "STATIC":
		return NewStaticDriver(userAgent, timeout), nil
	}
	return nil, fmt.Errorf("unknown page driver %q", kind)
}

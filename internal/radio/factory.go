// Package radio selects the platform BLE backend behind central.Radio.
package radio

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/radio/goble"
	"github.com/srg/blecentral/internal/radio/tinygo"
)

const (
	BackendGoBLE  = "goble"
	BackendTinyGo = "tinygo"
)

// Backends lists the accepted backend names.
var Backends = []string{BackendGoBLE, BackendTinyGo}

// New creates an unopened radio for the named backend.
func New(backend string, logger *logrus.Logger) (central.Radio, error) {
	switch strings.ToLower(backend) {
	case BackendGoBLE, "":
		return goble.New(logger), nil
	case BackendTinyGo:
		return tinygo.New(logger), nil
	default:
		return nil, fmt.Errorf("unknown radio backend %q (expected one of %s)", backend, strings.Join(Backends, ", "))
	}
}

package serial

import (
	"sort"
	"strings"

	bugst "go.bug.st/serial"
)

// ListPorts returns the serial devices present on the system, sorted by
// name. USB adapters come first since the chain is usually attached
// through one.
func ListPorts() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ports, func(i, j int) bool {
		ui, uj := isUSB(ports[i]), isUSB(ports[j])
		if ui != uj {
			return ui
		}
		return ports[i] < ports[j]
	})
	return ports, nil
}

func isUSB(name string) bool {
	return strings.Contains(name, "USB") || strings.Contains(name, "ACM") || strings.Contains(name, "usbserial")
}

package capture

import (
	"errors"
	"fmt"

	"github.com/banshee-data/capturefinery/internal/host"
)

// inputMap resolves hall-of-fame variable names to host input kinds once per
// sweep. Variables missing from the map are skipped on every iteration.
type inputMap map[string]host.InputKind

// bindInputs looks up every variable on the host. Unresolved names and
// unsupported kinds are reported through warn and left out of the map.
func bindInputs(h host.Host, variables []string, warn func(string)) inputMap {
	m := make(inputMap, len(variables))
	for _, name := range variables {
		in, err := h.BindInput(name)
		if err != nil {
			if errors.Is(err, host.ErrInputNotFound) {
				warn(fmt.Sprintf("%v: %q has no matching host input (skipped)", ErrUnresolvedInput, name))
			} else {
				warn(fmt.Sprintf("%v: binding %q: %v (skipped)", ErrUnresolvedInput, name, err))
			}
			continue
		}
		if in.Kind == host.KindUnsupported {
			warn(fmt.Sprintf("%v: input %q cannot be set from archive values (skipped)", ErrUnsupportedInputKind, name))
			continue
		}
		m[name] = in.Kind
	}
	return m
}

// apply writes one row's variable values to the host. Goal columns are
// skipped. Failures are per input and reported through warn.
func (m inputMap) apply(h host.Host, iteration int, variables, row []string, goals int, warn func(string)) {
	for j, name := range variables {
		kind, ok := m[name]
		if !ok {
			continue
		}
		col := goals + j
		if col >= len(row) {
			warn(fmt.Sprintf("row %d: missing value for %q", iteration, name))
			continue
		}
		v, err := host.ParseValue(kind, row[col])
		if err != nil {
			warn(fmt.Sprintf("row %d: %q: %v (input left unchanged)", iteration, name, err))
			continue
		}
		if err := h.SetInput(name, v); err != nil {
			warn(fmt.Sprintf("row %d: setting %q: %v", iteration, name, err))
		}
	}
}

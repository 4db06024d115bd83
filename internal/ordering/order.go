// Package ordering computes the playback order of hall-of-fame solutions from a
// user-composed chain of sort keys.
package ordering

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/capturefinery/internal/refinery"
)

// ErrUnknownParameter is returned when a sort key names neither a goal nor a variable.
var ErrUnknownParameter = errors.New("unknown sort parameter")

// roundingScale rounds key values to 6 decimal places before comparison so
// representation noise ("3.0000001" vs "3.0") does not reorder solutions.
const roundingScale = 1e6

// Identity returns [0, 1, ..., n-1].
func Identity(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

// ComputeOrder returns a permutation of [0, n) sorting the solutions ascending by
// the named columns: the first name is the primary key and each following name
// breaks ties on the previous ones. Remaining ties keep rank order.
//
// An empty name list, or a single unset ("") entry, yields the identity order.
// Unset entries in longer lists are ignored.
func ComputeOrder(hof *refinery.HallOfFame, names []string) ([]int, error) {
	if hof == nil {
		return nil, nil
	}
	n := len(hof.Solutions)

	var columns []int
	for _, name := range names {
		if name == "" {
			continue
		}
		col, err := ColumnIndex(hof, name)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	if len(columns) == 0 {
		return Identity(n), nil
	}

	// Parse each key once rather than inside the comparator.
	keys := make([][]float64, n)
	for i, row := range hof.Solutions {
		k := make([]float64, len(columns))
		for j, col := range columns {
			if col < len(row) {
				k[j] = keyValue(row[col])
			} else {
				k[j] = math.Inf(1)
			}
		}
		keys[i] = k
	}

	order := Identity(n)
	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := keys[order[a]], keys[order[b]]
		for j := range ka {
			if ka[j] != kb[j] {
				return ka[j] < kb[j]
			}
		}
		return false
	})
	return order, nil
}

// ColumnIndex resolves a parameter name to its row column: goals are searched
// first, then variables (offset by the number of goals).
func ColumnIndex(hof *refinery.HallOfFame, name string) (int, error) {
	for i, g := range hof.Goals {
		if g == name {
			return i, nil
		}
	}
	for i, v := range hof.Variables {
		if v == name {
			return len(hof.Goals) + i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrUnknownParameter, name)
}

// keyValue parses a cell as a rounded float. Booleans map to 0/1; anything
// unparseable sorts after every number.
func keyValue(s string) float64 {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) {
		return math.Round(f*roundingScale) / roundingScale
	}
	if b, err := strconv.ParseBool(s); err == nil {
		if b {
			return 1
		}
		return 0
	}
	return math.Inf(1)
}

package ordering

import (
	"fmt"
	"strings"

	"github.com/banshee-data/capturefinery/internal/refinery"
)

// Level is one key of a sort chain. Number is 1-based; an empty Parameter
// means the level has not been bound yet. Candidates lists the parameters the
// level may still choose from.
type Level struct {
	Number     int      `json:"number"`
	Parameter  string   `json:"parameter,omitempty"`
	Candidates []string `json:"candidates"`
}

// Chain is an ordered prefix chain of sort levels over a fixed parameter set.
// A level's candidates never include a parameter bound at a lower level, and
// clearing a level drops every level after it.
type Chain struct {
	parameters []string
	levels     []Level
}

// NewChain creates an empty chain over the hall of fame's goals and variables.
func NewChain(hof *refinery.HallOfFame) *Chain {
	var params []string
	if hof != nil {
		params = hof.Parameters()
	}
	return &Chain{parameters: params}
}

// ParseChain builds a chain from a comma-separated list of parameter names,
// binding one level per name. An empty list yields an empty chain.
func ParseChain(hof *refinery.HallOfFame, list string) (*Chain, error) {
	c := NewChain(hof)
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !c.AddLevel() {
			return nil, fmt.Errorf("too many sort levels: at most %d for %d parameters", len(c.parameters)-1, len(c.parameters))
		}
		if err := c.SetParameter(len(c.levels), name); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Levels returns a copy of the chain's levels.
func (c *Chain) Levels() []Level {
	out := make([]Level, len(c.levels))
	for i, l := range c.levels {
		l.Candidates = append([]string(nil), l.Candidates...)
		out[i] = l
	}
	return out
}

// Len returns the number of levels.
func (c *Chain) Len() int { return len(c.levels) }

// Parameters returns the bound parameter names in level order, ready for ComputeOrder.
func (c *Chain) Parameters() []string {
	var names []string
	for _, l := range c.levels {
		if l.Parameter != "" {
			names = append(names, l.Parameter)
		}
	}
	return names
}

// AddLevel appends an unbound level while unused parameters remain, that is
// while the chain has fewer than len(parameters)-1 levels. It reports whether
// a level was added.
func (c *Chain) AddLevel() bool {
	if len(c.levels) >= len(c.parameters)-1 {
		return false
	}
	c.levels = append(c.levels, Level{Number: len(c.levels) + 1})
	c.recompute()
	return true
}

// RemoveLevelsFrom truncates the chain to start levels and clears the
// parameter of the new last level. start <= 0 empties the chain; a start past
// the end leaves the chain unchanged.
func (c *Chain) RemoveLevelsFrom(start int) {
	if start > len(c.levels) {
		return
	}
	if start <= 0 {
		c.levels = nil
		return
	}
	c.levels = c.levels[:start]
	c.levels[start-1].Parameter = ""
	c.recompute()
}

// SetParameter binds name at the given 1-based level. The name must be one of
// the level's candidates. Later levels that become invalid are cleared.
func (c *Chain) SetParameter(level int, name string) error {
	if level < 1 || level > len(c.levels) {
		return fmt.Errorf("sort level %d out of range (have %d)", level, len(c.levels))
	}
	l := &c.levels[level-1]
	if !contains(l.Candidates, name) {
		if contains(c.parameters, name) {
			return fmt.Errorf("parameter %q already used before level %d", name, level)
		}
		return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	l.Parameter = name
	c.recompute()

	for i := level; i < len(c.levels); i++ {
		if p := c.levels[i].Parameter; p != "" && !contains(c.levels[i].Candidates, p) {
			c.RemoveLevelsFrom(i + 1)
			break
		}
	}
	return nil
}

// recompute rebuilds every level's candidate set from the bindings below it.
func (c *Chain) recompute() {
	used := make(map[string]bool, len(c.levels))
	for i := range c.levels {
		cands := make([]string, 0, len(c.parameters))
		for _, p := range c.parameters {
			if !used[p] {
				cands = append(cands, p)
			}
		}
		c.levels[i].Number = i + 1
		c.levels[i].Candidates = cands
		if p := c.levels[i].Parameter; p != "" {
			used[p] = true
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

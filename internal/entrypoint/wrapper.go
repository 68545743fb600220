package entrypoint

import (
	"encoding/json"
	"fmt"
	"plugin"

	"harness/internal/cradle"
)

// Symbols is the set of callable values a built plugin may export, looked
// up by entry-point name after the repo launcher has compiled the checked
// out source file with `go build -buildmode=plugin`. Wrap adapts whichever
// shape was selected to the uniform cradle.Cradle shape.
type Symbols struct {
	Plugin *plugin.Plugin
}

// Wrap adapts the selected entry point to a cradle.Cradle. For a
// cradle-class record, the exported symbol is expected to already satisfy
// cradle.Cradle and is returned unchanged (per spec.md 4.3: "If the
// selected record is a cradle-class, no adaptation is needed"). For a
// function or main-block record, the exported symbol is expected to be a
// func() (int, error) and is wrapped via cradle.NewFunc. For a
// callable-class record, the exported symbol is expected to be a
// func() cradle.Cradle factory and is invoked once to obtain the instance.
func Wrap(sym Symbols, ep EntryPoint, targetConfig json.RawMessage) (cradle.Cradle, error) {
	switch ep.Kind {
	case KindCradleClass:
		v, err := sym.Plugin.Lookup(ep.Name)
		if err != nil {
			return nil, fmt.Errorf("lookup cradle-class symbol %s: %w", ep.Name, err)
		}
		c, ok := v.(cradle.Cradle)
		if !ok {
			return nil, fmt.Errorf("symbol %s does not implement cradle.Cradle", ep.Name)
		}
		return c, nil

	case KindMainBlock, KindMainLike, KindFunction:
		v, err := sym.Plugin.Lookup(ep.Name)
		if err != nil {
			return nil, fmt.Errorf("lookup function symbol %s: %w", ep.Name, err)
		}
		fn, ok := v.(func() (int, error))
		if !ok {
			return nil, fmt.Errorf("symbol %s is not a func() (int, error)", ep.Name)
		}
		return cradle.NewFunc(targetConfig, fn), nil

	case KindCallableClass:
		v, err := sym.Plugin.Lookup(ep.Name)
		if err != nil {
			return nil, fmt.Errorf("lookup callable-class symbol %s: %w", ep.Name, err)
		}
		factory, ok := v.(func() cradle.Cradle)
		if !ok {
			return nil, fmt.Errorf("symbol %s is not a func() cradle.Cradle factory", ep.Name)
		}
		return factory(), nil

	default:
		return nil, fmt.Errorf("entry point kind %q is not adaptable (top-level-call and ineligible-function records are never selected)", ep.Kind)
	}
}

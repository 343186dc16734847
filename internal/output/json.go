package output

import (
	"encoding/json"

	"github.com/roboforge/roboforge/internal/core"
	"github.com/roboforge/roboforge/internal/core/engine"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) FormatParts(parts []core.Part) (string, error) {
	return f.marshal(parts)
}

func (f *JSONFormatter) FormatPartsList(items []core.PartsListItem) (string, error) {
	return f.marshal(items)
}

func (f *JSONFormatter) FormatBuilds(builds []core.BuildConfig) (string, error) {
	return f.marshal(builds)
}

func (f *JSONFormatter) FormatBuild(build *core.BuildConfig) (string, error) {
	if build == nil {
		return "", nil
	}
	return f.marshal(build)
}

func (f *JSONFormatter) FormatForge(result *engine.ForgeResult) (string, error) {
	if result == nil {
		return "", nil
	}
	return f.marshal(result)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}

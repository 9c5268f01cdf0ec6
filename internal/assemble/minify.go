package assemble

import (
	"errors"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Minifier shrinks a JavaScript module. Implementations must not change semantics.
type Minifier interface {
	Minify(name string, src []byte) ([]byte, error)
}

// ESBuildMinifier minifies modules with esbuild's transform API. The module
// format is preserved.
type ESBuildMinifier struct{}

func (ESBuildMinifier) Minify(name string, src []byte) ([]byte, error) {
	result := api.Transform(string(src), api.TransformOptions{
		Sourcefile:        name,
		Loader:            api.LoaderJS,
		Target:            api.ES2022,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		LogLevel:          api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, m := range result.Errors {
			msgs = append(msgs, m.Text)
		}
		return nil, errors.New(strings.Join(msgs, "; "))
	}
	return result.Code, nil
}

package jsengine

import (
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// transpileError carries esbuild's diagnostics for a TS statement that
// could not be stripped of its types.
type transpileError struct {
	messages []string
}

func (e *transpileError) Error() string {
	return "SyntaxError: " + strings.Join(e.messages, "; ")
}

// stripTypes turns one TypeScript statement into plain JavaScript. Type
// errors are never reported; only syntax errors fail.
func stripTypes(src string) (string, error) {
	res := api.Transform(src, api.TransformOptions{
		Loader:     api.LoaderTS,
		Target:     api.ES2020,
		Sourcefile: "lesson.ts",
	})
	if len(res.Errors) > 0 {
		msgs := make([]string, len(res.Errors))
		for i, m := range res.Errors {
			msgs[i] = m.Text
		}
		return "", &transpileError{messages: msgs}
	}
	return string(res.Code), nil
}

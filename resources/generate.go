// Bundles the stylesheet and script in resources/ into static/. Run from
// the repository root:
//
//	go run ./resources
package main

import (
	"os"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
)

func main() {
	dir, err := os.Getwd()
	if err != nil {
		panic(err)
	}

	outDir, err := filepath.Abs("./static/")
	if err != nil {
		panic(err)
	}

	res := api.Build(api.BuildOptions{
		Bundle:            true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		MinifyWhitespace:  true,
		Write:             true,
		AbsWorkingDir:     dir,
		EntryPoints:       []string{"resources/history.js", "resources/history.css"},
		Outdir:            outDir,
	})

	if len(res.Errors) > 0 {
		panic(res.Errors[0].Text)
	}
}

package assemble

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"git.home.luguber.info/inful/edgebundle/internal/routes"
)

var (
	//go:embed router.js.tmpl
	routerSource string
	//go:embed entry.js.tmpl
	entrySource string

	routerTemplate = template.Must(template.New("router").Parse(routerSource))
	entryTemplate  = template.Must(template.New("entry").Parse(entrySource))
)

type driverFunction struct {
	Ident  string
	Key    string // JSON-quoted function name
	Import string // JSON-quoted module specifier
}

type driverData struct {
	Version    string
	Routes     string
	Filesystem string
	Functions  []driverFunction
}

// renderRouter produces the router driver module for table. entries maps
// function names to their entry module path relative to the worker directory.
func renderRouter(version string, table *routes.Table, entries []functionEntry) ([]byte, error) {
	wire, err := json.Marshal(table.Wire())
	if err != nil {
		return nil, fmt.Errorf("encode route table: %w", err)
	}
	fs, err := json.Marshal(table.FilesystemIndex())
	if err != nil {
		return nil, fmt.Errorf("encode filesystem index: %w", err)
	}
	data := driverData{Version: version, Routes: string(wire), Filesystem: string(fs)}
	for i, e := range entries {
		key, _ := json.Marshal(e.Name)
		spec, _ := json.Marshal("./" + e.Module)
		data.Functions = append(data.Functions, driverFunction{
			Ident:  fmt.Sprintf("fn%d", i),
			Key:    string(key),
			Import: string(spec),
		})
	}
	var b strings.Builder
	if err := routerTemplate.Execute(&b, data); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func renderEntry(version string) ([]byte, error) {
	var b strings.Builder
	if err := entryTemplate.Execute(&b, driverData{Version: version}); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

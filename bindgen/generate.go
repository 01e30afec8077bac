package bindgen

import (
	"bytes"
	"go/format"
	"path/filepath"
	"text/template"

	"github.com/wippyai/nostr-wasm/bindings"
	"github.com/wippyai/nostr-wasm/errors"
)

var tableTemplate = template.Must(template.New("tables").Parse(`// Code generated by bindgen from {{.Source}}. DO NOT EDIT.

package {{.Package}}

// Imports maps host functions to the import symbols of the current build.
var Imports = {{.Qualifier}}ImportTable{
	Module: {{printf "%q" .Imports.Module}},
	Abort: {{printf "%q" .Imports.Abort}},
	Memcpy: {{printf "%q" .Imports.Memcpy}},
	Resize: {{printf "%q" .Imports.Resize}},
	Write: {{printf "%q" .Imports.Write}},
	FdSeek: {{printf "%q" .Imports.FdSeek}},
	FdClose: {{printf "%q" .Imports.FdClose}},
	FdSeekResult: {{.Imports.FdSeekResult}},
	FdCloseResult: {{.Imports.FdCloseResult}},
}

// Exports maps module exports to the export symbols of the current build.
var Exports = {{.Qualifier}}ExportTable{
	Memory: {{printf "%q" .Exports.Memory}},
	Init: {{printf "%q" .Exports.Init}},
	Malloc: {{printf "%q" .Exports.Malloc}},
	Free: {{printf "%q" .Exports.Free}},
	ContextCreate: {{printf "%q" .Exports.ContextCreate}},
	ContextRandomize: {{printf "%q" .Exports.ContextRandomize}},
	KeypairCreate: {{printf "%q" .Exports.KeypairCreate}},
	KeypairXOnlyPub: {{printf "%q" .Exports.KeypairXOnlyPub}},
	XOnlyPubkeyParse: {{printf "%q" .Exports.XOnlyPubkeyParse}},
	XOnlyPubkeySerialize: {{printf "%q" .Exports.XOnlyPubkeySerialize}},
	SchnorrSign32: {{printf "%q" .Exports.SchnorrSign32}},
	SchnorrVerify: {{printf "%q" .Exports.SchnorrVerify}},
	SHA256Initialize: {{printf "%q" .Exports.SHA256Initialize}},
	SHA256Write: {{printf "%q" .Exports.SHA256Write}},
	SHA256Finalize: {{printf "%q" .Exports.SHA256Finalize}},
}
`))

// Generate renders the tables as a gofmt'ed Go file in package pkg. Outside
// package bindings the table types are qualified with the bindings import.
func (g *Glue) Generate(pkg string) ([]byte, error) {
	imp, exp, err := g.Tables()
	if err != nil {
		return nil, err
	}
	if pkg == "" {
		pkg = "bindings"
	}

	data := struct {
		Source    string
		Package   string
		Qualifier string
		Imports   bindings.ImportTable
		Exports   bindings.ExportTable
	}{
		Source:  filepath.Base(g.Source),
		Package: pkg,
		Imports: imp,
		Exports: exp,
	}

	var buf bytes.Buffer
	if pkg != "bindings" {
		data.Qualifier = "bindings."
	}
	if err := tableTemplate.Execute(&buf, data); err != nil {
		return nil, errors.Wrap(errors.PhaseGenerate, errors.KindInvalidInput, err, "render tables")
	}

	src := buf.Bytes()
	if data.Qualifier != "" {
		src = withBindingsImport(src)
	}

	out, err := format.Source(src)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseGenerate, errors.KindInvalidInput, err, "format generated source")
	}
	return out, nil
}

const bindingsImport = `import "github.com/wippyai/nostr-wasm/bindings"`

func withBindingsImport(src []byte) []byte {
	i := bytes.Index(src, []byte("\n\n// Imports"))
	if i < 0 {
		return src
	}
	var out bytes.Buffer
	out.Write(src[:i])
	out.WriteString("\n\n" + bindingsImport)
	out.Write(src[i:])
	return out.Bytes()
}

package bindgen

import (
	"sort"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"

	"github.com/wippyai/nostr-wasm/bindings"
	"github.com/wippyai/nostr-wasm/errors"
)

// Glue is what Parse extracted from an emscripten glue script.
type Glue struct {
	// Imports maps glue function names (_abort, _fd_write, ...) to import symbols.
	Imports map[string]string
	// Exports maps renamed exports (malloc, keypair_create, memory, ...) to export symbols.
	Exports map[string]string

	Source        string
	ImportModule  string
	InitSymbol    string
	FdSeekResult  int32
	FdCloseResult int32

	haveSeek  bool
	haveClose bool
}

const exportsObject = "wasmExports"

// glue import function -> host import
var importRenames = map[string]string{
	"_abort":                  "abort",
	"_emscripten_memcpy_js":   "memcpy",
	"_emscripten_resize_heap": "resize",
	"_fd_write":               "write",
	"_fd_seek":                "fd_seek",
	"_fd_close":               "fd_close",
}

// renameExport turns _secp256k1_keypair_create into keypair_create and
// wasmMemory into memory.
func renameExport(name string) string {
	if name == "wasmMemory" {
		return "memory"
	}
	name = strings.TrimPrefix(name, "_")
	return strings.TrimPrefix(name, "secp256k1_")
}

// Parse reads an emscripten glue script.
func Parse(source string, src []byte) (*Glue, error) {
	prog, err := parser.ParseFile(nil, source, src, 0)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseGenerate, errors.KindInvalidInput, err, "parse glue "+source)
	}

	g := &Glue{
		Source:  source,
		Imports: make(map[string]string),
		Exports: make(map[string]string),
	}

	for _, stmt := range prog.Body {
		switch s := stmt.(type) {
		case *ast.ExpressionStatement:
			g.collectExportCallbacks(s.Expression)
		case *ast.VariableStatement:
			g.collectBindings(s.List)
		case *ast.LexicalDeclaration:
			g.collectBindings(s.List)
		case *ast.FunctionDeclaration:
			g.collectFunction(s.Function)
		}
	}

	return g, nil
}

// collectExportCallbacks looks for wasmExports assignments inside callbacks
// passed to a top-level call, e.g. instantiate(...).then(output => {...}).
func (g *Glue) collectExportCallbacks(expr ast.Expression) {
	call, ok := expr.(*ast.CallExpression)
	if !ok {
		return
	}
	for _, arg := range call.ArgumentList {
		var body *ast.BlockStatement
		switch fn := arg.(type) {
		case *ast.ArrowFunctionLiteral:
			body, _ = fn.Body.(*ast.BlockStatement)
		case *ast.FunctionLiteral:
			body = fn.Body
		}
		if body == nil {
			continue
		}
		for _, stmt := range body.List {
			es, ok := stmt.(*ast.ExpressionStatement)
			if !ok {
				continue
			}
			g.collectExportAssign(es.Expression)
		}
	}
}

func (g *Glue) collectExportAssign(expr ast.Expression) {
	assign, ok := expr.(*ast.AssignExpression)
	if !ok {
		return
	}
	target, ok := assign.Left.(*ast.Identifier)
	if !ok {
		return
	}

	// a = Module["a"] = wasmExports["x"]
	right := assign.Right
	for {
		inner, ok := right.(*ast.AssignExpression)
		if !ok {
			break
		}
		right = inner.Right
	}

	if symbol, ok := exportSymbol(right); ok {
		g.Exports[renameExport(target.Name.String())] = symbol
	}
}

// exportSymbol matches wasmExports["x"] and wasmExports.x.
func exportSymbol(expr ast.Expression) (string, bool) {
	switch e := expr.(type) {
	case *ast.BracketExpression:
		if !isIdent(e.Left, exportsObject) {
			return "", false
		}
		if lit, ok := e.Member.(*ast.StringLiteral); ok {
			return lit.Value.String(), true
		}
	case *ast.DotExpression:
		if isIdent(e.Left, exportsObject) {
			return e.Identifier.Name.String(), true
		}
	}
	return "", false
}

func isIdent(expr ast.Expression, name string) bool {
	id, ok := expr.(*ast.Identifier)
	return ok && id.Name.String() == name
}

func (g *Glue) collectBindings(list []*ast.Binding) {
	for _, b := range list {
		id, ok := b.Target.(*ast.Identifier)
		if !ok || b.Initializer == nil {
			continue
		}

		switch name := id.Name.String(); name {
		case "wasmImports":
			g.collectImports(b.Initializer)
		case "imports", "info":
			g.collectImportModule(b.Initializer)
		case "_fd_seek", "_fd_close":
			g.collectStub(name, b.Initializer)
		}
	}
}

func (g *Glue) collectImports(expr ast.Expression) {
	obj, ok := expr.(*ast.ObjectLiteral)
	if !ok {
		return
	}
	for _, prop := range obj.Value {
		switch p := prop.(type) {
		case *ast.PropertyKeyed:
			key, ok := propertyName(p.Key)
			if !ok {
				continue
			}
			if fn, ok := p.Value.(*ast.Identifier); ok {
				g.Imports[fn.Name.String()] = key
			}
		case *ast.PropertyShort:
			name := p.Name.Name.String()
			g.Imports[name] = name
		}
	}
}

func (g *Glue) collectImportModule(expr ast.Expression) {
	obj, ok := expr.(*ast.ObjectLiteral)
	if !ok {
		return
	}
	for _, prop := range obj.Value {
		p, ok := prop.(*ast.PropertyKeyed)
		if !ok || !isIdent(p.Value, "wasmImports") {
			continue
		}
		if key, ok := propertyName(p.Key); ok {
			g.ImportModule = key
		}
	}
}

func propertyName(expr ast.Expression) (string, bool) {
	switch k := expr.(type) {
	case *ast.StringLiteral:
		return k.Value.String(), true
	case *ast.Identifier:
		return k.Name.String(), true
	case *ast.NumberLiteral:
		return k.Literal, true
	}
	return "", false
}

func (g *Glue) collectFunction(fn *ast.FunctionLiteral) {
	if fn == nil || fn.Name == nil {
		return
	}

	switch name := fn.Name.Name.String(); name {
	case "_fd_seek", "_fd_close":
		g.collectStub(name, fn)
	case "initRuntime":
		if fn.Body == nil {
			return
		}
		for _, stmt := range fn.Body.List {
			es, ok := stmt.(*ast.ExpressionStatement)
			if !ok {
				continue
			}
			call, ok := es.Expression.(*ast.CallExpression)
			if !ok {
				continue
			}
			if symbol, ok := exportSymbol(call.Callee); ok {
				g.InitSymbol = symbol
			}
		}
	}
}

// collectStub records the constant a stub returns, from either
// `fd => 52` or `function _fd_seek(...) { ...; return 70; }`.
func (g *Glue) collectStub(name string, expr ast.Expression) {
	var result ast.Expression

	switch fn := expr.(type) {
	case *ast.ArrowFunctionLiteral:
		switch body := fn.Body.(type) {
		case *ast.ExpressionBody:
			result = body.Expression
		case *ast.BlockStatement:
			result = lastReturn(body)
		}
	case *ast.FunctionLiteral:
		result = lastReturn(fn.Body)
	}

	lit, ok := result.(*ast.NumberLiteral)
	if !ok {
		return
	}
	v, ok := numberValue(lit)
	if !ok {
		return
	}

	if name == "_fd_seek" {
		g.FdSeekResult, g.haveSeek = v, true
	} else {
		g.FdCloseResult, g.haveClose = v, true
	}
}

func lastReturn(body *ast.BlockStatement) ast.Expression {
	if body == nil {
		return nil
	}
	var out ast.Expression
	for _, stmt := range body.List {
		if ret, ok := stmt.(*ast.ReturnStatement); ok {
			out = ret.Argument
		}
	}
	return out
}

func numberValue(lit *ast.NumberLiteral) (int32, bool) {
	switch v := lit.Value.(type) {
	case int64:
		return int32(v), true
	case float64:
		if v == float64(int32(v)) {
			return int32(v), true
		}
	}
	return 0, false
}

// Tables checks the parsed glue against what the host implements and returns
// the typed tables.
func (g *Glue) Tables() (bindings.ImportTable, bindings.ExportTable, error) {
	var imp bindings.ImportTable
	var exp bindings.ExportTable

	if g.ImportModule == "" {
		return imp, exp, g.fail("no import namespace wrapping wasmImports")
	}
	if g.InitSymbol == "" {
		return imp, exp, g.fail("no static initializer call in initRuntime")
	}
	if !g.haveSeek || !g.haveClose {
		return imp, exp, g.fail("no constant result for _fd_seek or _fd_close")
	}

	byHost := make(map[string]string, len(g.Imports))
	for fn, symbol := range g.Imports {
		host, ok := importRenames[fn]
		if !ok {
			return imp, exp, g.fail("module imports %s (symbol %q), which the host does not provide", fn, symbol)
		}
		byHost[host] = symbol
	}

	imp = bindings.ImportTable{
		Module:        g.ImportModule,
		Abort:         byHost["abort"],
		Memcpy:        byHost["memcpy"],
		Resize:        byHost["resize"],
		Write:         byHost["write"],
		FdSeek:        byHost["fd_seek"],
		FdClose:       byHost["fd_close"],
		FdSeekResult:  g.FdSeekResult,
		FdCloseResult: g.FdCloseResult,
	}

	exp = bindings.ExportTable{
		Memory:               g.Exports["memory"],
		Init:                 g.InitSymbol,
		Malloc:               g.Exports["malloc"],
		Free:                 g.Exports["free"],
		ContextCreate:        g.Exports["context_create"],
		ContextRandomize:     g.Exports["context_randomize"],
		KeypairCreate:        g.Exports["keypair_create"],
		KeypairXOnlyPub:      g.Exports["keypair_xonly_pub"],
		XOnlyPubkeyParse:     g.Exports["xonly_pubkey_parse"],
		XOnlyPubkeySerialize: g.Exports["xonly_pubkey_serialize"],
		SchnorrSign32:        g.Exports["schnorrsig_sign32"],
		SchnorrVerify:        g.Exports["schnorrsig_verify"],
		SHA256Initialize:     g.Exports["sha256_initialize"],
		SHA256Write:          g.Exports["sha256_write"],
		SHA256Finalize:       g.Exports["sha256_finalize"],
	}

	if err := imp.Validate(); err != nil {
		return imp, exp, g.fail("%v", err)
	}
	if err := exp.Validate(); err != nil {
		return imp, exp, g.fail("%v", err)
	}
	return imp, exp, nil
}

// Unused lists exports the tables do not bind, sorted.
func (g *Glue) Unused() []string {
	known := map[string]bool{"memory": true}
	for _, s := range (bindings.ExportTable{}).Functions() {
		known[s.Name] = true
	}

	var out []string
	for name, symbol := range g.Exports {
		if !known[name] && symbol != g.InitSymbol {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (g *Glue) fail(format string, args ...any) error {
	return errors.New(errors.PhaseGenerate, errors.KindInvalidInput).
		Op(g.Source).
		Detail(format, args...).
		Build()
}

package bindings

import "fmt"

// ImportTable names the host functions the module imports. All of them live
// under the single Module namespace.
type ImportTable struct {
	Module  string
	Abort   string
	Memcpy  string
	Resize  string
	Write   string
	FdSeek  string
	FdClose string

	// Constant results of the file stubs the host does not implement.
	FdSeekResult  int32
	FdCloseResult int32
}

// ExportTable names the module exports the host calls.
type ExportTable struct {
	Memory string
	Init   string
	Malloc string
	Free   string

	ContextCreate        string
	ContextRandomize     string
	KeypairCreate        string
	KeypairXOnlyPub      string
	XOnlyPubkeyParse     string
	XOnlyPubkeySerialize string
	SchnorrSign32        string
	SchnorrVerify        string
	SHA256Initialize     string
	SHA256Write          string
	SHA256Finalize       string
}

// Symbol pairs a stable name with the symbol in the current build.
type Symbol struct {
	Name   string
	Symbol string
}

// Functions lists every function import.
func (t ImportTable) Functions() []Symbol {
	return []Symbol{
		{"abort", t.Abort},
		{"memcpy", t.Memcpy},
		{"resize", t.Resize},
		{"write", t.Write},
		{"fd_seek", t.FdSeek},
		{"fd_close", t.FdClose},
	}
}

// Functions lists every function export, the initializer first.
func (t ExportTable) Functions() []Symbol {
	return []Symbol{
		{"init", t.Init},
		{"malloc", t.Malloc},
		{"free", t.Free},
		{"context_create", t.ContextCreate},
		{"context_randomize", t.ContextRandomize},
		{"keypair_create", t.KeypairCreate},
		{"keypair_xonly_pub", t.KeypairXOnlyPub},
		{"xonly_pubkey_parse", t.XOnlyPubkeyParse},
		{"xonly_pubkey_serialize", t.XOnlyPubkeySerialize},
		{"schnorrsig_sign32", t.SchnorrSign32},
		{"schnorrsig_verify", t.SchnorrVerify},
		{"sha256_initialize", t.SHA256Initialize},
		{"sha256_write", t.SHA256Write},
		{"sha256_finalize", t.SHA256Finalize},
	}
}

// Validate checks that every symbol is set and that no two imports share one.
func (t ImportTable) Validate() error {
	if t.Module == "" {
		return fmt.Errorf("import module namespace is empty")
	}
	return distinct("import", t.Functions())
}

// Validate checks that every symbol is set and that no two exports share one.
func (t ExportTable) Validate() error {
	if t.Memory == "" {
		return fmt.Errorf("memory export is empty")
	}
	return distinct("export", t.Functions())
}

func distinct(kind string, syms []Symbol) error {
	seen := make(map[string]string, len(syms))
	for _, s := range syms {
		if s.Symbol == "" {
			return fmt.Errorf("%s %s has no symbol", kind, s.Name)
		}
		if prev, ok := seen[s.Symbol]; ok {
			return fmt.Errorf("%s symbol %q used by both %s and %s", kind, s.Symbol, prev, s.Name)
		}
		seen[s.Symbol] = s.Name
	}
	return nil
}

// Signature is the wasm32 shape of an import or export. Every value is i32.
type Signature struct {
	Params  int
	Results int
}

var signatures = map[string]Signature{
	// imports
	"abort":    {0, 0},
	"memcpy":   {3, 0},
	"resize":   {1, 1},
	"write":    {4, 1},
	"fd_seek":  {5, 1},
	"fd_close": {1, 1},

	// exports
	"init":                   {0, 0},
	"malloc":                 {1, 1},
	"free":                   {1, 0},
	"context_create":         {1, 1},
	"context_randomize":      {2, 1},
	"keypair_create":         {3, 1},
	"keypair_xonly_pub":      {4, 1},
	"xonly_pubkey_parse":     {3, 1},
	"xonly_pubkey_serialize": {3, 1},
	"schnorrsig_sign32":      {5, 1},
	"schnorrsig_verify":      {5, 1},
	"sha256_initialize":      {1, 0},
	"sha256_write":           {3, 0},
	"sha256_finalize":        {2, 0},
}

// SignatureOf returns the signature of an import or export by stable name.
func SignatureOf(name string) (Signature, bool) {
	s, ok := signatures[name]
	return s, ok
}

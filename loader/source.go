package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"

	"github.com/wippyai/nostr-wasm/errors"
)

// MaxModuleSize bounds how much of a source is read.
const MaxModuleSize = 64 << 20

const wasmContentType = "application/wasm"

type sourceKind uint8

const (
	kindBytes sourceKind = iota
	kindReader
	kindFile
	kindResponse
	kindPending
)

// FetchFunc resolves a response when the loader asks for it.
type FetchFunc func(ctx context.Context) (*http.Response, error)

// Source delivers the compiled module.
type Source struct {
	kind  sourceKind
	name  string
	data  []byte
	r     io.Reader
	resp  *http.Response
	fetch FetchFunc
}

// Bytes is an in-memory binary.
func Bytes(b []byte) Source {
	return Source{kind: kindBytes, name: "bytes", data: b}
}

// Reader reads the binary from r.
func Reader(r io.Reader) Source {
	return Source{kind: kindReader, name: "reader", r: r}
}

// File reads the binary from path when the source is opened.
func File(path string) Source {
	return Source{kind: kindFile, name: path}
}

// Response is an already resolved response.
func Response(resp *http.Response) Source {
	return Source{kind: kindResponse, name: "response", resp: resp}
}

// Fetch is a response that is resolved when the loader opens the source.
func Fetch(fn FetchFunc) Source {
	return Source{kind: kindPending, name: "fetch", fetch: fn}
}

// URL fetches url with client, or http.DefaultClient when client is nil.
func URL(url string, client *http.Client) Source {
	if client == nil {
		client = http.DefaultClient
	}
	src := Fetch(func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", wasmContentType)
		return client.Do(req)
	})
	src.name = url
	return src
}

// Name describes the source for logs.
func (s Source) Name() string { return s.name }

// Streaming reports whether the source takes the response path.
func (s Source) Streaming() bool {
	return s.kind == kindResponse || s.kind == kindPending
}

// open returns the module bytes.
func (s Source) open(ctx context.Context) ([]byte, error) {
	switch s.kind {
	case kindBytes:
		if len(s.data) == 0 {
			return nil, errors.Instantiation("empty module binary", nil)
		}
		return s.data, nil

	case kindReader:
		if s.r == nil {
			break
		}
		return readAll(s.r)

	case kindFile:
		f, err := os.Open(s.name)
		if err != nil {
			return nil, errors.Instantiation("open module binary", err)
		}
		defer f.Close()
		return readAll(f)

	case kindResponse:
		if s.resp == nil {
			break
		}
		return readResponse(s.resp)

	case kindPending:
		if s.fetch == nil {
			break
		}
		resp, err := s.fetch(ctx)
		if err != nil {
			return nil, errors.Instantiation("fetch "+s.name, err)
		}
		if resp == nil {
			return nil, errors.Instantiation("fetch "+s.name+" returned no response", nil)
		}
		return readResponse(resp)
	}
	return nil, errors.Instantiation("no module source", nil)
}

func readResponse(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Instantiation(fmt.Sprintf("response status %d", resp.StatusCode), nil)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != wasmContentType {
			return nil, errors.Instantiation(fmt.Sprintf("response content type %q, want %s", ct, wasmContentType), err)
		}
	}

	return readAll(resp.Body)
}

func readAll(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	n, err := buf.ReadFrom(io.LimitReader(r, MaxModuleSize+1))
	if err != nil {
		return nil, errors.Instantiation("read module binary", err)
	}
	if n > MaxModuleSize {
		return nil, errors.Instantiation(fmt.Sprintf("module binary exceeds %d bytes", MaxModuleSize), nil)
	}
	if n == 0 {
		return nil, errors.Instantiation("empty module binary", nil)
	}
	return buf.Bytes(), nil
}

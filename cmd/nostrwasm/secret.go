package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/wippyai/nostr-wasm/abi"
)

// secretKey decodes flag, or reads a hex key from stdin when flag is empty.
// A terminal stdin is read without echo.
func secretKey(flag string, s streams) ([]byte, error) {
	if flag != "" {
		return decodeArg("secret key", flag, abi.PrivateKeyLen)
	}

	if f, ok := s.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(s.stderr, "secret key: ")
		line, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(s.stderr)
		if err != nil {
			return nil, fmt.Errorf("read secret key: %w", err)
		}
		return decodeArg("secret key", string(line), abi.PrivateKeyLen)
	}

	line, err := bufio.NewReader(s.stdin).ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("read secret key: %w", err)
	}
	return decodeArg("secret key", strings.TrimSpace(line), abi.PrivateKeyLen)
}

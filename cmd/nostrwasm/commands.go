package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	nostrwasm "github.com/wippyai/nostr-wasm"
	"github.com/wippyai/nostr-wasm/abi"
	"github.com/wippyai/nostr-wasm/nostr"
)

type keygenCmd struct{}

type pubkeyCmd struct {
	SecretKey string `arg:"--sk" help:"hex secret key"`
}

type signCmd struct {
	Hash      string `arg:"positional,required" help:"hex message hash (32 bytes)"`
	SecretKey string `arg:"--sk" help:"hex secret key"`
	Entropy   string `arg:"--entropy" help:"hex auxiliary randomness (32 bytes), random when empty"`
}

type verifyCmd struct {
	Sig    string `arg:"positional,required" help:"hex signature (64 bytes)"`
	Hash   string `arg:"positional,required" help:"hex message hash (32 bytes)"`
	PubKey string `arg:"positional,required" help:"hex x-only public key (32 bytes)"`
}

type hashCmd struct {
	Text string `arg:"positional" help:"text to hash, stdin when empty"`
}

type eventCmd struct {
	Sign   *eventSignCmd   `arg:"subcommand:sign" help:"build, finalize and print an event"`
	Verify *eventVerifyCmd `arg:"subcommand:verify" help:"verify an event read from a file or stdin"`
}

type eventSignCmd struct {
	SecretKey string   `arg:"--sk" help:"hex secret key"`
	Kind      int      `arg:"--kind" default:"1" help:"event kind"`
	Content   string   `arg:"--content" help:"event content"`
	Tags      []string `arg:"--tag,separate" help:"tag as comma-separated values, repeatable"`
	CreatedAt int64    `arg:"--created-at" help:"unix time, now when zero"`
	Entropy   string   `arg:"--entropy" help:"hex auxiliary randomness (32 bytes)"`
}

type eventVerifyCmd struct {
	File string `arg:"positional" help:"event JSON file, stdin when empty"`
}

// decodeArg accepts either hex case on the command line.
func decodeArg(field, s string, n int) ([]byte, error) {
	return nostr.DecodeHex("parse arguments", field, strings.ToLower(strings.TrimSpace(s)), n)
}

func optionalArg(field, s string, n int) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return decodeArg(field, s, n)
}

func (keygenCmd) run(ctx context.Context, m *nostrwasm.Module, s streams) error {
	sk, err := m.GenerateSecretKey()
	if err != nil {
		return err
	}
	pk, err := m.PublicKey(ctx, sk)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.stdout, "sk %s\npk %s\n", nostr.EncodeHex(sk), nostr.EncodeHex(pk))
	return nil
}

func (c *pubkeyCmd) run(ctx context.Context, m *nostrwasm.Module, s streams) error {
	sk, err := secretKey(c.SecretKey, s)
	if err != nil {
		return err
	}
	pk, err := m.PublicKey(ctx, sk)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.stdout, nostr.EncodeHex(pk))
	return nil
}

func (c *signCmd) run(ctx context.Context, m *nostrwasm.Module, s streams) error {
	hash, err := decodeArg("hash", c.Hash, abi.MessageHashLen)
	if err != nil {
		return err
	}
	entropy, err := optionalArg("entropy", c.Entropy, abi.EntropyLen)
	if err != nil {
		return err
	}
	sk, err := secretKey(c.SecretKey, s)
	if err != nil {
		return err
	}

	sig, err := m.Sign(ctx, sk, hash, entropy)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.stdout, nostr.EncodeHex(sig))
	return nil
}

func (c *verifyCmd) run(ctx context.Context, m *nostrwasm.Module, s streams) error {
	sig, err := decodeArg("sig", c.Sig, abi.SignatureLen)
	if err != nil {
		return err
	}
	hash, err := decodeArg("hash", c.Hash, abi.MessageHashLen)
	if err != nil {
		return err
	}
	pk, err := decodeArg("pubkey", c.PubKey, abi.XOnlyPubkeyLen)
	if err != nil {
		return err
	}

	ok, err := m.Verify(ctx, sig, hash, pk)
	if err != nil {
		return err
	}
	return report(s.stdout, ok, "")
}

func (c *hashCmd) run(ctx context.Context, m *nostrwasm.Module, s streams) error {
	data := []byte(c.Text)
	if c.Text == "" {
		var err error
		if data, err = io.ReadAll(s.stdin); err != nil {
			return err
		}
	}

	digest, err := m.SHA256(ctx, data)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.stdout, nostr.EncodeHex(digest))
	return nil
}

func (c *eventSignCmd) run(ctx context.Context, m *nostrwasm.Module, s streams) error {
	entropy, err := optionalArg("entropy", c.Entropy, abi.EntropyLen)
	if err != nil {
		return err
	}
	sk, err := secretKey(c.SecretKey, s)
	if err != nil {
		return err
	}

	ev := &nostr.Event{
		CreatedAt: c.CreatedAt,
		Kind:      c.Kind,
		Tags:      make([][]string, 0, len(c.Tags)),
		Content:   c.Content,
	}
	if ev.CreatedAt == 0 {
		ev.CreatedAt = time.Now().Unix()
	}
	for _, t := range c.Tags {
		ev.Tags = append(ev.Tags, strings.Split(t, ","))
	}

	if err := m.Events.Finalize(ctx, ev, sk, entropy); err != nil {
		return err
	}

	enc := json.NewEncoder(s.stdout)
	enc.SetEscapeHTML(false)
	return enc.Encode(ev)
}

func (c *eventVerifyCmd) run(ctx context.Context, m *nostrwasm.Module, s streams) error {
	var r io.Reader = s.stdin
	if c.File != "" {
		f, err := os.Open(c.File)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var ev nostr.Event
	if err := json.NewDecoder(r).Decode(&ev); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	err := m.Events.Verify(ctx, &ev)
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return report(s.stdout, err == nil, detail)
}

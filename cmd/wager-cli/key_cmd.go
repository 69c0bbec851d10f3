package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"wagerchain/cmd/internal/passphrase"
	"wagerchain/crypto"
	"wagerchain/gateway/middleware"
)

const keystorePassEnv = "WAGER_KEYSTORE_PASSPHRASE"

var readPassphrase = func() (string, error) {
	return passphrase.NewSource(keystorePassEnv, "wallet keystore").Get()
}

func newCommandFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func runGenerateKey(args []string, stdout, stderr io.Writer) int {
	fs := newCommandFlagSet("generate-key", stderr)
	var out string
	fs.StringVar(&out, "out", "wallet.keystore", "keystore file to write")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := os.Stat(out); err == nil {
		return printCommandError(stderr, fmt.Sprintf("%s already exists; refusing to overwrite", out))
	}
	pass, err := readPassphrase()
	if err != nil {
		return printCommandError(stderr, err.Error())
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printCommandError(stderr, err.Error())
	}
	if err := crypto.SaveToKeystore(out, key, pass); err != nil {
		return printCommandError(stderr, fmt.Sprintf("failed to write keystore: %v", err))
	}
	fmt.Fprintf(stdout, "Generated new key and saved to %s\n", out)
	fmt.Fprintf(stdout, "Your address is: %s\n", key.PubKey().Address().String())
	return 0
}

func loadAddress(keyFile string) (string, error) {
	pass, err := readPassphrase()
	if err != nil {
		return "", err
	}
	key, err := crypto.LoadFromKeystore(keyFile, pass)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("keystore %s not found. run wager-cli generate-key first", keyFile)
		}
		return "", fmt.Errorf("failed to open keystore %s: %w", keyFile, err)
	}
	return key.PubKey().Address().String(), nil
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newCommandFlagSet("address", stderr)
	var keyFile string
	fs.StringVar(&keyFile, "key", "wallet.keystore", "keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, err := loadAddress(keyFile)
	if err != nil {
		return printCommandError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, addr)
	return 0
}

// runToken signs a bearer token locally with the gateway's shared secret.
func runToken(args []string, stdout, stderr io.Writer) int {
	fs := newCommandFlagSet("token", stderr)
	var (
		keyFile string
		address string
		secret  string
		issuer  string
		scopes  string
		ttl     time.Duration
	)
	fs.StringVar(&keyFile, "key", "", "keystore whose address becomes the token subject")
	fs.StringVar(&address, "address", "", "subject address when no keystore is given")
	fs.StringVar(&secret, "secret", "", "gateway HMAC secret (defaults to WAGER_GATEWAY_HMAC_SECRET)")
	fs.StringVar(&issuer, "issuer", "", "issuer claim expected by the gateway")
	fs.StringVar(&scopes, "scopes", middleware.ScopeRead+","+middleware.ScopeWrite, "comma separated scopes")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if keyFile != "" && address != "" {
		return printCommandError(stderr, "--key and --address are mutually exclusive")
	}
	if keyFile != "" {
		var err error
		if address, err = loadAddress(keyFile); err != nil {
			return printCommandError(stderr, err.Error())
		}
	}
	if address == "" {
		return printCommandError(stderr, "--key or --address is required")
	}
	subject, err := crypto.ParseAddress(address)
	if err != nil {
		return printCommandError(stderr, fmt.Sprintf("invalid address: %v", err))
	}
	if secret == "" {
		secret = os.Getenv("WAGER_GATEWAY_HMAC_SECRET")
	}
	var scopeList []string
	for _, scope := range strings.Split(scopes, ",") {
		if scope = strings.TrimSpace(scope); scope != "" {
			scopeList = append(scopeList, scope)
		}
	}
	token, err := middleware.IssueToken(secret, issuer, subject, scopeList, ttl)
	if err != nil {
		return printCommandError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, token)
	return 0
}

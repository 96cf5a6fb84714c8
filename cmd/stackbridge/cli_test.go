package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/stackbridge/cipher"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// run executes args on a fresh command tree and returns stdout only.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	stdout := new(bytes.Buffer)
	root.SetOut(stdout)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedPhrases := []string{
		"stackbridge",
		"--allow-host",
		"--store",
		"--config",
		"signin",
		"get",
		"put",
		"lookup",
		"encrypt",
		"decrypt",
		"keygen",
		"repl",
		"serve",
	}
	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("help output should contain %q", phrase)
		}
	}
}

func TestCLIServeHelp(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "serve", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, phrase := range []string{"--addr", "/files/{path}", "/profiles/{username}", "/metrics"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("serve help output should contain %q", phrase)
		}
	}
}

func TestCLIReplHelp(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "repl", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, phrase := range []string{"--history", "Command history", "History search"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("repl help output should contain %q", phrase)
		}
	}
}

func TestCLIKeygen(t *testing.T) {
	out, err := run(t, "keygen")
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	var keys map[string]string
	if err := json.Unmarshal([]byte(out), &keys); err != nil {
		t.Fatalf("keygen output is not JSON: %v\n%s", err, out)
	}
	pub, err := cipher.PublicKey(keys["privateKey"])
	if err != nil {
		t.Fatalf("private key: %v", err)
	}
	if pub != keys["publicKey"] {
		t.Errorf("public key does not match private key")
	}
}

func TestCLIRequiresAppDomain(t *testing.T) {
	_, err := run(t, "--store", "memory", "status")
	if err == nil || !strings.Contains(err.Error(), "AppDomain") {
		t.Errorf("expected AppDomain validation error, got %v", err)
	}
}

func TestCLIRejectsUnknownStore(t *testing.T) {
	_, err := run(t, "--store", "redis", "--app-domain", "https://app.example", "status")
	if err == nil || !strings.Contains(err.Error(), "Driver") {
		t.Errorf("expected Driver validation error, got %v", err)
	}
}

func TestCLISessionSurvivesCommands(t *testing.T) {
	priv, _, err := cipher.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	global := []string{
		"--store", "bbolt",
		"--store-path", filepath.Join(t.TempDir(), "session.db"),
		"--app-domain", "https://app.example",
	}
	with := func(args ...string) []string {
		return append(append([]string{}, global...), args...)
	}

	out, err := run(t, with("signin", "--private-key", priv, "--identity", "ID-1", "--hub-url", "https://hub.example")...)
	if err != nil {
		t.Fatalf("signin: %v", err)
	}
	if !strings.Contains(out, "ID-1") {
		t.Errorf("unexpected signin output %q", out)
	}

	var rep statusReport
	out, err = run(t, with("status")...)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("status output: %v", err)
	}
	if !rep.SignedIn || rep.IdentityAddress != "ID-1" || rep.HubURL != "https://hub.example" {
		t.Errorf("expected restored session, got %+v", rep)
	}
	if rep.AppDomain != "https://app.example" {
		t.Errorf("signin should default to --app-domain, got %q", rep.AppDomain)
	}

	if _, err := run(t, with("signout")...); err != nil {
		t.Fatalf("signout: %v", err)
	}
	out, err = run(t, with("status")...)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	rep = statusReport{}
	json.Unmarshal([]byte(out), &rep)
	if rep.SignedIn {
		t.Error("expected signed out after signout")
	}
}

func TestCLIEncryptDecrypt(t *testing.T) {
	priv, pub, err := cipher.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	global := []string{"--store", "memory", "--app-domain", "https://app.example"}

	out, err := run(t, append(global, "encrypt", "--public-key", pub, "--text", "attack at dawn")...)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	c, err := cipher.Parse([]byte(out))
	if err != nil {
		t.Fatalf("encrypt output: %v\n%s", err, out)
	}
	if !c.WasString {
		t.Error("text input should be marked as string")
	}

	out, err = run(t, append(global, "decrypt", "--private-key", priv, strings.TrimSpace(out))...)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if out != "attack at dawn" {
		t.Errorf("expected plaintext back, got %q", out)
	}
}

func TestCLIEncryptWithoutSession(t *testing.T) {
	_, err := run(t, "--store", "memory", "--app-domain", "https://app.example", "encrypt", "--text", "x")
	if err == nil || !strings.Contains(err.Error(), "not signed in") {
		t.Errorf("expected not signed in, got %v", err)
	}
}

func TestContentFrom(t *testing.T) {
	if c := contentFrom([]byte("hello"), false); c.IsBinary() {
		t.Error("utf-8 should be text")
	}
	if c := contentFrom([]byte("hello"), true); !c.IsBinary() {
		t.Error("forced binary should be binary")
	}
	if c := contentFrom([]byte{0xff, 0x00}, false); !c.IsBinary() {
		t.Error("invalid utf-8 should be binary")
	}
}

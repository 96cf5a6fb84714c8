package bundle

import (
	"fmt"
	"testing"

	"github.com/caffeineduck/stackbridge/language"
	"github.com/caffeineduck/stackbridge/language/javascript"
)

func TestScriptDefinesEntryPoints(t *testing.T) {
	s := Script()
	if s.Name == "" || s.Source == "" {
		t.Fatal("embedded bundle is empty")
	}

	rt := javascript.New()
	defer rt.Close()
	if err := rt.Eval(s); err != nil {
		t.Fatalf("eval: %v", err)
	}

	for _, name := range []string{"newSession", "isSignedIn", "signIn", "signOut", "getFile", "putFile", "encryptContent", "decryptContent", "lookupProfile"} {
		check := language.Script{
			Name:   "check.js",
			Source: fmt.Sprintf(`if (typeof %s.%s !== "function") throw new Error("missing");`, EntryPoint, name),
		}
		if err := rt.Eval(check); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}

	// Loading touches no capability, and there is no session until newSession.
	got, err := rt.Call(EntryPoint + ".isSignedIn")
	if err != nil {
		t.Fatalf("isSignedIn: %v", err)
	}
	if got != false {
		t.Errorf("expected false, got %v", got)
	}
}

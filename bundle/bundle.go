// Package bundle embeds the default business-logic script.
package bundle

import (
	_ "embed"

	"github.com/caffeineduck/stackbridge/language"
)

//go:embed blockstack.js
var source string

// EntryPoint is the global object the script defines.
const EntryPoint = "blockstack"

// Script returns the embedded bundle.
func Script() language.Script {
	return language.Script{Name: "blockstack.js", Source: source}
}

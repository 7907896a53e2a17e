//go:build tools

package devrun

// Pins the versions of the development tools invoked by the lint and vuln
// targets so they upgrade through go.mod like any other dependency.
import (
	_ "github.com/golangci/golangci-lint/cmd/golangci-lint"
	_ "golang.org/x/vuln/cmd/govulncheck"
)

//go:build tools
// +build tools

// Package tools pins the versions of the linter and the ginkgo test runner
// used by CI, which nothing in the module imports.
package tools

import (
	_ "github.com/golangci/golangci-lint/cmd/golangci-lint"
	_ "github.com/onsi/ginkgo/ginkgo"
)

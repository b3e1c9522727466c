//go:build !cgo

package main

// main is declared in tcplab_c.go for c-shared builds; that file is a cgo
// file, so this stub satisfies the main-package requirement when cgo is
// disabled (e.g. plain `go build ./...` with CGO_ENABLED=0).
func main() {}

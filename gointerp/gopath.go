package gointerp

import (
	"go/token"
	"io/fs"
	"strings"
	"unicode"
)

// goPath is the GOPATH the interpreter resolves source imports against.
// srcFS maps "<goPath>/src/<import path>" onto the private filesystem.
const goPath = "."

type srcFS struct {
	root fs.FS
}

func (s srcFS) Open(name string) (fs.File, error) {
	if name == "src" {
		return s.root.Open(".")
	}
	rest, ok := strings.CutPrefix(name, "src/")
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return s.root.Open(rest)
}

// identifier turns s into a valid, non-keyword Go identifier.
func identifier(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
			b.WriteRune(r)
		case unicode.IsDigit(r):
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	id := b.String()
	if id == "" || id == "_" {
		return "_pkg"
	}
	if token.IsKeyword(id) {
		id += "_"
	}
	return id
}

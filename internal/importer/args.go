// Package importer copies local files and directories into the managed
// share root, for seeding a fresh install from the command line.
package importer

import (
	"fmt"
	"os"
	"path/filepath"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

type PathKind int

const (
	PathFile PathKind = iota
	PathDir
)

// Source is a local path named on the command line.
type Source struct {
	FullPath string
	Kind     PathKind
}

// ParseArgs checks that every argument exists and is a regular file or a
// directory.
func ParseArgs(args []string) ([]Source, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<paths>", Cause: "no paths provided"}
	}

	var out []Source

	for _, raw := range args {
		p := filepath.Clean(raw)
		info, err := os.Stat(p)
		if err != nil {
			return nil, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
		}

		switch {
		case info.IsDir():
			out = append(out, Source{FullPath: p, Kind: PathDir})
		case info.Mode().IsRegular():
			out = append(out, Source{FullPath: p, Kind: PathFile})
		default:
			return nil, &ValidationError{Arg: raw, Cause: "not a regular file or directory"}
		}
	}

	return out, nil
}

package procspawn

import (
	"runtime"
	"strings"
)

// CommandLine renders an executable path and argument list as a single
// command line. On Windows, elements containing spaces are wrapped in double
// quotes so the line survives cmd.exe style splitting. On POSIX the elements
// are joined untouched: Start passes argv directly to the kernel without a
// shell, so quoting would corrupt the arguments.
func CommandLine(path string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quoteArg(path, runtime.GOOS == "windows"))
	for _, a := range args {
		parts = append(parts, quoteArg(a, runtime.GOOS == "windows"))
	}
	return strings.Join(parts, " ")
}

func quoteArg(arg string, windows bool) string {
	if !windows {
		return arg
	}
	if arg == "" {
		return `""`
	}
	if strings.ContainsAny(arg, " \t") && !strings.HasPrefix(arg, `"`) {
		return `"` + arg + `"`
	}
	return arg
}

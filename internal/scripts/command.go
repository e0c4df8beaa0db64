package scripts

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	defaultPythonBin = "python3"
	pythonBinEnv     = "TRIGGER_PYTHON_BIN"

	defaultRailsBin = "rails"
	railsBinEnv     = "TRIGGER_RAILS_BIN"
)

// buildInvocation resolves the binary and argument vector for a script.
//
// The default mode passes argv straight to the spawn primitive. The Rails
// runner mode is the one narrow case that goes through a shell: the
// version-managed ruby is only on PATH after the rbenv init script has been
// evaluated, which cannot happen in a login-less direct spawn. User
// arguments are shell-quoted there, never interpolated raw.
func buildInvocation(scriptPath string, opts Options) (string, []string) {
	if !opts.Rails {
		bin := os.Getenv(pythonBinEnv)
		if bin == "" {
			bin = opts.PythonBin
		}
		if bin == "" {
			bin = defaultPythonBin
		}
		return bin, append([]string{scriptPath}, opts.Args...)
	}

	bin := os.Getenv(railsBinEnv)
	if bin == "" {
		bin = opts.RailsBin
	}
	if bin == "" {
		local := filepath.Join(opts.WorkingDir, "bin", "rails")
		if _, err := os.Stat(local); err == nil {
			bin = local
		} else {
			bin = defaultRailsBin
		}
	}

	runner := shellJoin(append([]string{bin, "runner", scriptPath}, opts.Args...))
	if boot := rbenvBootstrap(); boot != "" {
		runner = boot + " && " + runner
	}
	return "bash", []string{"-c", runner}
}

// rbenvBootstrap returns the shell fragment that makes the version-managed
// ruby resolvable, or "" when no rbenv installation is found at either
// well-known location.
func rbenvBootstrap() string {
	candidates := []string{
		filepath.Join(os.Getenv("HOME"), ".rbenv", "bin", "rbenv"),
		"/usr/local/bin/rbenv",
	}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return fmt.Sprintf(`eval "$(%s init - bash)"`, shellQuote(p))
		}
	}
	return ""
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_./:=@%+-]+$`)

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

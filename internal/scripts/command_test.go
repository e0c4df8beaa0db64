package scripts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildInvocation_PythonDefault(t *testing.T) {
	t.Setenv(pythonBinEnv, "")

	bin, args := buildInvocation("/tmp/job.py", Options{Args: []string{"--limit", "10"}})
	assert.Equal(t, "python3", bin)
	assert.Equal(t, []string{"/tmp/job.py", "--limit", "10"}, args)
}

func TestBuildInvocation_PythonConfiguredBin(t *testing.T) {
	t.Setenv(pythonBinEnv, "")

	bin, _ := buildInvocation("/tmp/job.py", Options{PythonBin: "/opt/py/bin/python"})
	assert.Equal(t, "/opt/py/bin/python", bin)

	// The environment variable wins over the configured binary.
	t.Setenv(pythonBinEnv, "/usr/bin/python3.12")
	bin, _ = buildInvocation("/tmp/job.py", Options{PythonBin: "/opt/py/bin/python"})
	assert.Equal(t, "/usr/bin/python3.12", bin)
}

func TestBuildInvocation_PythonOverride(t *testing.T) {
	t.Setenv(pythonBinEnv, "/opt/python3.12/bin/python")

	bin, args := buildInvocation("/tmp/job.py", Options{})
	assert.Equal(t, "/opt/python3.12/bin/python", bin)
	assert.Equal(t, []string{"/tmp/job.py"}, args)
}

func TestBuildInvocation_RailsLocalBinstub(t *testing.T) {
	t.Setenv(railsBinEnv, "")
	t.Setenv("HOME", t.TempDir()) // no rbenv

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o755))
	binstub := filepath.Join(dir, "bin", "rails")
	require.NoError(t, os.WriteFile(binstub, []byte("#!/bin/bash\n"), 0o755))

	bin, args := buildInvocation("/tmp/job.rb", Options{Rails: true, WorkingDir: dir})
	assert.Equal(t, "bash", bin)
	require.Len(t, args, 2)
	assert.Equal(t, "-c", args[0])
	assert.Equal(t, binstub+" runner /tmp/job.rb", args[1])
}

func TestBuildInvocation_RailsFallsBackToPath(t *testing.T) {
	t.Setenv(railsBinEnv, "")
	t.Setenv("HOME", t.TempDir())

	bin, args := buildInvocation("/tmp/job.rb", Options{Rails: true, WorkingDir: t.TempDir()})
	assert.Equal(t, "bash", bin)
	require.Len(t, args, 2)
	assert.Equal(t, "rails runner /tmp/job.rb", args[1])
}

func TestBuildInvocation_RailsOverrideAndQuoting(t *testing.T) {
	t.Setenv(railsBinEnv, "/srv/app/bin/rails")
	t.Setenv("HOME", t.TempDir())

	_, args := buildInvocation("/tmp/my job.rb", Options{
		Rails: true,
		Args:  []string{"first", "two words"},
	})
	require.Len(t, args, 2)
	assert.Equal(t, `/srv/app/bin/rails runner '/tmp/my job.rb' first 'two words'`, args[1])
}

func TestBuildInvocation_RailsRbenvBootstrap(t *testing.T) {
	t.Setenv(railsBinEnv, "/srv/app/bin/rails")

	home := t.TempDir()
	t.Setenv("HOME", home)
	rbenv := filepath.Join(home, ".rbenv", "bin", "rbenv")
	require.NoError(t, os.MkdirAll(filepath.Dir(rbenv), 0o755))
	require.NoError(t, os.WriteFile(rbenv, []byte("#!/bin/bash\n"), 0o755))

	_, args := buildInvocation("/tmp/job.rb", Options{Rails: true})
	require.Len(t, args, 2)
	assert.Equal(t, `eval "$(`+rbenv+` init - bash)" && /srv/app/bin/rails runner /tmp/job.rb`, args[1])
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"/usr/bin/rails", "/usr/bin/rails"},
		{"--limit=10", "--limit=10"},
		{"", "''"},
		{"two words", "'two words'"},
		{"it's", `'it'\''s'`},
		{"$HOME", "'$HOME'"},
		{"a;rm -rf /", "'a;rm -rf /'"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shellQuote(tt.in), "input %q", tt.in)
	}
}

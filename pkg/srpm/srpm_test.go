package srpm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/da-x/spectree/pkg/runner"
)

func TestDetectBaseOS(t *testing.T) {
	cases := []struct {
		name    string
		release string
		want    string
		wantErr bool
	}{
		{"rocky8", "ID=\"rocky\"\nVERSION_ID=\"8.9\"\n", "epel8", false},
		{"rocky9", "ID=\"rocky\"\nVERSION_ID=\"9.3\"\n", "epel9", false},
		{"rocky10", "ID=\"rocky\"\nVERSION_ID=\"10.0\"\n", "epel10", false},
		{"not rocky", "ID=\"fedora\"\nVERSION_ID=\"40\"\n", "", true},
		{"unknown version", "ID=\"rocky\"\nVERSION_ID=\"7.9\"\n", "", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := DetectBaseOS(c.release)
			if c.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestModifySpecForParams(t *testing.T) {
	spec := "%bcond_with foo\n%bcond_without bar\n%global baz 1\nName: test\n"
	out := ModifySpecForParams(spec, []string{"--with", "foo", "--without", "bar", "--define", "baz 2"})

	assert.Contains(t, out, "%bcond_without foo")
	assert.Contains(t, out, "%bcond_with bar")
	assert.Contains(t, out, "%global baz 2")
	assert.Contains(t, out, "Name: test")
}

func TestModifySpecForParams_PreservesTrailingText(t *testing.T) {
	spec := "%bcond_with foo # a comment\n"
	out := ModifySpecForParams(spec, []string{"--with", "foo"})
	assert.Equal(t, "%bcond_without foo # a comment\n", out)
}

func TestModifySpecForParams_LeavesUnrelatedLinesAlone(t *testing.T) {
	spec := "%bcond_with untouched\n"
	out := ModifySpecForParams(spec, []string{"--with", "other"})
	assert.Equal(t, spec, out)
}

type fakeRunner struct {
	lastSpec runner.Spec
	result   runner.Result
	err      error
}

func (f *fakeRunner) Run(ctx context.Context, s runner.Spec) (runner.Result, error) {
	f.lastSpec = s
	return f.result, f.err
}

func TestFetchRemoteSources_RunsSpectoolPerSpecFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.spec"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte(""), 0o644))

	fr := &fakeRunner{result: runner.Result{ExitCode: 0}}
	FetchRemoteSources(context.Background(), fr, dir)

	assert.Equal(t, "spectool -g 'app.spec'", fr.lastSpec.Command)
	assert.Equal(t, dir, fr.lastSpec.WorkingDir)
}

func TestFetchRemoteSources_ToleratesRunnerError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.spec"), []byte(""), 0o644))

	fr := &fakeRunner{err: assertSpectoolMissing{}}
	assert.NotPanics(t, func() {
		FetchRemoteSources(context.Background(), fr, dir)
	})
}

type assertSpectoolMissing struct{}

func (assertSpectoolMissing) Error() string { return "exec: spectool: not found" }

package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/da-x/spectree/pkg/identity"
	"github.com/da-x/spectree/pkg/runner"
)

// fakeRunner records the Spec it was invoked with and returns a
// preconfigured Result, for asserting on command construction without
// shelling out.
type fakeRunner struct {
	lastSpec runner.Spec
	result   runner.Result
	err      error
}

func (f *fakeRunner) Run(ctx context.Context, s runner.Spec) (runner.Result, error) {
	f.lastSpec = s
	return f.result, f.err
}

func TestMock_Build_ConstructsCommand(t *testing.T) {
	fr := &fakeRunner{result: runner.Result{ExitCode: 0}}
	m := &Mock{Runner: fr}

	req := Request{
		BuildKey: identity.BuildKey{SourceKey: "app", Hash: "hash"},
		SrpmPath: "/work/app.src.rpm",
		DepsDir:  "/work/deps",
		BuildDir: "/work",
		Params:   []string{"--with", "foo"},
	}
	require.NoError(t, m.Build(context.Background(), req))

	assert.Contains(t, fr.lastSpec.Command, "mock")
	assert.Contains(t, fr.lastSpec.Command, "--resultdir")
	assert.Contains(t, fr.lastSpec.Command, "--addrepo")
	assert.Contains(t, fr.lastSpec.Command, "/work/deps")
	assert.Contains(t, fr.lastSpec.Command, "/work/app.src.rpm")
	assert.Contains(t, fr.lastSpec.Command, "--with")
}

func TestMock_Build_OmitsAddrepoWithoutDeps(t *testing.T) {
	fr := &fakeRunner{result: runner.Result{ExitCode: 0}}
	m := &Mock{Runner: fr}

	req := Request{SrpmPath: "/work/app.src.rpm", BuildDir: "/work"}
	require.NoError(t, m.Build(context.Background(), req))
	assert.NotContains(t, fr.lastSpec.Command, "--addrepo")
}

func TestMock_Build_NonZeroExitIsError(t *testing.T) {
	fr := &fakeRunner{result: runner.Result{ExitCode: 1, Stderr: "boom"}}
	m := &Mock{Runner: fr}

	err := m.Build(context.Background(), Request{SrpmPath: "x", BuildDir: "/work"})
	assert.Error(t, err)
}

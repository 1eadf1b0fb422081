package deploy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/dashfold/dashfold/api"
	"github.com/dashfold/dashfold/internal/registry"
)

// countingRegistry wraps the in-memory registry to observe mutations.
type countingRegistry struct {
	*registry.Memory
	registers []string // messages, so deploy vs redeploy is visible
	removes   []string
}

func (c *countingRegistry) RegisterDataSetDef(def *api.DataSetDef, author, message string) error {
	c.registers = append(c.registers, message)
	return c.Memory.RegisterDataSetDef(def, author, message)
}

func (c *countingRegistry) RemoveDataSetDef(uuid, author, message string) (*api.DataSetDef, error) {
	c.removes = append(c.removes, message)
	return c.Memory.RemoveDataSetDef(uuid, author, message)
}

func newTestDeployer(t *testing.T, polling time.Duration) (*Deployer, *countingRegistry, string) {
	t.Helper()
	reg := &countingRegistry{Memory: registry.NewMemory()}
	d := New(reg, zap.NewNop(), polling)
	return d, reg, t.TempDir()
}

func writeDef(t *testing.T, dir, name, json string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(json), 0o644))
	return path
}

// touchFuture pushes the file's mtime past any record registration time.
func touchFuture(t *testing.T, path string) {
	t.Helper()
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))
}

func TestDeployer_DeployRegistersDefinitions(t *testing.T) {
	d, reg, dir := newTestDeployer(t, 0)
	writeDef(t, dir, "a.dset", `{"uuid": "A", "provider": "BEAN"}`)

	d.Deploy(dir)

	assert.True(t, d.Running())
	require.NotNil(t, reg.GetDataSetDef("A"))
	assert.Equal(t, []string{"deploy(A)"}, reg.registers)
}

func TestDeployer_SecondPassIsNoOp(t *testing.T) {
	d, reg, dir := newTestDeployer(t, 0)
	writeDef(t, dir, "a.dset", `{"uuid": "A", "provider": "BEAN"}`)

	d.Deploy(dir)
	d.Reconcile()

	assert.Equal(t, []string{"deploy(A)"}, reg.registers, "unchanged file must not re-register")
}

func TestDeployer_OutdatedUnchangedContentRefreshesOnly(t *testing.T) {
	d, reg, dir := newTestDeployer(t, 0)
	path := writeDef(t, dir, "a.dset", `{"uuid": "A", "provider": "BEAN"}`)

	d.Deploy(dir)
	touchFuture(t, path)
	d.Reconcile()

	// Re-read happened, structural equality short-circuited registration.
	assert.Equal(t, []string{"deploy(A)"}, reg.registers)
}

func TestDeployer_ChangedContentRedeploys(t *testing.T) {
	d, reg, dir := newTestDeployer(t, 0)
	path := writeDef(t, dir, "a.dset", `{"uuid": "A", "provider": "BEAN"}`)

	d.Deploy(dir)
	writeDef(t, dir, "a.dset", `{"uuid": "A", "provider": "BEAN", "name": "renamed"}`)
	touchFuture(t, path)
	d.Reconcile()

	assert.Equal(t, []string{"deploy(A)", "redeploy(A)"}, reg.registers)
	assert.Equal(t, "renamed", reg.GetDataSetDef("A").Name)

	// And the redeployed record is fresh again.
	d.Reconcile()
	assert.Len(t, reg.registers, 2)
}

func TestDeployer_BlankUUIDDefaultsToFileName(t *testing.T) {
	d, reg, dir := newTestDeployer(t, 0)
	writeDef(t, dir, "sales.dset", `{"provider": "BEAN"}`)

	d.Deploy(dir)

	def := reg.GetDataSetDef("sales.dset")
	require.NotNil(t, def)
	assert.True(t, filepath.IsAbs(def.SourcePath))
}

func TestDeployer_MalformedFileSkippedOthersDeploy(t *testing.T) {
	d, reg, dir := newTestDeployer(t, 0)
	writeDef(t, dir, "bad.dset", `{"uuid": `)
	writeDef(t, dir, "good.dset", `{"uuid": "GOOD", "provider": "BEAN"}`)

	d.Deploy(dir)

	assert.Nil(t, reg.GetDataSetDef("bad.dset"))
	assert.NotNil(t, reg.GetDataSetDef("GOOD"), "a parse error skips only the offending file")
}

func TestDeployer_Undeploy(t *testing.T) {
	d, reg, dir := newTestDeployer(t, 0)
	writeDef(t, dir, "a.dset", `{"uuid": "A", "provider": "BEAN"}`)
	d.Deploy(dir)
	require.NotNil(t, reg.GetDataSetDef("A"))

	marker := filepath.Join(dir, "a.undeploy")
	require.NoError(t, os.WriteFile(marker, nil, 0o644))
	d.Reconcile()

	assert.NoFileExists(t, marker)
	assert.Nil(t, reg.GetDataSetDef("A"))
	assert.Equal(t, []string{"undeploy(A)"}, reg.removes)

	// The marker is gone, nothing left to undeploy.
	d.Reconcile()
	assert.Len(t, reg.removes, 1)
}

func TestDeployer_StrayUndeployMarkerIsNoOp(t *testing.T) {
	d, reg, dir := newTestDeployer(t, 0)
	marker := filepath.Join(dir, "ghost.undeploy")
	require.NoError(t, os.WriteFile(marker, nil, 0o644))

	d.Deploy(dir)

	assert.NoFileExists(t, marker)
	assert.Empty(t, reg.removes)
}

func TestDeployer_InvalidDirectoryStaysStopped(t *testing.T) {
	d, reg, dir := newTestDeployer(t, 0)
	writeDef(t, dir, "a.dset", `{"uuid": "A", "provider": "BEAN"}`)

	d.Deploy("")
	assert.False(t, d.Running())

	d.Deploy(filepath.Join(dir, "does-not-exist"))
	assert.False(t, d.Running())

	file := writeDef(t, dir, "not-a-dir.dset", `{}`)
	d.Deploy(file)
	assert.False(t, d.Running())

	assert.Empty(t, reg.registers, "no reconciliation runs for invalid input")
}

func TestDeployer_PollingPicksUpNewFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	d, reg, dir := newTestDeployer(t, 20*time.Millisecond)
	d.Deploy(dir)
	defer d.Stop()

	writeDef(t, dir, "late.dset", `{"uuid": "LATE", "provider": "BEAN"}`)

	require.Eventually(t, func() bool {
		return reg.GetDataSetDef("LATE") != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDeployer_StopExitsLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	d, _, dir := newTestDeployer(t, 10*time.Millisecond)
	d.Deploy(dir)
	require.True(t, d.Running())

	// Stop waits for the loop goroutine; goleak confirms it is gone.
	d.Stop()
	assert.False(t, d.Running())
}

func TestDeployer_StopWithoutPollingLoop(t *testing.T) {
	d, _, dir := newTestDeployer(t, 0)
	d.Deploy(dir)
	require.True(t, d.Running())

	d.Stop()
	assert.False(t, d.Running())
}

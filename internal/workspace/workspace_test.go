package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_StagedEditsRequireApply(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := NewMemory()
	m.AddUnit("App", "src/App/App.csproj")
	m.PutFile("App", "a.cs", "class A {}")

	m.SetFile("App", "a.cs", "class B {}")
	units, err := m.Units(ctx)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "class A {}", units[0].Files[0].Snapshot.Text)

	require.NoError(t, m.Apply(ctx, "a.cs"))
	units, err = m.Units(ctx)
	require.NoError(t, err)
	assert.Equal(t, "class B {}", units[0].Files[0].Snapshot.Text)
}

func TestMemory_VersionsIncrease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := NewMemory()
	m.PutFile("App", "a.cs", "one")
	units, _ := m.Units(ctx)
	v1 := units[0].Files[0].Snapshot.Version

	m.SetFile("App", "a.cs", "two")
	require.NoError(t, m.Apply(ctx, "a.cs"))
	units, _ = m.Units(ctx)
	assert.Greater(t, units[0].Files[0].Snapshot.Version, v1)
}

func TestMemory_RemoveFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := NewMemory()
	m.PutFile("App", "a.cs", "one")
	m.PutFile("App", "b.cs", "two")
	m.RemoveFile("App", "a.cs")
	require.NoError(t, m.Apply(ctx, "a.cs"))

	units, _ := m.Units(ctx)
	require.Len(t, units[0].Files, 1)
	assert.Equal(t, "b.cs", units[0].Files[0].Path)
}

func TestMemory_FailApplyReturnsSyncError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := NewMemory()
	m.PutFile("App", "a.cs", "one")
	m.FailApply("a.cs", errors.New("locked"))

	err := m.Apply(ctx, "a.cs")
	require.Error(t, err)
	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, "App", syncErr.Unit)
	assert.ErrorIs(t, err, ErrSync)
}

func TestMemory_UnitsAreCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := NewMemory()
	m.PutFile("App", "a.cs", "one")
	units, _ := m.Units(ctx)
	units[0].Files[0].Snapshot.Text = "mutated"

	again, _ := m.Units(ctx)
	assert.Equal(t, "one", again[0].Files[0].Snapshot.Text)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const projectWithReference = `<Project Sdk="Microsoft.NET.Sdk">
  <ItemGroup>
    <Reference Include="Strings">
      <HintPath>..\lib\strings.risor</HintPath>
    </Reference>
  </ItemGroup>
</Project>`

func TestDir_DiscoversUnitsAndFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "App", "App.csproj"), projectWithReference)
	writeFile(t, filepath.Join(root, "App", "Program.cs"), "public class Program {}")
	writeFile(t, filepath.Join(root, "App", "obj", "Generated.cs"), "class Gen {}")
	writeFile(t, filepath.Join(root, "Lib", "Lib.csproj"), "<Project />")
	writeFile(t, filepath.Join(root, "Lib", "Util.cs"), "public class Util {}")
	writeFile(t, filepath.Join(root, "Lib", "Skipped.cs"), "class Skipped {}")
	writeFile(t, filepath.Join(root, "loose.cs"), "class Loose {}")
	writeFile(t, filepath.Join(root, ".gitignore"), "Lib/Skipped.cs\n")

	d, err := OpenDir(root)
	require.NoError(t, err)

	units, err := d.Units(context.Background())
	require.NoError(t, err)
	require.Len(t, units, 2)

	assert.Equal(t, "App", units[0].ID)
	assert.Equal(t, "App", units[0].Name)
	require.Len(t, units[0].Files, 1)
	assert.Equal(t, "App/Program.cs", units[0].Files[0].ID)
	require.Len(t, units[0].References, 1)
	assert.Equal(t, filepath.Join(root, "lib", "strings.risor"), units[0].References[0])

	assert.Equal(t, "Lib", units[1].ID)
	require.Len(t, units[1].Files, 1)
	assert.Equal(t, filepath.Join(root, "Lib", "Util.cs"), units[1].Files[0].Path)
}

func TestDir_ApplyUpdatesAddsAndRemoves(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "App", "App.csproj"), "<Project />")
	prog := filepath.Join(root, "App", "Program.cs")
	writeFile(t, prog, "public class Program {}")

	d, err := OpenDir(root)
	require.NoError(t, err)
	ctx := context.Background()

	writeFile(t, prog, "public class Program2 {}")
	require.NoError(t, d.Apply(ctx, prog))

	added := filepath.Join(root, "App", "Extra.cs")
	writeFile(t, added, "public class Extra {}")
	require.NoError(t, d.Apply(ctx, added))

	units, _ := d.Units(ctx)
	require.Len(t, units[0].Files, 2)
	assert.Equal(t, "public class Extra {}", units[0].Files[0].Snapshot.Text)
	assert.Equal(t, "public class Program2 {}", units[0].Files[1].Snapshot.Text)

	require.NoError(t, os.Remove(added))
	require.NoError(t, d.Apply(ctx, added))
	units, _ = d.Units(ctx)
	require.Len(t, units[0].Files, 1)
}

func TestDir_ApplyIgnoresPathsOutsideUnits(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "App", "App.csproj"), "<Project />")

	d, err := OpenDir(root)
	require.NoError(t, err)

	stray := filepath.Join(root, "stray.cs")
	writeFile(t, stray, "class Stray {}")
	require.NoError(t, d.Apply(context.Background(), stray))
	require.NoError(t, d.Apply(context.Background(), filepath.Join(root, "README.md")))

	units, _ := d.Units(context.Background())
	assert.Empty(t, units[0].Files)
}

func TestDir_ApplySkipsBuildDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "App", "App.csproj"), "<Project />")
	writeFile(t, filepath.Join(root, "App", "P.cs"), "public class P {}")

	d, err := OpenDir(root)
	require.NoError(t, err)
	ctx := context.Background()

	old := filepath.Join(root, "App", "bin", "Old.cs")
	writeFile(t, old, "public class Old {}")
	require.NoError(t, d.Apply(ctx, old))
	hidden := filepath.Join(root, "App", ".vs", "Cache.cs")
	writeFile(t, hidden, "public class Cache {}")
	require.NoError(t, d.Apply(ctx, hidden))

	units, _ := d.Units(ctx)
	require.Len(t, units[0].Files, 1)
	assert.Equal(t, "App/P.cs", units[0].Files[0].ID)

	// A rescan sees the same files.
	again, err := OpenDir(root)
	require.NoError(t, err)
	rescanned, _ := again.Units(ctx)
	require.Len(t, rescanned[0].Files, 1)
	assert.Equal(t, units[0].Files[0].ID, rescanned[0].Files[0].ID)
}

func TestDir_ApplyResolvesRelativePaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "App", "App.csproj"), "<Project />")

	d, err := OpenDir(root)
	require.NoError(t, err)
	ctx := context.Background()

	writeFile(t, filepath.Join(root, "App", "New.cs"), "public class New {}")
	require.NoError(t, d.Apply(ctx, filepath.Join("App", "New.cs")))

	units, _ := d.Units(ctx)
	require.Len(t, units[0].Files, 1)
	assert.Equal(t, "App/New.cs", units[0].Files[0].ID)
}

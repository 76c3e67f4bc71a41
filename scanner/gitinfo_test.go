package scanner

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initTestRepo creates a real repository with one initial commit.
func initTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	root, err := os.MkdirTemp("", "gitinfo_test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(root) })

	gitRun(t, root, "init", "-q", "-b", "main")
	gitRun(t, root, "config", "user.email", "test@example.com")
	gitRun(t, root, "config", "user.name", "test")

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.go"), []byte("package b\n"), 0644))
	gitRun(t, root, "add", ".")
	gitRun(t, root, "commit", "-q", "-m", "initial")
	return root
}

func gitRun(t *testing.T, root string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = root
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func TestGit_RepoDetection(t *testing.T) {
	root := initTestRepo(t)
	git := NewGit(root)

	assert.True(t, git.Available())
	assert.True(t, git.IsRepo())

	plain, err := os.MkdirTemp("", "gitinfo_test")
	require.NoError(t, err)
	defer os.RemoveAll(plain)
	assert.False(t, NewGit(plain).IsRepo())
}

func TestGit_Status(t *testing.T) {
	root := initTestRepo(t)
	git := NewGit(root)

	head := git.Head()
	require.NotNil(t, head)
	assert.Len(t, *head, 40)

	branch := git.Branch()
	require.NotNil(t, branch)
	assert.Equal(t, "main", *branch)

	dirty := git.Dirty()
	require.NotNil(t, dirty)
	assert.False(t, *dirty)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\nvar X = 1\n"), 0644))
	dirty = git.Dirty()
	require.NotNil(t, dirty)
	assert.True(t, *dirty)
}

// Test listing tracked plus untracked files with pathspec narrowing
func TestGit_ListFiles(t *testing.T) {
	root := initTestRepo(t)
	git := NewGit(root)

	// Untracked but not ignored files are listed too.
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.md"), []byte("# new\n"), 0644))

	files, err := git.ListFiles(nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.go", "b.go", "new.md"}, files)

	narrowed, err := git.ListFiles(BuildPathspec([]string{"*.go"}, nil))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.go", "b.go"}, narrowed)

	excluded, err := git.ListFiles(BuildPathspec(nil, []string{"b.go"}))
	require.NoError(t, err)
	assert.NotContains(t, excluded, "b.go")
	assert.Contains(t, excluded, "a.go")
}

func TestBuildPathspec(t *testing.T) {
	specs := BuildPathspec([]string{"*.go", " "}, []string{"vendor/*", ":(literal)raw"})
	assert.Equal(t, []string{":(glob)*.go", ":(exclude,glob)vendor/*", ":(literal)raw"}, specs)
}

// Test churn counting over recent commits
func TestGit_Churn(t *testing.T) {
	root := initTestRepo(t)
	git := NewGit(root)

	// Two more commits touching a.go, one touching b.go.
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\nvar X = 1\n"), 0644))
	gitRun(t, root, "commit", "-aqm", "edit a")
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\nvar X = 2\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.go"), []byte("package b\nvar Y = 1\n"), 0644))
	gitRun(t, root, "commit", "-aqm", "edit a and b")

	fileSet := map[string]struct{}{"a.go": {}, "b.go": {}}
	churn := git.Churn(10, fileSet)
	require.Len(t, churn, 2)
	assert.Equal(t, "a.go", churn[0].Path)
	assert.Equal(t, 3, churn[0].Commits)
	assert.Equal(t, "b.go", churn[1].Path)
	assert.Equal(t, 2, churn[1].Commits)

	// Paths outside the scanned set are filtered out.
	onlyA := git.Churn(10, map[string]struct{}{"a.go": {}})
	require.Len(t, onlyA, 1)
	assert.Equal(t, "a.go", onlyA[0].Path)

	assert.Empty(t, git.Churn(0, fileSet))
}

// Test changed-file derivation from commits and untracked files
func TestGit_ChangedFiles(t *testing.T) {
	root := initTestRepo(t)
	git := NewGit(root)

	base := git.Head()
	require.NotNil(t, base)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\nvar X = 1\n"), 0644))
	gitRun(t, root, "commit", "-aqm", "edit a")

	changed := git.ChangedFiles(*base+"..HEAD", "", "", false)
	assert.Equal(t, []string{"a.go"}, changed)

	sinceCommit := git.ChangedFiles("", *base, "", false)
	assert.Equal(t, []string{"a.go"}, sinceCommit)

	// Untracked files union in when requested.
	require.NoError(t, os.WriteFile(filepath.Join(root, "untracked.md"), []byte("# u\n"), 0644))
	withUntracked := git.ChangedFiles(*base+"..HEAD", "", "", true)
	assert.ElementsMatch(t, []string{"a.go", "untracked.md"}, withUntracked)

	assert.Nil(t, git.ChangedFiles("", "", "", false))
}

// Test a git-aware scan end to end
func TestScan_GitEnumeration(t *testing.T) {
	root := initTestRepo(t)

	// Ignored paths never become candidates with git listing.
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("ignored.go\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ignored.go"), []byte("package ignored\n"), 0644))
	gitRun(t, root, "add", ".gitignore")
	gitRun(t, root, "commit", "-qm", "ignore")

	opts := testOptions(root)
	opts.UseGit = true

	result, err := NewScanner().Scan(context.Background(), opts)
	require.NoError(t, err)

	assert.True(t, result.GitUsed)
	assert.Equal(t, []string{".gitignore", "a.go", "b.go"}, filePaths(result))
	require.NotNil(t, result.GitHead)
	require.NotNil(t, result.GitBranch)
	assert.Equal(t, "main", *result.GitBranch)
	require.NotNil(t, result.GitDirty)
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/grants"
	"github.com/trialsite/siteaccess/pkg/hierarchy"
)

const siteYAML = `
principals:
  - {id: 1, username: alice, role: ADMIN}
  - {id: 7, username: carol, role: USER}
  - {id: 8, username: dave, role: AUDITOR, active: false}
folders:
  - {id: 10, name: Protocols}
  - {id: 11, name: Amendments, parent: 10}
documents:
  - {id: 100, title: Protocol v3, type: report, folder: 10}
  - {id: 110, title: Amendment 1, folder: 11}
  - {id: 300, title: Site manual}
grants:
  - {folder: 10, role: AUDITOR, level: READ}
  - {document: 110, user: 7, level: WRITE}
checks:
  - {user: 7, document: 110, level: WRITE, expect: true}
  - {user: 8, document: 100, level: READ, expect: true}
  - {user: 8, document: 110, level: READ, expect: false}
`

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"check", "explain", "filter", "grants", "watch", "token"} {
		assert.Contains(t, names, want)
	}
}

func TestCheck_FixtureChecks(t *testing.T) {
	path := writeFixture(t, siteYAML)

	out, err := execute(t, "-f", path, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "3 check(s), 0 failed")
	assert.Contains(t, out, "8 (inactive)")
}

func TestCheck_FailedExpectation(t *testing.T) {
	path := writeFixture(t, siteYAML+"  - {user: 7, document: 100, level: READ, expect: true}\n")

	out, err := execute(t, "-f", path, "check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 4 check(s) failed")
	assert.Contains(t, out, "FAIL (expected ALLOWED)")
}

func TestCheck_SingleQuestion(t *testing.T) {
	path := writeFixture(t, siteYAML)

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"7", "110", "WRITE"}, "ALLOWED"},
		{[]string{"7", "110", "delete"}, "DENIED"},
		{[]string{"7", "300", "READ"}, "DENIED"},
		{[]string{"1", "300", "DELETE"}, "ALLOWED"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			out, err := execute(t, append([]string{"-f", path, "check"}, tt.args...)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.TrimSpace(out))
		})
	}
}

func TestCheck_BadArguments(t *testing.T) {
	path := writeFixture(t, siteYAML)

	_, err := execute(t, "-f", path, "check", "7", "110")
	assert.Error(t, err)
	_, err = execute(t, "-f", path, "check", "7", "110", "ADMIN")
	assert.Error(t, err)
	_, err = execute(t, "-f", path, "check", "99", "110", "READ")
	assert.Error(t, err)
	_, err = execute(t, "-f", filepath.Join(t.TempDir(), "missing.yaml"), "check")
	assert.Error(t, err)
}

func TestExplain(t *testing.T) {
	path := writeFixture(t, siteYAML)

	out, err := execute(t, "-f", path, "explain", "8", "100")
	require.NoError(t, err)
	assert.Contains(t, out, "ALLOWED")
	assert.Contains(t, out, "folder 10")
	assert.Contains(t, out, "role AUDITOR")

	out, err = execute(t, "-f", path, "--json", "explain", "8", "110", "READ")
	require.NoError(t, err)
	var d map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, false, d["allowed"])
	assert.Equal(t, float64(11), d["folder_id"])
	assert.Equal(t, float64(110), d["document_id"])
}

func TestFilter(t *testing.T) {
	path := writeFixture(t, siteYAML)

	out, err := execute(t, "-f", path, "--json", "filter", "7")
	require.NoError(t, err)
	var docs []hierarchy.Document
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, int64(110), docs[0].ID)
	require.NotNil(t, docs[0].FolderID)
	assert.Equal(t, int64(11), *docs[0].FolderID)

	out, err = execute(t, "-f", path, "filter", "1", "--root")
	require.NoError(t, err)
	assert.Contains(t, out, "Site manual")
	assert.NotContains(t, out, "Protocol v3")

	_, err = execute(t, "-f", path, "filter", "1", "--folder", "99")
	assert.Error(t, err)
}

func TestGrants(t *testing.T) {
	path := writeFixture(t, siteYAML)

	out, err := execute(t, "-f", path, "--json", "grants")
	require.NoError(t, err)
	var all []grants.Grant
	require.NoError(t, json.Unmarshal([]byte(out), &all))
	assert.Len(t, all, 2)

	out, err = execute(t, "-f", path, "grants", "--folder", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "role AUDITOR")
	assert.NotContains(t, out, "user 7")

	out, err = execute(t, "-f", path, "grants", "--user", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "110")

	_, err = execute(t, "-f", path, "grants", "--user", "7", "--role", "USER")
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	path := writeFixture(t, siteYAML)
	secret := "0123456789abcdef0123456789abcdef"

	out, err := execute(t, "-f", path, "token", "--user", "7", "--secret", secret, "--issuer", "test")
	require.NoError(t, err)

	authCtx, err := auth.NewTokenManager([]byte(secret), "test").ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, int64(7), authCtx.Principal.ID)
	assert.Equal(t, auth.RoleUser, authCtx.Principal.Role)

	_, err = execute(t, "-f", path, "token", "--user", "7", "--secret", "short")
	assert.Error(t, err)
	_, err = execute(t, "-f", path, "token", "--user", "42", "--secret", secret)
	assert.Error(t, err)
}

func TestWatchLoop_RerunsAfterChange(t *testing.T) {
	path := writeFixture(t, siteYAML)

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()
	require.NoError(t, watcher.Add(filepath.Dir(path)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- watchLoop(ctx, watcher, path, 10*time.Millisecond, logrus.New(), func() { runs.Add(1) })
	}()

	// unrelated files in the directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte(siteYAML), 0o600))

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch loop did not stop")
	}
}

func TestEvaluate_ReportsFixtureErrors(t *testing.T) {
	path := writeFixture(t, "principals: [")
	opts := &options{log: logrus.New()}

	var out bytes.Buffer
	evaluate(context.Background(), &out, opts, path)
	assert.Contains(t, out.String(), "fixture error")
}

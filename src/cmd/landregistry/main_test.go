package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/casapps/landregistry/src/internal/database"
	"github.com/casapps/landregistry/src/internal/database/models"
	"github.com/casapps/landregistry/src/internal/ledger"
	"github.com/casapps/landregistry/src/internal/server"
	"github.com/casapps/landregistry/src/internal/testutil"
	"github.com/casapps/landregistry/src/pkg/utils"
)

type cli struct {
	t         *testing.T
	apiURL    string
	tokenFile string
	db        *gorm.DB
}

func newCLI(t *testing.T) *cli {
	t.Helper()

	cfg := testutil.NewConfig(t)
	db := testutil.NewDB(t)
	require.NoError(t, database.SeedDemoData(db, cfg))

	srv, err := server.New(context.Background(), cfg, db, server.Options{
		Ledger:  ledger.NewMemoryLedger("testnet"),
		Logger:  utils.NewLoggerTo(io.Discard, "error"),
		Version: "test",
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &cli{
		t:         t,
		apiURL:    ts.URL + "/api",
		tokenFile: filepath.Join(t.TempDir(), "credentials.json"),
		db:        db,
	}
}

// run executes one command line with stdin and returns its output
func (c *cli) run(stdin string, args ...string) (string, error) {
	c.t.Helper()

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "--api-url", c.apiURL, "--token-file", c.tokenFile))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run("", args...)
	require.NoError(c.t, err, out)
	return out
}

func (c *cli) landID(propertyID string) string {
	c.t.Helper()
	var land models.Land
	require.NoError(c.t, c.db.Where("property_id = ?", propertyID).First(&land).Error)
	return land.ID.String()
}

func TestVersion(t *testing.T) {
	c := &cli{t: t}
	assert.Contains(t, c.mustRun("version"), "landregistry v"+Version)
}

func TestSessionCommands(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("", "lands", "mine")
	assert.ErrorIs(t, err, errNotSignedIn)

	assert.Contains(t, c.mustRun("login", "--demo", "user"), "Signed in as demo (user)")
	assert.Contains(t, c.mustRun("whoami"), "demo")
	assert.Contains(t, c.mustRun("lands", "mine"), "DEMO-0001")

	info, err := os.Stat(c.tokenFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	_, err = c.run("", "admin", "dashboard")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "administrator")

	assert.Contains(t, c.mustRun("logout"), "Signed out")
	_, err = os.Stat(c.tokenFile)
	assert.True(t, os.IsNotExist(err))

	out, err := c.run("wrong-password\n", "login", "demoadmin")
	require.Error(t, err)
	assert.Contains(t, out, "Password:")

	out, err = c.run("admin12345\n", "login", "demoadmin")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Signed in as demoadmin (admin)")
	assert.Contains(t, c.mustRun("admin", "dashboard"), "Awaiting review")
}

func TestTransferCommands(t *testing.T) {
	c := newCLI(t)
	landID := c.landID("DEMO-0001")

	c.mustRun("login", "--demo", "admin")
	assert.Contains(t, c.mustRun("admin", "register", landID), "registered as token")

	dir := t.TempDir()
	out := c.mustRun("admin", "report", "properties", "--dir", dir)
	assert.Contains(t, out, "Saved")
	matches, err := filepath.Glob(filepath.Join(dir, "properties-report-*.csv"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	c.mustRun("login", "--demo", "user")
	assert.Contains(t, c.mustRun("transfers", "initiate", landID, "demoadmin", "--price", "1000"), "is pending")

	_, err = c.run("", "transfers", "initiate", landID, "demoadmin", "--price", "1000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "active transfer")

	out = c.mustRun("transfers", "history", landID)
	assert.Contains(t, out, "awaits you")

	var transfer models.Transfer
	require.NoError(t, c.db.Where("land_id = ?", landID).First(&transfer).Error)
	assert.Contains(t, c.mustRun("transfers", "execute", landID, transfer.ID.String()), "completed")

	assert.NotContains(t, c.mustRun("lands", "mine"), "DEMO-0001")

	c.mustRun("login", "--demo", "admin")
	out = c.mustRun("admin", "audit", "--action", "transfer.execute")
	assert.Contains(t, out, "demo")
	assert.Contains(t, out, transfer.ID.String())
	assert.Contains(t, c.mustRun("admin", "audit", "--failed"), "transfer.initiate")
}

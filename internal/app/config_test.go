package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/order"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storefront.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
data_dir: `+dir+`
user:
  id: U1
  name: Asha
  role: salesperson
local:
  driver: memory
remote:
  driver: memory
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, UserConfig{ID: "U1", Name: "Asha", Role: RoleSalesperson}, cfg.User)
	assert.Equal(t, DriverMemory, cfg.Local.Driver)
	assert.Equal(t, filepath.Join(dir, "state.json.gz"), cfg.Local.Path)
	assert.Equal(t, filepath.Join(dir, "images"), cfg.Images.Dir)
	assert.Equal(t, 15*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Doctor.Timeout)
	assert.InDelta(t, 0.001, cfg.Catalog.FilterFPR, 1e-9)
	assert.True(t, cfg.Catalog.Validate)
	assert.Equal(t, order.TypeSalesAssisted, cfg.User.OrderType())
}

func TestLoadConfig_DatabaseURLFallback(t *testing.T) {
	path := writeConfig(t, "data_dir: "+t.TempDir()+"\n")
	t.Setenv("STOREFRONT_REMOTE_DRIVER", DriverPostgres)
	t.Setenv("DATABASE_URL", "postgres://storefront@localhost/storefront")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://storefront@localhost/storefront", cfg.Remote.DatabaseURL)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown local driver", body: "local:\n  driver: sqlite\nremote:\n  driver: memory\n"},
		{name: "unknown remote driver", body: "remote:\n  driver: s3\n"},
		{name: "rtdb without url", body: "remote:\n  driver: rtdb\n"},
		{name: "unknown role", body: "remote:\n  driver: memory\nuser:\n  role: manager\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "data_dir: "+t.TempDir()+"\n"+tt.body)
			_, err := LoadConfig(path)
			require.Error(t, err)
		})
	}
}

func TestUserConfig_OrderType(t *testing.T) {
	assert.Equal(t, order.TypeSelfService, UserConfig{Role: RoleCustomer}.OrderType())
	assert.Equal(t, order.TypeSelfService, UserConfig{Role: RoleAdmin}.OrderType())
	assert.Equal(t, order.TypeSalesAssisted, UserConfig{Role: RoleSalesperson}.OrderType())
}

package app

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/order"
)

// Storage drivers.
const (
	DriverFile     = "file"
	DriverMemory   = "memory"
	DriverRTDB     = "rtdb"
	DriverPostgres = "postgres"
)

// User roles.
const (
	RoleCustomer    = "customer"
	RoleSalesperson = "salesperson"
	RoleAdmin       = "admin"
)

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix) or YAML config files.
type Config struct {
	DataDir string `default:"" usage:"Directory for local state (default: user cache dir)"`
	User    UserConfig
	Local   LocalConfig
	Remote  RemoteConfig
	Catalog CatalogConfig
	Images  ImagesConfig
	Doctor  DoctorConfig
}

// UserConfig identifies who is using the storefront.
type UserConfig struct {
	ID   string `usage:"User ID recorded as created_by/updated_by"`
	Name string `usage:"Display name recorded as ordered_by"`
	Role string `default:"customer" usage:"customer, salesperson or admin"`
}

// LocalConfig selects the durable local store holding the draft order.
type LocalConfig struct {
	Driver string `default:"file" usage:"file or memory"`
	Path   string `default:"" usage:"State file (default: <data-dir>/state.json.gz)"`
}

// RemoteConfig selects the remote order store and catalog.
type RemoteConfig struct {
	Driver      string        `default:"rtdb" usage:"rtdb, postgres or memory"`
	URL         string        `usage:"Realtime Database base URL"`
	AuthToken   string        `usage:"Realtime Database auth token"`
	DatabaseURL string        `usage:"PostgreSQL connection URL (STOREFRONT_REMOTE_DATABASE_URL or DATABASE_URL)"`
	Timeout     time.Duration `default:"15s" usage:"Remote request timeout"`
	Migrate     bool          `default:"true" usage:"Apply the embedded schema on start (postgres)"`
}

// CatalogConfig controls the cached product catalog.
type CatalogConfig struct {
	Validate  bool    `default:"true" usage:"Reject cart additions of unknown products"`
	FilterFPR float64 `default:"0.001" usage:"False positive rate of the product filter"`
}

// ImagesConfig controls the local image cache.
type ImagesConfig struct {
	Dir         string `default:"" usage:"Image cache directory (default: <data-dir>/images)"`
	Prefetch    bool   `default:"true" usage:"Download product images after a catalog refresh"`
	Concurrency int    `default:"4" usage:"Parallel image downloads"`
}

// DoctorConfig controls dependency checks.
type DoctorConfig struct {
	Timeout time.Duration `default:"5s" usage:"Per-check timeout"`
}

// DefaultConfigFiles are read in order when no explicit file is given.
var DefaultConfigFiles = []string{"storefront.yaml", "/etc/storefront/config.yaml"}

// LoadConfig loads configuration from environment variables and YAML config
// files, and applies platform-specific defaults. Flags are owned by the
// command line and are not read here.
func LoadConfig(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = DefaultConfigFiles
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: true,
		EnvPrefix: "STOREFRONT",
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
			".yml":  aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if err := cfg.applyPlatformDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults fills paths under the user cache directory and maps
// the standard DATABASE_URL variable to the postgres driver.
func (c *Config) applyPlatformDefaults() error {
	if c.DataDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return errors.Wrap(err, "resolve data dir")
		}
		c.DataDir = filepath.Join(base, "storefront")
	}
	if c.Local.Path == "" {
		c.Local.Path = filepath.Join(c.DataDir, "state.json.gz")
	}
	if c.Images.Dir == "" {
		c.Images.Dir = filepath.Join(c.DataDir, "images")
	}
	if c.Remote.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.Remote.DatabaseURL = v
		}
	}
	return nil
}

// Validate checks driver selections and their required settings.
func (c *Config) Validate() error {
	switch c.Local.Driver {
	case DriverFile, DriverMemory:
	default:
		return errors.Errorf("unknown local driver %q", c.Local.Driver)
	}
	switch c.Remote.Driver {
	case DriverRTDB:
		if c.Remote.URL == "" {
			return errors.New("realtime database URL is required: set STOREFRONT_REMOTE_URL")
		}
	case DriverPostgres:
		if c.Remote.DatabaseURL == "" {
			return errors.New("database URL is required: set STOREFRONT_REMOTE_DATABASE_URL or DATABASE_URL")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown remote driver %q", c.Remote.Driver)
	}
	switch c.User.Role {
	case RoleCustomer, RoleSalesperson, RoleAdmin:
	default:
		return errors.Errorf("unknown role %q", c.User.Role)
	}
	return nil
}

// OrderType returns the order type recorded for orders placed by the user.
func (u UserConfig) OrderType() string {
	if u.Role == RoleSalesperson {
		return order.TypeSalesAssisted
	}
	return order.TypeSelfService
}

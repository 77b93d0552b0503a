package gotrue

import (
	"net/url"
	"time"

	"github.com/wastelandatlas/authkit/pkg/validator"
)

// Default tunables applied by New when the config leaves them unset.
const (
	DefaultProfileTable  = "profiles"
	DefaultHTTPTimeout   = 10 * time.Second
	DefaultEventBuffer   = 8
	DefaultRefreshMargin = 60 * time.Second
)

// Config holds the connection settings for a GoTrue project. URL is the
// project base; the auth API lives under /auth/v1 and the data API under
// /rest/v1.
type Config struct {
	URL     string `env:"GOTRUE_URL,required"`
	AnonKey string `env:"GOTRUE_ANON_KEY,required"`

	// ProfileTable is the PostgREST table holding profile rows keyed by user
	// id, with a uniqueness constraint on the username column.
	ProfileTable string `env:"GOTRUE_PROFILE_TABLE" envDefault:"profiles"`

	HTTPTimeout time.Duration `env:"GOTRUE_HTTP_TIMEOUT" envDefault:"10s"`
	EventBuffer int           `env:"GOTRUE_EVENT_BUFFER" envDefault:"8"`

	// AutoRefresh enables the background token-refresh loop; RefreshMargin is
	// how long before expiry a refresh is attempted.
	AutoRefresh   bool          `env:"GOTRUE_AUTO_REFRESH" envDefault:"true"`
	RefreshMargin time.Duration `env:"GOTRUE_REFRESH_MARGIN" envDefault:"60s"`
}

// Validate checks the settings a client cannot operate without.
func (cfg Config) Validate() error {
	if err := validator.Apply(
		validator.RequiredString("url", cfg.URL),
		validator.RequiredString("anon_key", cfg.AnonKey),
	); err != nil {
		return err
	}

	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return validator.ValidationErrors{{Field: "url", Message: "must be an absolute URL"}}
	}
	return nil
}

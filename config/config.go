// Package config loads client options from the environment and an optional
// YAML file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/spf13/viper"

	authclient "github.com/goliatone/go-auth-client"
)

// EnvPrefix is prepended to every environment variable, e.g.
// AUTHCLIENT_BASE_URL or AUTHCLIENT_CLASSIFIER_PRIVILEGE_KEYWORDS.
const EnvPrefix = "AUTHCLIENT"

// Config holds client configuration. It implements authclient.Config.
type Config struct {
	BaseURL         string                     `mapstructure:"base_url"`
	RequestTimeout  time.Duration              `mapstructure:"request_timeout"`
	AuthScheme      string                     `mapstructure:"auth_scheme"`
	AuthHeader      string                     `mapstructure:"auth_header"`
	CSRFHeader      string                     `mapstructure:"csrf_header"`
	RoleSettleDelay time.Duration              `mapstructure:"role_settle_delay"`
	PhoneRegion     string                     `mapstructure:"phone_region"`
	RateLimit       float64                    `mapstructure:"rate_limit"`
	RateBurst       int                        `mapstructure:"rate_burst"`
	StorageDSN      string                     `mapstructure:"storage_dsn"`
	Classifier      authclient.ClassifierRules `mapstructure:"classifier"`
}

var _ authclient.Config = &Config{}

// Load reads the YAML file at path (skipped when empty or missing), then
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isMissingFile(err) {
				return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read config file").
					WithMetadata(map[string]any{"path": path})
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to decode config")
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	rules := authclient.DefaultClassifierRules()
	return &Config{
		BaseURL:         "http://localhost:3000/api",
		RequestTimeout:  10 * time.Second,
		AuthScheme:      "Bearer",
		AuthHeader:      "Authorization",
		CSRFHeader:      "X-CSRF-Token",
		RoleSettleDelay: authclient.DefaultRoleSettleDelay,
		PhoneRegion:     authclient.DefaultPhoneRegion,
		StorageDSN:      "file:authclient.db?cache=shared",
		RateBurst:       1,
		Classifier:      rules,
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("auth_scheme", d.AuthScheme)
	v.SetDefault("auth_header", d.AuthHeader)
	v.SetDefault("csrf_header", d.CSRFHeader)
	v.SetDefault("role_settle_delay", d.RoleSettleDelay)
	v.SetDefault("phone_region", d.PhoneRegion)
	v.SetDefault("rate_limit", d.RateLimit)
	v.SetDefault("rate_burst", d.RateBurst)
	v.SetDefault("storage_dsn", d.StorageDSN)
	v.SetDefault("classifier.privilege_keywords", d.Classifier.PrivilegeKeywords)
	v.SetDefault("classifier.session_expired_codes", d.Classifier.SessionExpiredCodes)
	v.SetDefault("classifier.session_expired_keywords", d.Classifier.SessionExpiredKeywords)
	v.SetDefault("classifier.invalid_token_keywords", d.Classifier.InvalidTokenKeywords)
}

func (c *Config) normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.PhoneRegion = strings.ToUpper(strings.TrimSpace(c.PhoneRegion))
	c.Classifier.PrivilegeKeywords = splitList(c.Classifier.PrivilegeKeywords)
	c.Classifier.SessionExpiredCodes = splitList(c.Classifier.SessionExpiredCodes)
	c.Classifier.SessionExpiredKeywords = splitList(c.Classifier.SessionExpiredKeywords)
	c.Classifier.InvalidTokenKeywords = splitList(c.Classifier.InvalidTokenKeywords)
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.RequestTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.AuthScheme, validation.Required),
		validation.Field(&c.AuthHeader, validation.Required),
		validation.Field(&c.PhoneRegion, validation.Length(2, 2)),
		validation.Field(&c.RateLimit, validation.Min(0.0)),
		validation.Field(&c.RateBurst, validation.Min(0)),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid client configuration").
			WithTextCode(authclient.TextCodeInvalidInput)
	}
	return nil
}

func (c *Config) GetBaseURL() string {
	return c.BaseURL
}

func (c *Config) GetRequestTimeout() time.Duration {
	return c.RequestTimeout
}

func (c *Config) GetAuthScheme() string {
	return c.AuthScheme
}

func (c *Config) GetAuthHeader() string {
	return c.AuthHeader
}

func (c *Config) GetCSRFHeader() string {
	return c.CSRFHeader
}

func (c *Config) GetClassifierRules() authclient.ClassifierRules {
	return c.Classifier
}

func (c *Config) GetRoleSettleDelay() time.Duration {
	return c.RoleSettleDelay
}

func (c *Config) GetPhoneRegion() string {
	return c.PhoneRegion
}

func (c *Config) GetRateLimit() float64 {
	return c.RateLimit
}

func (c *Config) GetRateBurst() int {
	return c.RateBurst
}

func (c *Config) GetStorageDSN() string {
	return c.StorageDSN
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func isMissingFile(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "no such file")
}

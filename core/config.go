package core

import (
	"net"
	"net/mail"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const envPrefix = "TUTORHUB"

type (
	Config struct {
		Env             string
		Debug           bool
		TestMode        bool
		AppName         string
		Build           string
		SecretKey       string
		FrontendBaseURL string
		RollbarToken    string

		Database     DatabaseConfig
		Identity     IdentityConfig
		Server       ServerConfig
		Mail         MailConfig
		Metrics      MetricsConfig
		Provisioning ProvisioningConfig
	}

	DatabaseConfig struct {
		URL        string
		Engine     string
		Host       string
		Port       int
		User       string
		Password   string
		Name       string
		DisableTLS bool
	}

	IdentityConfig struct {
		Provider          string // gotrue | kratos
		URL               string
		ServiceKey        string
		KratosAdminURL    string
		SchemaID          string
		Timeout           time.Duration
		RequestsPerSecond float64
		InviteRedirectURL string
		RecoveryLinkTTL   time.Duration
	}

	ServerConfig struct {
		Host               string
		Address            string
		DebugAddress       string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	MailConfig struct {
		SendgridApiKey   string
		DefaultFromEmail string
		ReportRecipients []string
	}

	MetricsConfig struct {
		PushgatewayURL string
		JobName        string
	}

	ProvisioningConfig struct {
		ProgressEvery int
		MigratedFrom  string
	}
)

// Address returns the "host:port" address of the database server.
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DSN returns the connection string of the database, preferring an explicit URL.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}

	sslMode := "require"
	if c.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   c.Engine,
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Address(),
		Path:     c.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.Mail.DefaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	if addr.Name == "" {
		addr.Name = c.AppName
	}
	return *addr
}

// ReportRecipients returns the parsed operator addresses that receive run reports.
func (c *Config) ReportRecipients() []mail.Address {
	addrs := make([]mail.Address, 0, len(c.Mail.ReportRecipients))
	for _, raw := range c.Mail.ReportRecipients {
		if addr, err := mail.ParseAddress(CleanString(raw)); err == nil {
			addrs = append(addrs, *addr)
		}
	}
	return addrs
}

// RequireIdentity checks that the identity provider can be reached with a credential.
func (c *Config) RequireIdentity() error {
	switch c.Identity.Provider {
	case "gotrue":
		if c.Identity.URL == "" {
			return errors.New("identity provider URL is not set (TUTORHUB_IDENTITY_URL or SUPABASE_URL)")
		}
		if c.Identity.ServiceKey == "" {
			return errors.New("identity provider key is not set (TUTORHUB_IDENTITY_SERVICEKEY or SUPABASE_SERVICE_ROLE_KEY)")
		}
	case "kratos":
		if c.Identity.KratosAdminURL == "" {
			return errors.New("kratos admin URL is not set (TUTORHUB_IDENTITY_KRATOSADMINURL or KRATOS_ADMIN_URL)")
		}
	default:
		return errors.Errorf("unknown identity provider %q", c.Identity.Provider)
	}
	return nil
}

// RequireSecretKey checks that PROD does not sign tokens with the development key.
func (c *Config) RequireSecretKey() error {
	if c.SecretKey == "" {
		return errors.New("secret key is not set (TUTORHUB_SECRETKEY)")
	}
	if c.Env == "PROD" && c.SecretKey == devSecretKey {
		return errors.New("secret key is the development default (set TUTORHUB_SECRETKEY)")
	}
	return nil
}

// RequireDatabase checks that a data source is configured.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" && (c.Database.Host == "" || c.Database.Name == "") {
		return errors.New("data source is not set (TUTORHUB_DATABASE_URL or DATABASE_URL)")
	}
	return nil
}

const devSecretKey = "ru3(x_9s!k2p$d7g+q#w@0z&v1m8e^c4t6y5h)b-n=a*j"

// NewConfig reads the configuration from defaults, the optional ".env.<env>" file and the environment.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("appName", "Tutorhub")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", devSecretKey)
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("database.url", "")
	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.disableTLS", env == "DEV" || env == "TEST")

	v.SetDefault("identity.provider", "gotrue")
	v.SetDefault("identity.url", "")
	v.SetDefault("identity.serviceKey", "")
	v.SetDefault("identity.kratosAdminURL", "")
	v.SetDefault("identity.schemaID", "default")
	v.SetDefault("identity.timeout", 30*time.Second)
	v.SetDefault("identity.requestsPerSecond", 0.0) // unlimited
	v.SetDefault("identity.inviteRedirectURL", "")
	v.SetDefault("identity.recoveryLinkTTL", 72*time.Hour)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugAddress", ":4000")
	v.SetDefault("server.shutdownTimeout", 10*time.Second)
	v.SetDefault("server.jwtExpirationDelta", time.Hour)

	v.SetDefault("mail.sendgridApiKey", "")
	v.SetDefault("mail.defaultFromEmail", "Tutorhub <noreply@localhost>")
	v.SetDefault("mail.reportRecipients", []string{})

	v.SetDefault("metrics.pushgatewayURL", "")
	v.SetDefault("metrics.jobName", "identity_provisioning")

	v.SetDefault("provisioning.progressEvery", 200)
	v.SetDefault("provisioning.migratedFrom", "legacy-system")

	// load .env if it exists (ignore if it does not)
	loadDotEnv(env)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// well-known variables used by the rest of the platform
	_ = v.BindEnv("database.url", envPrefix+"_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("identity.url", envPrefix+"_IDENTITY_URL", "SUPABASE_URL")
	_ = v.BindEnv("identity.serviceKey", envPrefix+"_IDENTITY_SERVICEKEY", "SUPABASE_SERVICE_ROLE_KEY")
	_ = v.BindEnv("identity.kratosAdminURL", envPrefix+"_IDENTITY_KRATOSADMINURL", "KRATOS_ADMIN_URL")
	_ = v.BindEnv("mail.sendgridApiKey", envPrefix+"_MAIL_SENDGRIDAPIKEY", "SENDGRID_API_KEY")
	_ = v.BindEnv("rollbarToken", envPrefix+"_ROLLBARTOKEN", "ROLLBAR_TOKEN")
	_ = v.BindEnv("metrics.pushgatewayURL", envPrefix+"_METRICS_PUSHGATEWAYURL", "PUSHGATEWAY_URL")

	return &Config{
		Env:             env,
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("testMode"),
		AppName:         v.GetString("appName"),
		Build:           v.GetString("build"),
		SecretKey:       v.GetString("secretKey"),
		FrontendBaseURL: v.GetString("frontendBaseURL"),
		RollbarToken:    v.GetString("rollbarToken"),
		Database: DatabaseConfig{
			URL:        v.GetString("database.url"),
			Engine:     v.GetString("database.engine"),
			Host:       v.GetString("database.host"),
			Port:       v.GetInt("database.port"),
			User:       v.GetString("database.user"),
			Password:   v.GetString("database.password"),
			Name:       v.GetString("database.name"),
			DisableTLS: v.GetBool("database.disableTLS"),
		},
		Identity: IdentityConfig{
			Provider:          strings.ToLower(v.GetString("identity.provider")),
			URL:               strings.TrimRight(v.GetString("identity.url"), "/"),
			ServiceKey:        v.GetString("identity.serviceKey"),
			KratosAdminURL:    strings.TrimRight(v.GetString("identity.kratosAdminURL"), "/"),
			SchemaID:          v.GetString("identity.schemaID"),
			Timeout:           v.GetDuration("identity.timeout"),
			RequestsPerSecond: v.GetFloat64("identity.requestsPerSecond"),
			InviteRedirectURL: v.GetString("identity.inviteRedirectURL"),
			RecoveryLinkTTL:   v.GetDuration("identity.recoveryLinkTTL"),
		},
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Address:            v.GetString("server.address"),
			DebugAddress:       v.GetString("server.debugAddress"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Mail: MailConfig{
			SendgridApiKey:   v.GetString("mail.sendgridApiKey"),
			DefaultFromEmail: v.GetString("mail.defaultFromEmail"),
			ReportRecipients: v.GetStringSlice("mail.reportRecipients"),
		},
		Metrics: MetricsConfig{
			PushgatewayURL: v.GetString("metrics.pushgatewayURL"),
			JobName:        v.GetString("metrics.jobName"),
		},
		Provisioning: ProvisioningConfig{
			ProgressEvery: v.GetInt("provisioning.progressEvery"),
			MigratedFrom:  v.GetString("provisioning.migratedFrom"),
		},
	}
}

func loadDotEnv(env string) {
	dir := os.Getenv("CONFIG_DIR")
	if dir == "" {
		dir = "config"
	}
	dotEnvPath := filepath.Join(dir, ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		// variables already set in the environment win
		_ = godotenv.Load(dotEnvPath)
	}
}

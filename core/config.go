package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// development fallbacks. Rejected by Config.Validate in production.
const (
	fallbackSecretKey        = "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy"
	fallbackSysAdminUsername = "sysadmin"
	fallbackSysAdminPassword = "sysadmin"

	EnvDev  = "DEV"
	EnvTest = "TEST"
	EnvQA   = "QA"
	EnvProd = "PROD"

	EnginePostgres = "postgres"
	EngineMemory   = "memory" // process-local; for demos and tests
)

var errInvalidConfig = errors.New("invalid configuration")

type (
	Config struct {
		AppName          string
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		WorkDir          string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		SendgridApiKey   string
		RollbarToken     string
		PhoneRegion      string

		Server   ServerConfig
		Auth     AuthConfig
		Database DatabaseConfig
		Redis    RedisConfig
	}

	ServerConfig struct {
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	AuthConfig struct {
		SessionTokenTTL           time.Duration
		SessionRefreshTTL         time.Duration
		SetupTokenTTL             time.Duration
		InvitationTTL             time.Duration
		PasswordResetTimeoutDelta time.Duration
		SysAdminUsername          string
		SysAdminPassword          string
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Addr       string
		Password   string
		DB         int
		RateLimit  int
		RateWindow time.Duration
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

// NewConfig loads the configuration of the current ENV (DEV by default).
// Values come from `config/.env.<env>` (if present) and the environment, prefixed with the ENV name.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = EnvDev
	}
	if env == EnvTest {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := fromViper(v)
	conf.Env = env
	conf.WorkDir = workDir
	return conf
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "Academia")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("secretKey", fallbackSecretKey)
	v.SetDefault("frontendBaseUrl", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "Academia <noreply@localhost>")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("phoneRegion", "US")

	v.SetDefault("server.host", "0.0.0.0:8000")
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)

	v.SetDefault("auth.sessionTokenTTL", 24*time.Hour)
	v.SetDefault("auth.sessionRefreshTTL", 7*24*time.Hour)
	v.SetDefault("auth.setupTokenTTL", 7*24*time.Hour)
	v.SetDefault("auth.invitationTTL", 7*24*time.Hour)
	v.SetDefault("auth.passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("auth.sysAdminUsername", fallbackSysAdminUsername)
	v.SetDefault("auth.sysAdminPassword", fallbackSysAdminPassword)

	v.SetDefault("database.engine", EnginePostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "academia")
	v.SetDefault("database.user", "academia")
	v.SetDefault("database.password", "academia")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.rateLimit", 20)
	v.SetDefault("redis.rateWindow", time.Minute)
}

func fromViper(v *viper.Viper) *Config {
	conf := &Config{
		AppName:         v.GetString("appName"),
		Build:           v.GetString("build"),
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("testMode"),
		SecretKey:       v.GetString("secretKey"),
		FrontendBaseURL: strings.TrimRight(v.GetString("frontendBaseUrl"), "/"),
		SendgridApiKey:  v.GetString("sendgridApiKey"),
		RollbarToken:    v.GetString("rollbarToken"),
		PhoneRegion:     strings.ToUpper(v.GetString("phoneRegion")),
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
		},
		Auth: AuthConfig{
			SessionTokenTTL:           v.GetDuration("auth.sessionTokenTTL"),
			SessionRefreshTTL:         v.GetDuration("auth.sessionRefreshTTL"),
			SetupTokenTTL:             v.GetDuration("auth.setupTokenTTL"),
			InvitationTTL:             v.GetDuration("auth.invitationTTL"),
			PasswordResetTimeoutDelta: v.GetDuration("auth.passwordResetTimeoutDelta"),
			SysAdminUsername:          v.GetString("auth.sysAdminUsername"),
			SysAdminPassword:          v.GetString("auth.sysAdminPassword"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			Addr:       v.GetString("redis.addr"),
			Password:   v.GetString("redis.password"),
			DB:         v.GetInt("redis.db"),
			RateLimit:  v.GetInt("redis.rateLimit"),
			RateWindow: v.GetDuration("redis.rateWindow"),
		},
	}
	if addr, err := mail.ParseAddress(v.GetString("defaultFromEmail")); err == nil {
		conf.DefaultFromEmail = *addr
	}
	return conf
}

// NewTestConfig returns a Config suitable for tests. It never reads the environment.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	v.Set("debug", false)
	v.Set("testMode", true)
	conf := fromViper(v)
	conf.Env = EnvTest
	return conf
}

func (c *Config) IsProduction() bool { return c.Env == EnvProd }

// Validate checks that the configuration is usable. Production deployments must override every
// development fallback secret.
func (c *Config) Validate() error {
	var problems []string
	fail := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.SecretKey == "" {
		fail("secretKey is required")
	}
	if c.Auth.SysAdminUsername == "" || c.Auth.SysAdminPassword == "" {
		fail("auth.sysAdminUsername and auth.sysAdminPassword are required")
	}
	if c.DefaultFromEmail.Address == "" {
		fail("defaultFromEmail must be a valid address")
	}
	if c.Database.Engine != EnginePostgres && c.Database.Engine != EngineMemory {
		fail("database.engine must be one of %s or %s", EnginePostgres, EngineMemory)
	}
	for name, d := range map[string]time.Duration{
		"auth.sessionTokenTTL":           c.Auth.SessionTokenTTL,
		"auth.sessionRefreshTTL":         c.Auth.SessionRefreshTTL,
		"auth.setupTokenTTL":             c.Auth.SetupTokenTTL,
		"auth.invitationTTL":             c.Auth.InvitationTTL,
		"auth.passwordResetTimeoutDelta": c.Auth.PasswordResetTimeoutDelta,
	} {
		if d <= 0 {
			fail("%s must be positive", name)
		}
	}

	if c.IsProduction() {
		if c.SecretKey == fallbackSecretKey || len(c.SecretKey) < 32 {
			fail("secretKey must be set to a private value of at least 32 characters in production")
		}
		if c.Auth.SysAdminUsername == fallbackSysAdminUsername || c.Auth.SysAdminPassword == fallbackSysAdminPassword {
			fail("system admin credentials must be overridden in production")
		}
		if c.Debug {
			fail("debug must be disabled in production")
		}
		if c.Database.Engine == EngineMemory {
			fail("database.engine %s is not allowed in production", EngineMemory)
		}
		if c.SendgridApiKey == "" {
			fail("sendgridApiKey is required in production")
		}
	}

	if len(problems) > 0 {
		return errors.Wrap(errInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug    bool
		TestMode bool
		Env      string // DEV (local; default), TEST, QA, PROD
		Build    string

		AppName                   string
		SecretKey                 string
		FrontendBaseURL           string
		DefaultFromEmail          mail.Address
		PasswordResetTimeoutDelta time.Duration

		RollbarToken   string
		SendgridApiKey string

		Server      ServerConfig
		Database    DatabaseConfig
		WTL         WTLConfig
		GoogleForms GoogleFormsConfig
		Sync        SyncConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine       string
		Host         string
		Port         int
		User         string
		Password     string
		Name         string
		DisableTLS   bool
		MaxOpenConns int
	}

	// WTLConfig holds the settings of the external "Web To Learn" REST API.
	WTLConfig struct {
		BaseURL           string
		APIKey            string
		Timeout           time.Duration
		PageSize          int
		RequestsPerSecond float64
	}

	GoogleFormsConfig struct {
		CredentialsFile string
		FormIDs         []string
		PageSize        int
	}

	SyncConfig struct {
		Enabled         bool
		UsersInterval   time.Duration
		CoursesInterval time.Duration
		SurveysInterval time.Duration
	}
)

func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, strconv.Itoa(dc.Port))
}

// NewConfig loads the app configuration from `config/.env.<env>` (if any) and the environment.
// Every key can be overridden with an env var prefixed with the env name, eg. `PROD_DATABASE_HOST`.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "WTL Assistant")
	v.SetDefault("secretKey", "z1k!w8e-tl3f(q0o)2_h$9r#n@vdj6m+4cgp^a7xs5bu&yi")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "WTL Assistant <noreply@localhost>")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "wtl_assistant")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.maxOpenConns", 10)

	v.SetDefault("wtl.baseURL", "https://api.webtolearn.example/v1")
	v.SetDefault("wtl.apiKey", "")
	v.SetDefault("wtl.timeout", 30*time.Second)
	v.SetDefault("wtl.pageSize", 100)
	v.SetDefault("wtl.requestsPerSecond", 5.0)

	v.SetDefault("googleForms.credentialsFile", "")
	v.SetDefault("googleForms.formIDs", "")
	v.SetDefault("googleForms.pageSize", 100)

	v.SetDefault("sync.enabled", false)
	v.SetDefault("sync.usersInterval", 6*time.Hour)
	v.SetDefault("sync.coursesInterval", 6*time.Hour)
	v.SetDefault("sync.surveysInterval", 30*time.Minute)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	fromEmail, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}

	return &Config{
		Debug:    v.GetBool("debug"),
		TestMode: v.GetBool("testMode"),
		Env:      env,
		Build:    v.GetString("build"),

		AppName:                   v.GetString("appName"),
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           strings.TrimSuffix(v.GetString("frontendBaseURL"), "/"),
		DefaultFromEmail:          *fromEmail,
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),

		RollbarToken:   v.GetString("rollbarToken"),
		SendgridApiKey: v.GetString("sendgridApiKey"),

		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:       v.GetString("database.engine"),
			Host:         v.GetString("database.host"),
			Port:         v.GetInt("database.port"),
			User:         v.GetString("database.user"),
			Password:     v.GetString("database.password"),
			Name:         v.GetString("database.name"),
			DisableTLS:   v.GetBool("database.disableTLS"),
			MaxOpenConns: v.GetInt("database.maxOpenConns"),
		},
		WTL: WTLConfig{
			BaseURL:           strings.TrimSuffix(v.GetString("wtl.baseURL"), "/"),
			APIKey:            v.GetString("wtl.apiKey"),
			Timeout:           v.GetDuration("wtl.timeout"),
			PageSize:          v.GetInt("wtl.pageSize"),
			RequestsPerSecond: v.GetFloat64("wtl.requestsPerSecond"),
		},
		GoogleForms: GoogleFormsConfig{
			CredentialsFile: v.GetString("googleForms.credentialsFile"),
			FormIDs:         splitList(v.GetString("googleForms.formIDs")),
			PageSize:        v.GetInt("googleForms.pageSize"),
		},
		Sync: SyncConfig{
			Enabled:         v.GetBool("sync.enabled"),
			UsersInterval:   v.GetDuration("sync.usersInterval"),
			CoursesInterval: v.GetDuration("sync.coursesInterval"),
			SurveysInterval: v.GetDuration("sync.surveysInterval"),
		},
	}
}

// NewTestConfig returns a config suitable for unit tests; nothing is read from the environment.
func NewTestConfig() *Config {
	return &Config{
		Debug:                     false,
		TestMode:                  true,
		Env:                       "TEST",
		Build:                     "test",
		AppName:                   "WTL Assistant",
		SecretKey:                 "secret",
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          mail.Address{Name: "WTL Assistant", Address: "noreply@localhost"},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Server: ServerConfig{
			Host:                      "localhost",
			Address:                   ":8000",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		WTL:         WTLConfig{PageSize: 2, Timeout: 5 * time.Second, RequestsPerSecond: 1000},
		GoogleForms: GoogleFormsConfig{PageSize: 2},
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("%s (env: %s, build: %s, debug: %t)", c.AppName, c.Env, c.Build, c.Debug)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

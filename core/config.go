package core

import (
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

type Config struct {
	viper *viper.Viper

	Env                 string // DEV (local; default), TEST, QA, PROD
	Debug               bool
	TestMode            bool
	AppName             string
	Build               string
	SecretKey           string
	WorkDir             string
	RollbarToken        string
	SendgridApiKey      string
	NotifyAbsences      bool
	CommonPasswordsPath string

	Server struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		DisableReqLogs            bool
	}

	Database struct {
		Engine        string // postgres | sqlite | memory
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite only
	}

	Portal struct {
		BaseURL   string
		TokenFile string
		Timeout   time.Duration
	}
}

// NewConfig loads the configuration from the environment (and the optional `config/.env.<env>` file).
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Mahudhurio")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "ch4ng3-m3_4tt3nd4nc3+s3cr3t!k3y(d3v)")
	v.SetDefault("defaultFromEmail", "Mahudhurio <noreply@localhost>")
	v.SetDefault("notifyAbsences", false)
	v.SetDefault("commonPasswordsPath", filepath.Join("assets", "common-passwords.txt.gz"))

	v.SetDefault("server.host", "0.0.0.0:8000")
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.disableReqLogs", false)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "mahudhurio")
	v.SetDefault("database.user", "mahudhurio")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.path", "mahudhurio.db")

	v.SetDefault("portal.baseURL", "http://localhost:8000")
	v.SetDefault("portal.tokenFile", defaultTokenFile())
	v.SetDefault("portal.timeout", 15*time.Second)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
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

	conf := &Config{
		viper:               v,
		Env:                 env,
		Debug:               v.GetBool("debug"),
		TestMode:            v.GetBool("testMode"),
		AppName:             v.GetString("appName"),
		Build:               v.GetString("build"),
		SecretKey:           v.GetString("secretKey"),
		WorkDir:             workDir,
		RollbarToken:        v.GetString("rollbarToken"),
		SendgridApiKey:      v.GetString("sendgridApiKey"),
		NotifyAbsences:      v.GetBool("notifyAbsences"),
		CommonPasswordsPath: v.GetString("commonPasswordsPath"),
	}
	if !filepath.IsAbs(conf.CommonPasswordsPath) {
		conf.CommonPasswordsPath = filepath.Join(workDir, conf.CommonPasswordsPath)
	}

	conf.Server.Host = v.GetString("server.host")
	conf.Server.DebugHost = v.GetString("server.debugHost")
	conf.Server.ShutdownTimeout = v.GetDuration("server.shutdownTimeout")
	conf.Server.JWTExpirationDelta = v.GetDuration("server.jwtExpirationDelta")
	conf.Server.JWTRefreshExpirationDelta = v.GetDuration("server.jwtRefreshExpirationDelta")
	conf.Server.DisableReqLogs = v.GetBool("server.disableReqLogs")

	conf.Database.Engine = strings.ToLower(v.GetString("database.engine"))
	conf.Database.Host = v.GetString("database.host")
	conf.Database.Port = v.GetInt("database.port")
	conf.Database.Name = v.GetString("database.name")
	conf.Database.User = v.GetString("database.user")
	conf.Database.Password = v.GetString("database.password")
	conf.Database.AdminUser = v.GetString("database.adminUser")
	conf.Database.AdminPassword = v.GetString("database.adminPassword")
	conf.Database.DisableTLS = v.GetBool("database.disableTLS")
	conf.Database.Path = v.GetString("database.path")

	conf.Portal.BaseURL = strings.TrimRight(v.GetString("portal.baseURL"), "/")
	conf.Portal.TokenFile = v.GetString("portal.tokenFile")
	conf.Portal.Timeout = v.GetDuration("portal.timeout")

	return conf
}

// NewTestConfig returns a Config suited for tests: in-memory sqlite, no request logs, no rollbar.
func NewTestConfig() *Config {
	conf := &Config{
		Env:       "TEST",
		TestMode:  true,
		AppName:   "Mahudhurio",
		Build:     "test",
		SecretKey: "t3st-s3cr3t",
		WorkDir:   os.TempDir(),
	}
	conf.Server.Host = "127.0.0.1:0"
	conf.Server.ShutdownTimeout = time.Second
	conf.Server.JWTExpirationDelta = 24 * time.Hour
	conf.Server.JWTRefreshExpirationDelta = 7 * 24 * time.Hour
	conf.Server.DisableReqLogs = true
	conf.Database.Engine = "sqlite"
	conf.Database.Path = ":memory:"
	conf.Portal.Timeout = 5 * time.Second
	return conf
}

// DefaultFromEmail parses the `defaultFromEmail` setting, e.g. "Mahudhurio <noreply@localhost>".
func (c *Config) DefaultFromEmail() mail.Address {
	raw := "noreply@localhost"
	if c.viper != nil {
		raw = c.viper.GetString("defaultFromEmail")
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: raw}
	}
	return *addr
}

// DatabaseAddress returns the "host:port" of the database server.
func (c *Config) DatabaseAddress() string {
	return net.JoinHostPort(c.Database.Host, strconv.Itoa(c.Database.Port))
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "mahudhurio", "token")
}

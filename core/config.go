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

type (
	Config struct {
		Env             string
		Build           string
		Debug           bool
		TestMode        bool
		AppName         string
		SecretKey       string
		FrontendBaseURL string
		SignupDomain    string
		DefaultBranchID string
		RollbarToken    string
		SendgridApiKey  string

		PasswordResetTimeoutDelta time.Duration

		defaultFromEmail string

		Server    ServerConfig
		Database  DatabaseConfig
		Storage   StorageConfig
		AI        AIConfig
		Scheduler SchedulerConfig
		Seed      SeedConfig
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
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		// PingAttempts bounds how many times the server waits for the database on startup.
		// Attempt n is followed by a pause of n*PingInterval.
		PingAttempts  int
		PingInterval  time.Duration
	}

	// StorageConfig selects the repositories backend: "postgres" or "memory".
	StorageConfig struct {
		Driver     string
		QuotaBytes int
	}

	AIConfig struct {
		APIKey          string
		BaseURL         string
		Model           string
		MaxAttempts     int
		InitialBackoff  time.Duration
		MaxBackoff      time.Duration
		LessonDelay     time.Duration
		CourseDelay     time.Duration
		BootstrapTopics []string
	}

	SchedulerConfig struct {
		Enabled    bool
		ReportCron string
	}

	SeedConfig struct {
		AdminName     string
		AdminEmail    string
		AdminPassword string
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
	}
	return *addr
}

func (c *Config) UsesMemoryStorage() bool {
	return strings.EqualFold(c.Storage.Driver, "memory")
}

func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, strconv.Itoa(dc.Port))
}

// NewConfig loads the configuration for the current ENV (DEV by default) from the
// environment and the optional config/.env.<env> file.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}

	// defaults
	v.SetDefault("build", "develop")
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("appName", "Tallman LMS")
	v.SetDefault("secretKey", "kd93-ab(2s#x+7rj=qmf&w1p)z!h*c4@vyn^$t0eug8lo")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "Tallman LMS <noreply@localhost>")
	v.SetDefault("signupDomain", "tallmanequipment.com")
	v.SetDefault("defaultBranchID", "br_addison")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 4*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "tallman")
	v.SetDefault("database.user", "tallman")
	v.SetDefault("database.password", "tallman")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", env == "DEV" || env == "TEST")
	v.SetDefault("database.pingAttempts", 30)
	v.SetDefault("database.pingInterval", 100*time.Millisecond)

	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("storage.quotaBytes", 5*1024*1024)

	v.SetDefault("ai.apiKey", "")
	v.SetDefault("ai.baseURL", "https://generativelanguage.googleapis.com/v1beta/openai")
	v.SetDefault("ai.model", "gemini-2.0-flash")
	v.SetDefault("ai.maxAttempts", 5)
	v.SetDefault("ai.initialBackoff", 2*time.Second)
	v.SetDefault("ai.maxBackoff", 30*time.Second)
	v.SetDefault("ai.lessonDelay", 400*time.Millisecond)
	v.SetDefault("ai.courseDelay", 1500*time.Millisecond)
	v.SetDefault("ai.bootstrapTopics", []string{
		"Executive Strategic Leadership",
		"Lineman Rigging & Rope Science",
		"Warehouse Management",
		"Testing linemen poles, gloves and sleeves",
		"Selling to power utilities and their contractors",
	})

	v.SetDefault("scheduler.enabled", env == "PROD")
	v.SetDefault("scheduler.reportCron", "0 7 * * 1")

	v.SetDefault("seed.adminName", "LMS Administrator")
	v.SetDefault("seed.adminEmail", "")
	v.SetDefault("seed.adminPassword", "")

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{
		Env:                       env,
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		AppName:                   v.GetString("appName"),
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		SignupDomain:              strings.ToLower(v.GetString("signupDomain")),
		DefaultBranchID:           v.GetString("defaultBranchID"),
		RollbarToken:              v.GetString("rollbarToken"),
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		defaultFromEmail:          v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			PingAttempts:  v.GetInt("database.pingAttempts"),
			PingInterval:  v.GetDuration("database.pingInterval"),
		},
		Storage: StorageConfig{
			Driver:     v.GetString("storage.driver"),
			QuotaBytes: v.GetInt("storage.quotaBytes"),
		},
		AI: AIConfig{
			APIKey:          v.GetString("ai.apiKey"),
			BaseURL:         v.GetString("ai.baseURL"),
			Model:           v.GetString("ai.model"),
			MaxAttempts:     v.GetInt("ai.maxAttempts"),
			InitialBackoff:  v.GetDuration("ai.initialBackoff"),
			MaxBackoff:      v.GetDuration("ai.maxBackoff"),
			LessonDelay:     v.GetDuration("ai.lessonDelay"),
			CourseDelay:     v.GetDuration("ai.courseDelay"),
			BootstrapTopics: v.GetStringSlice("ai.bootstrapTopics"),
		},
		Scheduler: SchedulerConfig{
			Enabled:    v.GetBool("scheduler.enabled"),
			ReportCron: v.GetString("scheduler.reportCron"),
		},
		Seed: SeedConfig{
			AdminName:     v.GetString("seed.adminName"),
			AdminEmail:    strings.ToLower(strings.TrimSpace(v.GetString("seed.adminEmail"))),
			AdminPassword: v.GetString("seed.adminPassword"),
		},
	}
}

// NewTestConfig returns the configuration used by test suites: debug off so error payloads are stable.
func NewTestConfig() *Config {
	conf := NewConfig()
	conf.Env = "TEST"
	conf.Debug = false
	conf.TestMode = true
	conf.SecretKey = "test-secret-key"
	conf.Storage.Driver = "memory"
	conf.Storage.QuotaBytes = 0
	conf.SignupDomain = "tallmanequipment.com"
	conf.DefaultBranchID = "br_addison"
	conf.FrontendBaseURL = "http://localhost:3000"
	conf.AI.InitialBackoff = time.Millisecond
	conf.AI.MaxBackoff = 5 * time.Millisecond
	conf.AI.LessonDelay = 0
	conf.AI.CourseDelay = 0
	return conf
}

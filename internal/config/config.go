package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Backend BackendConfig `mapstructure:"backend"`
	Diagram DiagramConfig `mapstructure:"diagram"`
	History HistoryConfig `mapstructure:"history"`
	Render  RenderConfig  `mapstructure:"render"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" validate:"required"`
	// Port 0 picks a free port.
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`
}

type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type DiagramConfig struct {
	Engine   string        `mapstructure:"engine" validate:"oneof=kroki mmdc"`
	KrokiURL string        `mapstructure:"kroki_url" validate:"required,url"`
	CLIPath  string        `mapstructure:"cli_path"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type HistoryConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type RenderConfig struct {
	CodeStyle     string `mapstructure:"code_style"`
	DarkCodeStyle string `mapstructure:"dark_code_style"`
}

type LogConfig struct {
	Mode string `mapstructure:"mode" validate:"oneof=development production dev prod"`
}

func defaultHistoryPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".tutorbook", "history.db")
	}
	return filepath.Join(dir, "tutorbook", "history.db")
}

// Load reads tutorbook.yaml (from configFile, or the working directory, or
// $HOME/.config/tutorbook) on top of the defaults, then applies environment
// overrides. A missing file is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("tutorbook")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/tutorbook")
	}

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 0)
	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.timeout", 60*time.Second)
	v.SetDefault("diagram.engine", "kroki")
	v.SetDefault("diagram.kroki_url", "https://kroki.io")
	v.SetDefault("diagram.cli_path", "mmdc")
	v.SetDefault("diagram.timeout", 15*time.Second)
	v.SetDefault("history.path", defaultHistoryPath())
	v.SetDefault("render.code_style", "github")
	v.SetDefault("render.dark_code_style", "dracula")
	v.SetDefault("log.mode", "development")

	for key, env := range map[string]string{
		"backend.base_url":  "TUTORBOOK_BACKEND_URL",
		"diagram.kroki_url": "TUTORBOOK_KROKI_URL",
		"diagram.engine":    "TUTORBOOK_DIAGRAM_ENGINE",
		"log.mode":          "TUTORBOOK_LOG_MODE",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s environment variable: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("configuration file found but could not be read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate reports every invalid key in one error, using the yaml key names.
func (c *Config) Validate() error {
	validate := validator.New()
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ := uni.GetTranslator("en")
	_ = enTranslations.RegisterDefaultTranslations(validate, trans)
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("mapstructure")
	})

	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := strings.ToLower(strings.TrimPrefix(fe.Namespace(), "Config."))
		msgs = append(msgs, key+": "+fe.Translate(trans))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

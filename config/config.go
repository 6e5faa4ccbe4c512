package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "RECONSTRUCT"

	DefaultCombinedName  = "messages.json"
	DefaultDownloadDir   = "download"
	DefaultRateThreshold = 9500
	DefaultRateWindow    = 600 * time.Second
	DefaultRateCooldown  = 600 * time.Second
	DefaultTimeout       = 60 * time.Second
)

var ErrInputsMissing = errors.New("both --input-file-1 and --input-file-2 are required")

// Logging holds the flags shared by every command.
type Logging struct {
	Level  string `validate:"oneof=debug info warn error"`
	Dir    string
	Format string `validate:"oneof=text json"`
}

// Config captures all options required to reconstruct a conversation.
type Config struct {
	InputFile1   string
	InputFile2   string
	OutputFolder string `validate:"required"`
	CombinedName string `validate:"required,excludesall=/\\"`
	DownloadDir  string `validate:"required"`

	DryRun       bool
	SkipDownload bool

	RateThreshold int           `validate:"gt=0"`
	RateWindow    time.Duration `validate:"gt=0"`
	RateCooldown  time.Duration `validate:"gte=0"`
	MaxRPS        float64       `validate:"gte=0"`
	Timeout       time.Duration `validate:"gte=0"`
	UserAgent     string

	IncludeRefs []string
	ExcludeRefs []string

	MetricsFile  string
	ManifestFile string
	MboxExport   string
	Preview      int `validate:"gte=0"`

	Log Logging
}

// RegisterPersistentFlags attaches the logging and config file flags shared by
// the root command and its subcommands.
func RegisterPersistentFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "Optional config file (yaml, json or toml)")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (logs to both console and file)")
	flags.String("log-format", "text", "Log format: text or json")
}

// RegisterFlags attaches the reconstruction flags to the provided command.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("input-file-1", "1", "", "Path to the first message log")
	flags.StringP("input-file-2", "2", "", "Path to the second message log")
	flags.StringP("output-folder", "o", ".", "Folder receiving the combined log and the download directory")
	flags.String("combined-name", DefaultCombinedName, "File name of the combined message log")
	flags.String("download-dir", DefaultDownloadDir, "Name of the download directory inside the output folder")
	flags.Bool("dry-run", false, "Extract and report attachment references without downloading")
	flags.Bool("skip-download", false, "Stop after writing the combined message log")
	flags.Int("rate-threshold", DefaultRateThreshold, "Downloads allowed per rate window before pausing")
	flags.Duration("rate-window", DefaultRateWindow, "Length of the rate window")
	flags.Duration("rate-cooldown", DefaultRateCooldown, "Pause length, measured from the start of the window")
	flags.Float64("max-rps", 0, "Maximum requests per second (0 disables the throttle)")
	flags.Duration("timeout", DefaultTimeout, "HTTP timeout per download (0 disables it)")
	flags.String("user-agent", "", "User-Agent header for downloads")
	flags.StringArray("include-ref", nil, "Regex allow-list applied to attachment references (mutually exclusive with --exclude-ref)")
	flags.StringArray("exclude-ref", nil, "Regex block-list applied to attachment references (mutually exclusive with --include-ref)")
	flags.String("metrics-file", "", "Write Prometheus metrics to this file when the run ends")
	flags.String("manifest-file", "", "Append one JSON line per download outcome to this file")
	flags.String("mbox-export", "", "Also export the combined conversation as an mbox archive")
	flags.Int("preview", 0, "Print the first N messages of the combined conversation")
}

// NewViper returns a viper instance layered as: flags, environment
// (RECONSTRUCT_*, including values loaded from .env), config file, defaults.
func NewViper(cmd *cobra.Command) (*viper.Viper, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

// LoadLogging reads the persistent logging flags.
func LoadLogging(cmd *cobra.Command) (Logging, error) {
	v, err := NewViper(cmd)
	if err != nil {
		return Logging{}, err
	}
	return loadLogging(v)
}

func loadLogging(v *viper.Viper) (Logging, error) {
	level := strings.ToLower(strings.TrimSpace(v.GetString("log-level")))
	if level == "warning" {
		level = "warn"
	}
	logging := Logging{
		Level:  level,
		Dir:    v.GetString("log-dir"),
		Format: strings.ToLower(strings.TrimSpace(v.GetString("log-format"))),
	}
	if err := validate(logging); err != nil {
		return Logging{}, err
	}
	return logging, nil
}

// LoadConfig converts the parsed flags, environment and config file into a
// Config with validation.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	v, err := NewViper(cmd)
	if err != nil {
		return Config{}, err
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	logging, err := loadLogging(v)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		InputFile1:    strings.TrimSpace(v.GetString("input-file-1")),
		InputFile2:    strings.TrimSpace(v.GetString("input-file-2")),
		OutputFolder:  strings.TrimSpace(v.GetString("output-folder")),
		CombinedName:  strings.TrimSpace(v.GetString("combined-name")),
		DownloadDir:   strings.TrimSpace(v.GetString("download-dir")),
		DryRun:        v.GetBool("dry-run"),
		SkipDownload:  v.GetBool("skip-download"),
		RateThreshold: v.GetInt("rate-threshold"),
		RateWindow:    v.GetDuration("rate-window"),
		RateCooldown:  v.GetDuration("rate-cooldown"),
		MaxRPS:        v.GetFloat64("max-rps"),
		Timeout:       v.GetDuration("timeout"),
		UserAgent:     v.GetString("user-agent"),
		IncludeRefs:   v.GetStringSlice("include-ref"),
		ExcludeRefs:   v.GetStringSlice("exclude-ref"),
		MetricsFile:   v.GetString("metrics-file"),
		ManifestFile:  v.GetString("manifest-file"),
		MboxExport:    v.GetString("mbox-export"),
		Preview:       v.GetInt("preview"),
		Log:           logging,
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	if cfg.InputFile1 == "" || cfg.InputFile2 == "" {
		return ErrInputsMissing
	}
	if len(cfg.IncludeRefs) > 0 && len(cfg.ExcludeRefs) > 0 {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}
	return validate(cfg)
}

var validate = func() func(any) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	return func(s any) error {
		err := v.Struct(s)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: %v fails %q", fe.Namespace(), fe.Value(), fe.Tag())
		}
		return err
	}
}()

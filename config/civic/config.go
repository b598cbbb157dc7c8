package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Port      int           `env:"PORT" env-default:"8080"`
	JWTSecret string        `env:"JWT_SECRET"`
	LoginURL  string        `env:"LOGIN_URL" env-default:"/login"`
	DraftTTL  time.Duration `env:"DRAFT_TTL" env-default:"30m"`

	Geocode       GeocodeConfig
	Transcription TranscriptionConfig
	Evaluation    EvaluationConfig
	Dispatch      DispatchConfig
}

type GeocodeConfig struct {
	Url     string        `env:"GEOCODE_URL"`
	Timeout time.Duration `env:"GEOCODE_TIMEOUT" env-default:"5s"`
}

type TranscriptionConfig struct {
	Url     string        `env:"TRANSCRIPTION_URL"`
	APIKey  string        `env:"TRANSCRIPTION_API_KEY"`
	Timeout time.Duration `env:"TRANSCRIPTION_TIMEOUT" env-default:"120s"`
}

type EvaluationConfig struct {
	Url     string        `env:"EVALUATION_URL"`
	Timeout time.Duration `env:"EVALUATION_TIMEOUT" env-default:"60s"`
}

type DispatchConfig struct {
	EmergencyUrl string        `env:"DISPATCH_EMERGENCY_URL"`
	CivicUrl     string        `env:"DISPATCH_CIVIC_URL"`
	Timeout      time.Duration `env:"DISPATCH_TIMEOUT" env-default:"30s"`
}

func MustLoad() *Config {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		panic("failed to read environment variables: " + err.Error())
	}
	return &cfg
}

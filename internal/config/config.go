package config

import (
	"os"

	"github.com/go-yaml/yaml"
)

type Config struct {
	Server   Server   `yaml:"server"`
	Cron     Cron     `yaml:"cron"`
	Features []string `yaml:"features"`
}

type Server struct {
	PostgresDsn    string `yaml:"postgresDsn"`
	ListenAddr     string `yaml:"listenAddr"`
	SchemaDir      string `yaml:"schemaDir"`
	ImportEndpoint string `yaml:"importEndpoint"`
	EnableTrace    bool   `yaml:"enableTrace"`
	TraceEndpoint  string `yaml:"traceEndpoint"`
}

type Cron struct {
	Schedule               string `yaml:"schedule"`
	NodeCronJobResponsible bool   `yaml:"nodeCronJobResponsible"`
}

func Load(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, err
	}

	if config.Server.ListenAddr == "" {
		config.Server.ListenAddr = ":8080"
	}
	if config.Cron.Schedule == "" {
		config.Cron.Schedule = "0 4 * * *"
	}

	return config, nil
}

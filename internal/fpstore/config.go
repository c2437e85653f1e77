package fpstore

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
)

// Config contains the configuration parameter fields for the fingerprint
// store service
type Config struct {
	// DatabasePath is the path to the bbolt file holding known fingerprints
	DatabasePath string
	// APIAddr is the address the lookup API listens on, e.g. 127.0.0.1:8081
	APIAddr string
	// RequestsPerSecond caps the API request rate. 0 disables the cap
	RequestsPerSecond float64
	// LogLevel is one of logrus's level names. Defaults to `info`
	LogLevel string
}

func ParseConfig(conf string) (Config, error) {
	var config Config
	content, err := ioutil.ReadFile(conf)
	if err != nil {
		return config, err
	}
	if err = json.Unmarshal(content, &config); err != nil {
		return config, err
	}
	if config.DatabasePath == "" {
		return config, fmt.Errorf("DatabasePath cannot be empty")
	}
	if config.APIAddr == "" {
		return config, fmt.Errorf("APIAddr cannot be empty")
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	return config, nil
}

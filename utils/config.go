package utils

import (
	"encoding/json"
	"fmt"
	"os"
)

// ServerConfig points the engine at the chat service.
type ServerConfig struct {
	BaseURL   string `json:"baseUrl"`
	SocketURL string `json:"socketUrl"`
	AuthToken string `json:"authToken"`
}

// UploadConfig holds the storage endpoints for binary payloads.
type UploadConfig struct {
	VoiceEndpoint string `json:"voiceEndpoint"`
	FileEndpoint  string `json:"fileEndpoint"`
	MaxBytes      int64  `json:"maxBytes"`
}

// RecorderConfig selects the audio input used for voice notes.
type RecorderConfig struct {
	InputPath string `json:"inputPath"`
	ChunkSize int    `json:"chunkSize"`
}

// LocalConfig configures the UI-facing side of the engine.
type LocalConfig struct {
	Port    int    `json:"port"`
	DataDir string `json:"dataDir"`
}

// Config is the full engine configuration.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Upload   UploadConfig   `json:"upload"`
	Recorder RecorderConfig `json:"recorder"`
	Local    LocalConfig    `json:"local"`
}

// LoadConfig reads the configuration from a JSON file.
func LoadConfig(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer file.Close()

	var config Config
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("decoding config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Local.Port == 0 {
		c.Local.Port = 8080
	}
	if c.Local.DataDir == "" {
		c.Local.DataDir = "data"
	}
	if c.Upload.MaxBytes == 0 {
		c.Upload.MaxBytes = 5 << 20
	}
	if c.Recorder.ChunkSize == 0 {
		c.Recorder.ChunkSize = 32 * 1024
	}
}

package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AgentServerURL string
	HTTPAddr       string
	DBPath         string

	ConnectTimeout    time.Duration
	ConnectRetries    int
	ConnectRetryDelay time.Duration

	DefaultMaxSteps  int
	DefaultAutoSteps int

	MaxThreadMessages  int
	MaxAttachmentBytes int64

	FileBatchDelay  time.Duration
	ToolBatchDelay  time.Duration
	DownloadTimeout time.Duration
	InputTimeout    time.Duration

	// OutputDirFallback is the remote working directory assumed when a
	// file_created event carries only a bare filename.
	OutputDirFallback string
}

func Load() Config {
	loadDotEnv(".env")
	return Config{
		AgentServerURL: getEnv("AGENT_SERVER_URL", "http://localhost:5000"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		DBPath:         getEnv("AGENT_BOT_DB_PATH", "data/agentbot.db"),

		ConnectTimeout:    getDuration("CONNECT_TIMEOUT", 300*time.Second),
		ConnectRetries:    getInt("CONNECT_RETRIES", 3),
		ConnectRetryDelay: getDuration("CONNECT_RETRY_DELAY", 2*time.Second),

		DefaultMaxSteps:  getInt("DEFAULT_MAX_STEPS", 20),
		DefaultAutoSteps: getInt("DEFAULT_AUTO_STEPS", 10),

		MaxThreadMessages:  getInt("MAX_THREAD_MESSAGES", 50),
		MaxAttachmentBytes: 25 * 1024 * 1024,

		FileBatchDelay:  getDuration("FILE_BATCH_DELAY", 2*time.Second),
		ToolBatchDelay:  getDuration("TOOL_BATCH_DELAY", 1500*time.Millisecond),
		DownloadTimeout: getDuration("FILE_DOWNLOAD_TIMEOUT", 30*time.Second),
		InputTimeout:    getDuration("USER_INPUT_TIMEOUT", 600*time.Second),

		OutputDirFallback: getEnv("AGENT_OUTPUT_DIR", "output"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getDuration accepts either a Go duration string ("90s", "1.5s") or a bare
// number of seconds, matching how the original deployment configured these.
func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}

func loadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, value)
	}
}

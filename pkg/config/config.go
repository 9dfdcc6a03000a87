package config

import (
	"os"
	"strconv"

	"github.com/golang/glog"
)

type Config struct {
	Port                    string
	Env                     string
	FirebaseCredentialsPath string
	PostgresURL             string
	MongoURI                string
	MongoDB                 string
	JWTSecret               string
	MetricsPort             string
	PushBuffer              int
}

func Load() *Config {
	return &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		PostgresURL:             getEnv("POSTGRES_CONN_STR", ""),
		MongoURI:                getEnv("MONGO_URI", ""),
		MongoDB:                 getEnv("MONGO_DB", "memberhub"),
		JWTSecret:               getEnv("JWT_SECRET", "supersecretjwtkey"),
		MetricsPort:             getEnv("METRICS_PORT", "9090"),
		PushBuffer:              getEnvInt("PUSH_BUFFER", 32),
	}
}

// ClientConfig configures command line clients of the hub
type ClientConfig struct {
	APIURL   string
	WSURL    string
	Token    string
	UserID   string
	UserName string
}

func LoadClient() *ClientConfig {
	return &ClientConfig{
		APIURL:   getEnv("HUB_API_URL", "http://localhost:8080/api/v1"),
		WSURL:    getEnv("HUB_WS_URL", "ws://localhost:8080/api/v1/ws"),
		Token:    getEnv("HUB_TOKEN", ""),
		UserID:   getEnv("HUB_USER_ID", ""),
		UserName: getEnv("HUB_USER_NAME", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		glog.Warningf("[config]%s=%q is not a positive integer, using %d\n", key, value, defaultValue)
		return defaultValue
	}
	return n
}

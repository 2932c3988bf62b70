package env

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// LoadEnv loads .env files into the process environment without
// overriding variables already set. With no arguments it reads ./.env.
func LoadEnv(log logrus.FieldLogger, files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		err := godotenv.Load(file)
		if errors.Is(err, fs.ErrNotExist) {
			log.WithField("file", file).Debug("no env file found, using system envs")
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func GetEnv(key string, fallback string) string {
	if value, exist := os.LookupEnv(key); exist {
		return value
	}
	return fallback
}

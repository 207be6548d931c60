package logger

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/HuynhDucPhu2502/Flickr/internal/config"
)

var (
	mu  sync.RWMutex
	log = logrus.New()
)

// Init configures the process logger from app config. Safe to call more
// than once.
func Init(cfg *config.Config) {
	mu.Lock()
	defer mu.Unlock()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(cfg.LogFormat, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// L returns the process logger.
func L() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Component returns an entry scoped to one component name.
func Component(name string) *logrus.Entry {
	return L().WithField("component", name)
}

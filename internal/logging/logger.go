// Package logging provides config-driven, categorized structured logging
// for noeticd. It is a thin category-scoped wrapper over zap, the same
// library codenerd's cmd/nerd/main.go uses for its CLI logger — adapted
// here from a per-category file logger into per-category zap sub-loggers
// so every component logs through one structured sink instead of scattered
// files.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a subsystem for log filtering and field tagging.
type Category string

const (
	CategoryBoot          Category = "boot"
	CategoryStore         Category = "store"
	CategoryInference     Category = "inference"
	CategoryJustification Category = "justification"
	CategoryQuery         Category = "query"
	CategorySubgraph      Category = "subgraph"
	CategoryShape         Category = "shape"
	CategoryCompiler      Category = "compiler"
	CategoryBridge        Category = "bridge"
	CategoryRender        Category = "render"
)

var (
	mu     sync.RWMutex
	base   *zap.Logger = zap.NewNop()
	loggers            = make(map[Category]*zap.SugaredLogger)
)

// Init (re)configures the package-wide base logger. level is one of
// "debug", "info", "warn", "error" (spec.md §6 log_level); json selects
// structured JSON encoding over console encoding.
func Init(level string, json bool) error {
	zlvl, err := zapcore.ParseLevel(levelOrDefault(level))
	if err != nil {
		return fmt.Errorf("logging: invalid log_level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if !json {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zlvl)

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("logging: build logger: %w", err)
	}

	mu.Lock()
	base = l
	loggers = make(map[Category]*zap.SugaredLogger)
	mu.Unlock()
	return nil
}

func levelOrDefault(level string) string {
	if level == "" {
		return "info"
	}
	return level
}

// Get returns (creating if needed) the sugared logger scoped to category.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := base.With(zap.String("category", string(category))).Sugar()
	loggers[category] = l
	return l
}

// Sync flushes every category logger's buffered output. Call on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

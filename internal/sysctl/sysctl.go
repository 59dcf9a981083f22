// Package sysctl writes kernel tunables under /proc/sys.
package sysctl

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/wesleywu/routesync/internal/config"
	"github.com/wesleywu/routesync/internal/logger"
)

// Write sets the tunable at path. The file must already exist; /proc/sys
// does not create entries.
func Write(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, err := f.WriteString(value); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// Read returns the tunable at path without its trailing newline.
func Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// EnablePacketLog selects the netfilter packet logger. Failure is logged
// and otherwise ignored.
func EnablePacketLog(cfg config.PacketLogConfig, log *logger.Logger) bool {
	if !cfg.Enabled {
		return false
	}
	if err := Write(cfg.Path, cfg.Value); err != nil {
		log.Warn("Failed to enable packet logging",
			slog.String("path", cfg.Path),
			slog.Any("error", err))
		return false
	}
	log.Info("Packet logging enabled", slog.String("path", cfg.Path), slog.String("logger", cfg.Value))
	return true
}

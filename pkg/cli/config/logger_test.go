package config_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/storynotes/pkg/cli/config"
	"github.com/secmon-lab/storynotes/pkg/domain/model"
	"github.com/secmon-lab/storynotes/pkg/utils/logging"
)

func TestLogger_JSONRedactsSessionToken(t *testing.T) {
	var buf bytes.Buffer
	handler, err := config.NewLogHandler(&buf, "json", slog.LevelInfo)
	gt.NoError(t, err).Required()

	token, err := model.NewSessionToken()
	gt.NoError(t, err).Required()
	slog.New(handler).Info("issued", "token", token, "user", "u-1")

	var entry map[string]any
	gt.NoError(t, json.Unmarshal(buf.Bytes(), &entry)).Required()
	gt.Value(t, entry["user"]).Equal(any("u-1"))
	gt.Bool(t, strings.Contains(buf.String(), token.String())).False()
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	handler, err := config.NewLogHandler(&buf, "json", slog.LevelWarn)
	gt.NoError(t, err).Required()

	logger := slog.New(handler)
	logger.Info("hidden")
	gt.Number(t, buf.Len()).Equal(0)

	logger.Warn("shown")
	gt.String(t, buf.String()).Contains("shown")
}

func TestLogger_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	handler, err := config.NewLogHandler(&buf, "console", slog.LevelInfo)
	gt.NoError(t, err).Required()

	slog.New(handler).Info("hello console")
	gt.String(t, buf.String()).Contains("hello console")
}

func TestLogger_ConfigureErrors(t *testing.T) {
	t.Run("unknown level", func(t *testing.T) {
		_, err := config.NewLoggerForTest("loud", "json", "stdout").Configure()
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, config.ErrInvalidConfig)).True()
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := config.NewLoggerForTest("info", "xml", "stdout").Configure()
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, config.ErrInvalidConfig)).True()
	})
}

func TestLogger_ConfigureFileOutput(t *testing.T) {
	prev := logging.Default()
	t.Cleanup(func() { logging.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "storynotes.log")
	closer, err := config.NewLoggerForTest("debug", "json", path).Configure()
	gt.NoError(t, err).Required()
	closer()
}

package config_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/storynotes/pkg/cli/config"
)

func TestSentry_DisabledWithoutDSN(t *testing.T) {
	closer, err := config.NewSentryForTest("", "test").Configure("v0.0.0")
	gt.NoError(t, err).Required()
	gt.Value(t, closer).NotNil()
	closer()
}

func TestSentry_InvalidDSN(t *testing.T) {
	_, err := config.NewSentryForTest("not a dsn", "test").Configure("v0.0.0")
	gt.Error(t, err)
}

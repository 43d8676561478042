package cli_test

import (
	"context"
	"sync"
	"testing"

	"github.com/getsentry/sentry-go"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/storynotes/pkg/cli"
)

func TestRun_MigrateRejectsMemoryBackend(t *testing.T) {
	err := cli.Run(context.Background(), []string{
		"storynotes", "--log-format", "json", "--log-output", "stderr",
		"migrate", "--repository-backend", "memory",
	}, "test")
	gt.Error(t, err)
}

func TestRun_ServeRequiresLLM(t *testing.T) {
	t.Setenv("STORYNOTES_GEMINI_PROJECT", "")
	t.Setenv("STORYNOTES_OPENAI_API_KEY", "")

	err := cli.Run(context.Background(), []string{
		"storynotes", "--log-format", "json", "--log-output", "stderr",
		"serve", "--repository-backend", "memory", "--addr", "127.0.0.1:0",
	}, "test")
	gt.Error(t, err)
}

func TestRun_InvalidLogLevel(t *testing.T) {
	err := cli.Run(context.Background(), []string{
		"storynotes", "--log-level", "loud", "migrate",
	}, "test")
	gt.Error(t, err)
}

func TestRun_ServeFailureIsReportedToSentry(t *testing.T) {
	t.Setenv("STORYNOTES_GEMINI_PROJECT", "")
	t.Setenv("STORYNOTES_OPENAI_API_KEY", "")
	t.Setenv("STORYNOTES_SENTRY_DSN", "")

	var mu sync.Mutex
	var events []*sentry.Event
	gt.NoError(t, sentry.Init(sentry.ClientOptions{
		Dsn: "https://public@sentry.example.com/1",
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, event)
			return nil
		},
	})).Required()
	t.Cleanup(func() { sentry.CurrentHub().BindClient(nil) })

	err := cli.Run(context.Background(), []string{
		"storynotes", "--log-format", "json", "--log-output", "stderr",
		"serve", "--repository-backend", "memory", "--addr", "127.0.0.1:0",
	}, "test")
	gt.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	gt.Array(t, events).Length(1)
}

func TestRun_MigrateFirestoreRequiresProject(t *testing.T) {
	t.Setenv("STORYNOTES_FIRESTORE_PROJECT_ID", "")

	err := cli.Run(context.Background(), []string{
		"storynotes", "--log-format", "json", "--log-output", "stderr",
		"migrate", "--repository-backend", "firestore", "--dry-run",
	}, "test")
	gt.Error(t, err)
}

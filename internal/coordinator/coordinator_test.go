package coordinator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"mirix/internal/config"
	"mirix/internal/coordinator"
	"mirix/internal/objectstore"
	"mirix/internal/persistence"
	"mirix/internal/persistence/databases"
	"mirix/internal/transcriber"
)

type fakeEmbedder struct{ dim int }

func (f fakeEmbedder) Dimensions() int { return f.dim }

func (f fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dim)
		for j, b := range []byte(t) {
			v[j%f.dim] += float32(b)
		}
		out[i] = v
	}
	return out, nil
}

func testConfig() config.CoordinatorConfig {
	cfg := config.CoordinatorConfig{}
	cfg.Agent.ModelName = "gpt-4o-mini"
	cfg.MemoryModelName = "gpt-4o-mini"
	cfg.TimezoneStr = "UTC"
	cfg.OrganizationID = "org-1"
	cfg.OpenAI.APIKey = "test-key"
	cfg.Anthropic.APIKey = "test-key"
	cfg.Accumulator.TemporaryMessageLimit = 10
	cfg.Accumulator.UploadTimeoutSeconds = 5
	cfg.MaximumImagesInCloud = 2
	cfg.Upload.Workers = 2
	cfg.Upload.MaxRetries = 1
	return cfg
}

func newTestCoordinator(t *testing.T) *coordinator.Coordinator {
	t.Helper()
	store := databases.NewMapStore()
	blobs := objectstore.NewAdapter(objectstore.NewMemoryStore(), "test-bucket")
	c, err := coordinator.New(testConfig(), store, blobs, fakeEmbedder{dim: 8}, transcriber.NoOp{})
	require.NoError(t, err)
	return c
}

func TestSendMessageMemorizingBuffersIntoAccumulator(t *testing.T) {
	c := newTestCoordinator(t)

	reply, err := c.SendMessage(context.Background(), coordinator.Observation{Text: "note this down"}, true)
	require.NoError(t, err)
	require.Equal(t, "", reply)
}

func TestHealthReportsMissingProviders(t *testing.T) {
	cfg := testConfig()
	cfg.OpenAI.APIKey = ""
	cfg.Anthropic.APIKey = ""
	cfg.Google.APIKey = ""
	store := databases.NewMapStore()
	blobs := objectstore.NewAdapter(objectstore.NewMemoryStore(), "test-bucket")
	c, err := coordinator.New(cfg, store, blobs, fakeEmbedder{dim: 8}, transcriber.NoOp{})
	require.NoError(t, err)

	report := c.Health(context.Background())
	require.True(t, report.MessageQueueIdle)
	require.Contains(t, report.MissingProviders, "openai")
	require.Contains(t, report.MissingProviders, "anthropic")
	require.Contains(t, report.MissingProviders, "google")
}

func TestSetMemoryModelRejectsOffAllowList(t *testing.T) {
	c := newTestCoordinator(t)
	_, err := c.SetMemoryModel("some-unvetted-model")
	require.Error(t, err)
}

func TestSetMemoryModelAcceptsAllowListed(t *testing.T) {
	c := newTestCoordinator(t)
	result, err := c.SetMemoryModel("gpt-4o-mini")
	require.NoError(t, err)
	require.True(t, result.Success)
}

func TestClearOldScreenshotsNoopWhenUnderLimit(t *testing.T) {
	c := newTestCoordinator(t)
	require.NoError(t, c.ClearOldScreenshots(context.Background()))
}

func TestSaveAndLoadPathRoundTrips(t *testing.T) {
	c := newTestCoordinator(t)
	dir := t.TempDir()
	require.NoError(t, c.SavePath(context.Background(), dir))
	require.NoError(t, c.LoadPath(context.Background(), dir))
}

func TestReconcileMarksDeletedMappings(t *testing.T) {
	ctx := context.Background()
	store := databases.NewMapStore()
	blobs := objectstore.NewAdapter(objectstore.NewMemoryStore(), "test-bucket")
	c, err := coordinator.New(testConfig(), store, blobs, fakeEmbedder{dim: 8}, transcriber.NoOp{})
	require.NoError(t, err)

	// A mapping whose remote blob is not in the (empty) BlobStore.
	require.NoError(t, store.UpsertCloudFileMapping(ctx, &persistence.CloudFileMapping{
		LocalFileID: "/tmp/gone.png",
		CloudFileID: "blobs/gone.png",
		Status:      persistence.CloudFileUploaded,
	}))

	require.NoError(t, c.Reconcile(ctx))

	m, err := store.GetCloudFileMappingByLocalPath(ctx, "/tmp/gone.png")
	require.NoError(t, err)
	require.Equal(t, persistence.CloudFileDeleted, m.Status)
}

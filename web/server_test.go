package web

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HillviewCap/ferrocodex-sub002/advisory"
	"github.com/HillviewCap/ferrocodex-sub002/analyzer"
	"github.com/HillviewCap/ferrocodex-sub002/db"
	"github.com/HillviewCap/ferrocodex-sub002/events"
	"github.com/HillviewCap/ferrocodex-sub002/models"
	"github.com/HillviewCap/ferrocodex-sub002/queue"
	"github.com/HillviewCap/ferrocodex-sub002/storage"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server   *Server
	database *db.Database
	store    storage.FirmwareStore
	hub      *events.Hub
}

// setupTestServer wires a server onto a throwaway database, local store
// and a real analysis queue.
func setupTestServer(t *testing.T, opts ...advisory.Option) (*testEnv, func()) {
	tempDir, err := os.MkdirTemp("", "web_test_*")
	require.NoError(t, err)

	database, err := db.NewDatabase("sqlite3", filepath.Join(tempDir, "test.db"))
	require.NoError(t, err)

	store, err := storage.NewLocalStore(filepath.Join(tempDir, "firmware"))
	require.NoError(t, err)

	hub := events.NewHub()
	q := queue.New(database, database, store, analyzer.New(), hub, database, queue.Options{})

	env := &testEnv{
		server:   NewServer(database, store, q, hub, advisory.NewClient(opts...), "0"),
		database: database,
		store:    store,
		hub:      hub,
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.Shutdown(ctx)
		hub.Close()
		database.Close()
		os.RemoveAll(tempDir)
	}

	return env, cleanup
}

// uploadFirmware posts a multipart firmware upload and returns the created
// record.
func uploadFirmware(t *testing.T, env *testEnv, data []byte) *models.FirmwareVersion {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "firmware.bin")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)

	require.NoError(t, writer.WriteField("asset_id", "1"))
	require.NoError(t, writer.WriteField("vendor", "Siemens"))
	require.NoError(t, writer.WriteField("model", "S7-1200"))
	require.NoError(t, writer.WriteField("version", "4.5.0"))
	require.NoError(t, writer.WriteField("created_by", "7"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/api/firmware", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := env.server.App().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 201, resp.StatusCode)

	var fw models.FirmwareVersion
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fw))
	return &fw
}

// waitForAnalysis polls until the analysis record for a firmware version
// reaches a terminal status.
func waitForAnalysis(t *testing.T, env *testEnv, firmwareID int64) *models.FirmwareAnalysisResult {
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for analysis to finish")
			return nil
		case <-time.After(10 * time.Millisecond):
			record, err := env.database.GetAnalysisByFirmwareVersion(firmwareID)
			if err == nil && record.Status.IsTerminal() {
				return record
			}
		}
	}
}

func TestHealthCheckEndpoint(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest("GET", "/api/health", nil)
	resp, err := env.server.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
}

func TestHealthDBEndpoint(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest("GET", "/api/health/db", nil)
	resp, err := env.server.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestUploadFirmware(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	data := []byte("\x7fELF test firmware contents")
	fw := uploadFirmware(t, env, data)

	assert.NotZero(t, fw.ID)
	assert.Equal(t, "Siemens", fw.Vendor)
	assert.Equal(t, int64(len(data)), fw.FileSize)

	hash := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(hash[:]), fw.FileHash)

	// The stored bytes must round-trip through the store.
	stored, err := env.store.ReadFirmwareFile(context.Background(), fw.FilePath, 7, "tester")
	require.NoError(t, err)
	assert.Equal(t, data, stored)
}

func TestUploadFirmware_MissingFields(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "firmware.bin")
	require.NoError(t, err)
	_, err = part.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("asset_id", "1"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/api/firmware", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := env.server.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestGetFirmware_NotFound(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest("GET", "/api/firmware/999", nil)
	resp, err := env.server.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestListFirmware(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	uploadFirmware(t, env, []byte("one"))
	uploadFirmware(t, env, []byte("two"))

	req := httptest.NewRequest("GET", "/api/firmware", nil)
	resp, err := env.server.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var versions []models.FirmwareVersion
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&versions))
	assert.Len(t, versions, 2)
}

func TestDeleteFirmware(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	fw := uploadFirmware(t, env, []byte("to be removed"))

	req := httptest.NewRequest("DELETE", fmt.Sprintf("/api/firmware/%d", fw.ID), nil)
	resp, err := env.server.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)

	_, err = env.database.GetFirmwareVersion(fw.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)

	_, err = env.store.ReadFirmwareFile(context.Background(), fw.FilePath, 0, "")
	assert.ErrorIs(t, err, storage.ErrFileNotFound)
}

func TestStartAnalysis(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	fw := uploadFirmware(t, env, []byte("\x7fELF firmware version 1.2.3"))

	reqBody := bytes.NewBufferString(`{"user_id": 7, "username": "operator"}`)
	req := httptest.NewRequest("POST", fmt.Sprintf("/api/firmware/%d/analyze", fw.ID), reqBody)
	req.Header.Set("Content-Type", "application/json")

	resp, err := env.server.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 202, resp.StatusCode)

	var accepted map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	jobID, _ := accepted["job_id"].(string)
	require.NotEmpty(t, jobID)

	record := waitForAnalysis(t, env, fw.ID)
	assert.Equal(t, models.AnalysisStatusCompleted, record.Status)

	// The returned job ID is the one the audit trail is correlated by.
	auditEvents, err := env.database.ListAuditEvents(fw.ID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, auditEvents)
	for _, event := range auditEvents {
		assert.Equal(t, jobID, event.EventID)
	}

	// The analysis is now retrievable over the API.
	req = httptest.NewRequest("GET", fmt.Sprintf("/api/firmware/%d/analysis", fw.ID), nil)
	resp, err = env.server.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var fetched models.FirmwareAnalysisResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fetched))
	assert.Equal(t, models.AnalysisStatusCompleted, fetched.Status)
}

func TestStartAnalysis_UnknownFirmware(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest("POST", "/api/firmware/999/analyze", nil)
	resp, err := env.server.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestGetAnalysis_NoRecord(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	fw := uploadFirmware(t, env, []byte("never analyzed"))

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/firmware/%d/analysis", fw.ID), nil)
	resp, err := env.server.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestListAnalyses(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	fw := uploadFirmware(t, env, []byte("firmware bytes"))
	req := httptest.NewRequest("POST", fmt.Sprintf("/api/firmware/%d/analyze", fw.ID), nil)
	resp, err := env.server.App().Test(req)
	require.NoError(t, err)
	require.Equal(t, 202, resp.StatusCode)
	waitForAnalysis(t, env, fw.ID)

	req = httptest.NewRequest("GET", "/api/analyses?limit=10", nil)
	resp, err = env.server.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var records []models.FirmwareAnalysisResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	assert.Len(t, records, 1)
}

func TestAdvisoriesEndpoint(t *testing.T) {
	nvd := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"totalResults": 1,
			"vulnerabilities": [
				{
					"cve": {
						"id": "CVE-2024-0001",
						"descriptions": [{"lang": "en", "value": "Test vulnerability."}],
						"metrics": {
							"cvssMetricV31": [
								{"type": "Primary", "cvssData": {"baseScore": 9.1, "baseSeverity": "CRITICAL"}}
							]
						}
					}
				}
			]
		}`)
	}))
	defer nvd.Close()

	env, cleanup := setupTestServer(t, advisory.WithAPIBaseURL(nvd.URL))
	defer cleanup()

	fw := uploadFirmware(t, env, []byte("firmware version: 1.2.3"))
	req := httptest.NewRequest("POST", fmt.Sprintf("/api/firmware/%d/analyze", fw.ID), nil)
	resp, err := env.server.App().Test(req)
	require.NoError(t, err)
	require.Equal(t, 202, resp.StatusCode)
	record := waitForAnalysis(t, env, fw.ID)
	require.Equal(t, models.AnalysisStatusCompleted, record.Status)

	req = httptest.NewRequest("GET", fmt.Sprintf("/api/analysis/%d/advisories", record.ID), nil)
	resp, err = env.server.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var payload struct {
		Product    string              `json:"product"`
		Advisories []advisory.Advisory `json:"advisories"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "Siemens S7-1200", payload.Product)
	require.Len(t, payload.Advisories, 1)
	assert.Equal(t, "CVE-2024-0001", payload.Advisories[0].CVEID)
}

func TestAdvisoriesEndpoint_AnalysisNotCompleted(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	fw := uploadFirmware(t, env, []byte("pending firmware"))
	record, err := env.database.CreateAnalysis(fw.ID)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/analysis/%d/advisories", record.ID), nil)
	resp, err := env.server.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode)
}

func TestProgressWebsocket(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = env.server.App().Listener(ln)
	}()
	defer env.server.Stop()

	wsURL := fmt.Sprintf("ws://%s/ws/progress", ln.Addr().String())

	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		c, _, dialErr := websocket.DefaultDialer.Dial(wsURL, nil)
		if dialErr != nil {
			return false
		}
		conn = c
		return true
	}, 5*time.Second, 50*time.Millisecond)
	defer conn.Close()

	// Give the server a moment to register the subscriber.
	require.Eventually(t, func() bool {
		return env.hub.SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	progress := 40
	env.hub.Publish(models.ProgressEvent{
		FirmwareVersionID: 42,
		Status:            string(models.AnalysisStatusInProgress),
		Progress:          &progress,
		Message:           "Analyzing firmware",
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var event models.ProgressEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, int64(42), event.FirmwareVersionID)
	require.NotNil(t, event.Progress)
	assert.Equal(t, 40, *event.Progress)
	assert.Equal(t, "Analyzing firmware", event.Message)
}

func TestProgressRoute_RequiresUpgrade(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest("GET", "/ws/progress", nil)
	resp, err := env.server.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 426, resp.StatusCode)
}

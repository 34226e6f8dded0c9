package notifier

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/HillviewCap/ferrocodex-sub002/models"
)

func TestNewSlackNotifier(t *testing.T) {
	notifier := NewSlackNotifier(
		"https://hooks.slack.com/test",
		"Firmware Analyzer",
		"#firmware-security",
		":shield:",
	)

	if notifier == nil {
		t.Fatal("NewSlackNotifier should return a valid notifier")
	}

	if notifier.webhookURL != "https://hooks.slack.com/test" {
		t.Errorf("Expected webhookURL 'https://hooks.slack.com/test', got %s", notifier.webhookURL)
	}

	if notifier.username != "Firmware Analyzer" {
		t.Errorf("Expected username 'Firmware Analyzer', got %s", notifier.username)
	}

	if notifier.channel != "#firmware-security" {
		t.Errorf("Expected channel '#firmware-security', got %s", notifier.channel)
	}

	if notifier.maxRetries != 3 {
		t.Errorf("Expected maxRetries 3, got %d", notifier.maxRetries)
	}
}

func TestSlackNotifier_ValidateConfiguration_Valid(t *testing.T) {
	notifier := NewSlackNotifier(
		"https://hooks.slack.com/test",
		"Firmware Analyzer",
		"#firmware-security",
		":shield:",
	)

	err := notifier.ValidateConfiguration()
	if err != nil {
		t.Errorf("ValidateConfiguration should pass for valid config, got: %v", err)
	}
}

func TestSlackNotifier_ValidateConfiguration_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		webhookURL string
	}{
		{"empty URL", ""},
		{"wrong host", "https://example.com/webhook"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := NewSlackNotifier(tt.webhookURL, "Firmware Analyzer", "#firmware-security", ":shield:")
			if err := notifier.ValidateConfiguration(); err == nil {
				t.Error("ValidateConfiguration should fail")
			}
		})
	}
}

func TestSlackNotifier_AnalysisCompleted_SendsPayload(t *testing.T) {
	var received SlackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("Failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL, "Firmware Analyzer", "#firmware-security", ":shield:")

	job := models.AnalysisJob{
		JobID:             "job-1",
		FirmwareVersionID: 42,
		UserID:            7,
		Username:          "operator",
	}
	result := &models.AnalysisResult{
		FileType:         "ELF Executable",
		DetectedVersions: []string{"1.2.3"},
		EntropyScore:     5.1,
		SecurityFindings: []models.SecurityFinding{
			{Severity: models.SeverityHigh, FindingType: "Hardcoded Credentials", Description: "found password string"},
		},
	}

	notifier.AnalysisCompleted(job, result)

	if received.Text != "Firmware analysis completed" {
		t.Errorf("Expected completion text, got %q", received.Text)
	}

	if len(received.Attachments) != 1 {
		t.Fatalf("Expected 1 attachment, got %d", len(received.Attachments))
	}

	if received.Attachments[0].Color != "danger" {
		t.Errorf("Expected 'danger' color for high severity finding, got %q", received.Attachments[0].Color)
	}
}

func TestSlackNotifier_AnalysisFailed_SendsPayload(t *testing.T) {
	var received SlackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL, "Firmware Analyzer", "#firmware-security", ":shield:")

	job := models.AnalysisJob{JobID: "job-2", FirmwareVersionID: 9, Username: "operator"}
	notifier.AnalysisFailed(job, "firmware file not accessible")

	if received.Text != "Firmware analysis failed" {
		t.Errorf("Expected failure text, got %q", received.Text)
	}

	if len(received.Attachments) != 1 {
		t.Fatalf("Expected 1 attachment, got %d", len(received.Attachments))
	}

	if received.Attachments[0].Text != "firmware file not accessible" {
		t.Errorf("Expected error message in attachment, got %q", received.Attachments[0].Text)
	}
}

func TestSlackNotifier_SendMessage_NoRetryOnClientError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL, "Firmware Analyzer", "#firmware-security", ":shield:")

	err := notifier.sendMessage(&SlackMessage{Text: "test"})
	if err == nil {
		t.Error("sendMessage should fail on client error")
	}

	if attempts != 1 {
		t.Errorf("Expected 1 attempt for client error, got %d", attempts)
	}
}

package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/HillviewCap/ferrocodex-sub002/models"
)

// SlackNotifier delivers analysis outcome notifications to a Slack
// incoming webhook.
type SlackNotifier struct {
	webhookURL string
	username   string
	channel    string
	iconEmoji  string
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
}

// NewSlackNotifier creates a new Slack notifier instance
func NewSlackNotifier(webhookURL, username, channel, iconEmoji string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		username:   username,
		channel:    channel,
		iconEmoji:  iconEmoji,
		maxRetries: 3,
		retryDelay: time.Second * 2,
		httpClient: &http.Client{
			Timeout: time.Second * 30,
		},
	}
}

// SlackMessage represents a Slack message structure
type SlackMessage struct {
	Text        string            `json:"text,omitempty"`
	Username    string            `json:"username,omitempty"`
	Channel     string            `json:"channel,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment represents a Slack message attachment
type SlackAttachment struct {
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title,omitempty"`
	Text      string       `json:"text,omitempty"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

// SlackField represents a field in a Slack attachment
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// AnalysisCompleted sends a notification summarizing a finished analysis.
// Delivery errors are logged rather than returned because notification is
// a best-effort concern for the analysis pipeline.
func (sn *SlackNotifier) AnalysisCompleted(job models.AnalysisJob, result *models.AnalysisResult) {
	message := sn.buildCompletedMessage(job, result)
	if err := sn.sendMessage(message); err != nil {
		log.Printf("Slack notification failed for job %s: %v", job.JobID, err)
	}
}

// AnalysisFailed sends an alert for an analysis that could not complete.
func (sn *SlackNotifier) AnalysisFailed(job models.AnalysisJob, errorMessage string) {
	message := &SlackMessage{
		Text:      "Firmware analysis failed",
		Username:  sn.username,
		Channel:   sn.channel,
		IconEmoji: sn.iconEmoji,
		Attachments: []SlackAttachment{
			{
				Color: "danger",
				Title: fmt.Sprintf("Firmware version #%d", job.FirmwareVersionID),
				Text:  errorMessage,
				Fields: []SlackField{
					{Title: "Requested By", Value: job.Username, Short: true},
					{Title: "Job ID", Value: job.JobID, Short: true},
				},
				Footer:    "Firmware Analysis Engine",
				Timestamp: time.Now().Unix(),
			},
		},
	}

	if err := sn.sendMessage(message); err != nil {
		log.Printf("Slack notification failed for job %s: %v", job.JobID, err)
	}
}

func (sn *SlackNotifier) buildCompletedMessage(job models.AnalysisJob, result *models.AnalysisResult) *SlackMessage {
	counts := result.FindingCountBySeverity()
	color := "good"
	if counts[models.SeverityCritical] > 0 || counts[models.SeverityHigh] > 0 {
		color = "danger"
	} else if counts[models.SeverityMedium] > 0 {
		color = "warning"
	}

	fields := []SlackField{
		{Title: "File Type", Value: result.FileType, Short: true},
		{Title: "Entropy", Value: fmt.Sprintf("%.2f", result.EntropyScore), Short: true},
		{Title: "Findings", Value: fmt.Sprintf("%d", len(result.SecurityFindings)), Short: true},
		{Title: "Requested By", Value: job.Username, Short: true},
	}
	if len(result.DetectedVersions) > 0 {
		fields = append(fields, SlackField{
			Title: "Detected Versions",
			Value: strings.Join(result.DetectedVersions, ", "),
			Short: false,
		})
	}

	return &SlackMessage{
		Text:      "Firmware analysis completed",
		Username:  sn.username,
		Channel:   sn.channel,
		IconEmoji: sn.iconEmoji,
		Attachments: []SlackAttachment{
			{
				Color:     color,
				Title:     fmt.Sprintf("Firmware version #%d", job.FirmwareVersionID),
				Fields:    fields,
				Footer:    "Firmware Analysis Engine",
				Timestamp: time.Now().Unix(),
			},
		},
	}
}

// sendMessage sends a message to Slack with retry logic
func (sn *SlackNotifier) sendMessage(message *SlackMessage) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= sn.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(sn.retryDelay)
		}

		resp, err := sn.httpClient.Post(sn.webhookURL, "application/json", bytes.NewBuffer(payload))
		if err != nil {
			lastErr = fmt.Errorf("failed to send request: %w", err)
			continue
		}

		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			return nil
		}

		lastErr = fmt.Errorf("slack API returned status %d", resp.StatusCode)

		// Don't retry for client errors
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			break
		}
	}

	return fmt.Errorf("failed to send Slack notification after %d attempts: %w", sn.maxRetries+1, lastErr)
}

// ValidateConfiguration validates the Slack notifier configuration
func (sn *SlackNotifier) ValidateConfiguration() error {
	if sn.webhookURL == "" {
		return fmt.Errorf("Slack webhook URL is required")
	}

	if !strings.HasPrefix(sn.webhookURL, "https://hooks.slack.com/") {
		return fmt.Errorf("invalid Slack webhook URL format")
	}

	return nil
}

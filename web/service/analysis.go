package service

import (
	"errors"
	"strconv"
	"strings"

	"github.com/HillviewCap/ferrocodex-sub002/advisory"
	"github.com/HillviewCap/ferrocodex-sub002/db"
	"github.com/HillviewCap/ferrocodex-sub002/models"
	"github.com/HillviewCap/ferrocodex-sub002/queue"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type AnalyzeRequest struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type AnalysisService struct {
	database   *db.Database
	queue      *queue.AnalysisQueue
	advisories *advisory.Client
}

func NewAnalysisService(database *db.Database, q *queue.AnalysisQueue, advisories *advisory.Client) *AnalysisService {
	return &AnalysisService{database: database, queue: q, advisories: advisories}
}

// Analysis management handlers

// HandleAPIStartAnalysis queues an analysis job for a firmware version and
// returns 202 with the job ID. The work itself runs on the queue workers;
// progress is observable on the websocket stream.
func (as *AnalysisService) HandleAPIStartAnalysis(c *fiber.Ctx) error {
	firmwareID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid firmware ID"})
	}

	if _, err := as.database.GetFirmwareVersion(firmwareID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "firmware version not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to get firmware version"})
	}

	var req AnalyzeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}
	}
	if req.Username == "" {
		req.Username = "system"
	}

	// The job ID is assigned here so the 202 body can return it; the queue
	// takes the job by value and its copy is never seen again.
	job := models.AnalysisJob{
		JobID:             uuid.New().String(),
		FirmwareVersionID: firmwareID,
		UserID:            req.UserID,
		Username:          req.Username,
	}

	if err := as.queue.QueueAnalysis(job); err != nil {
		if errors.Is(err, queue.ErrQueueClosed) {
			return c.Status(503).JSON(fiber.Map{"error": "analysis queue is shut down"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to queue analysis"})
	}

	return c.Status(202).JSON(fiber.Map{
		"job_id":              job.JobID,
		"firmware_version_id": firmwareID,
		"status":              models.AnalysisStatusPending,
	})
}

func (as *AnalysisService) HandleAPIGetAnalysis(c *fiber.Ctx) error {
	firmwareID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid firmware ID"})
	}

	record, err := as.database.GetAnalysisByFirmwareVersion(firmwareID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "no analysis for firmware version"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to get analysis"})
	}
	return c.JSON(record)
}

func (as *AnalysisService) HandleAPIListAnalyses(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	records, err := as.database.ListRecentAnalyses(limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to list analyses"})
	}
	return c.JSON(records)
}

// HandleAPIGetAdvisories looks up published CVEs for the versions detected
// by a completed analysis, keyed on the firmware's vendor and model.
func (as *AnalysisService) HandleAPIGetAdvisories(c *fiber.Ctx) error {
	analysisID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid analysis ID"})
	}

	record, err := as.database.GetAnalysisByID(analysisID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "analysis not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to get analysis"})
	}

	if record.Status != models.AnalysisStatusCompleted {
		return c.Status(409).JSON(fiber.Map{"error": "analysis has not completed"})
	}

	fw, err := as.database.GetFirmwareVersion(record.FirmwareVersionID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to get firmware version"})
	}

	product := strings.TrimSpace(fw.Vendor + " " + fw.Model)
	versions := record.DetectedVersions()

	var advisories []advisory.Advisory
	if len(versions) == 0 {
		advisories, err = as.advisories.Search(c.UserContext(), product)
	} else {
		advisories, err = as.advisories.SearchVersions(c.UserContext(), product, versions)
	}
	if err != nil {
		return c.Status(502).JSON(fiber.Map{"error": "advisory lookup failed"})
	}

	if advisories == nil {
		advisories = []advisory.Advisory{}
	}
	return c.JSON(fiber.Map{
		"analysis_id": analysisID,
		"product":     product,
		"versions":    versions,
		"advisories":  advisories,
	})
}

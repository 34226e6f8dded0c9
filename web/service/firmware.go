package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"github.com/HillviewCap/ferrocodex-sub002/db"
	"github.com/HillviewCap/ferrocodex-sub002/models"
	"github.com/HillviewCap/ferrocodex-sub002/storage"

	"github.com/gofiber/fiber/v2"
)

type FirmwareService struct {
	database *db.Database
	store    storage.FirmwareStore
}

func NewFirmwareService(database *db.Database, store storage.FirmwareStore) *FirmwareService {
	return &FirmwareService{database: database, store: store}
}

// Firmware registry handlers

// HandleAPIUploadFirmware accepts a multipart upload and registers the
// firmware file: the bytes go to the store under a per-asset key, and the
// record carries the SHA-256 of exactly what was stored.
func (fs *FirmwareService) HandleAPIUploadFirmware(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "firmware file is required"})
	}

	assetID, err := strconv.ParseInt(c.FormValue("asset_id"), 10, 64)
	if err != nil || assetID <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "asset_id is required"})
	}

	vendor := c.FormValue("vendor")
	model := c.FormValue("model")
	version := c.FormValue("version")
	if vendor == "" || model == "" || version == "" {
		return c.Status(400).JSON(fiber.Map{"error": "vendor, model and version are required"})
	}

	createdBy, _ := strconv.ParseInt(c.FormValue("created_by"), 10, 64)

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "failed to open uploaded file"})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to read uploaded file"})
	}

	hash := sha256.Sum256(data)
	fileHash := hex.EncodeToString(hash[:])
	storageKey := fmt.Sprintf("firmware/%d/%d_%s", assetID, time.Now().UnixNano(), path.Base(fileHeader.Filename))

	if err := fs.store.SaveFirmwareFile(c.UserContext(), storageKey, data); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to store firmware file"})
	}

	fw := &models.FirmwareVersion{
		AssetID:   assetID,
		Vendor:    vendor,
		Model:     model,
		Version:   version,
		Notes:     c.FormValue("notes"),
		FilePath:  storageKey,
		FileHash:  fileHash,
		FileSize:  int64(len(data)),
		CreatedBy: createdBy,
	}

	if err := fs.database.CreateFirmwareVersion(fw); err != nil {
		// Do not leave an orphan object behind when the record fails.
		_ = fs.store.DeleteFirmwareFile(c.UserContext(), storageKey)
		return c.Status(500).JSON(fiber.Map{"error": "failed to create firmware record"})
	}

	return c.Status(201).JSON(fw)
}

func (fs *FirmwareService) HandleAPIListFirmware(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	versions, err := fs.database.ListFirmwareVersions(limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to list firmware versions"})
	}
	return c.JSON(versions)
}

func (fs *FirmwareService) HandleAPIGetFirmware(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid firmware ID"})
	}

	fw, err := fs.database.GetFirmwareVersion(id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "firmware version not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to get firmware version"})
	}
	return c.JSON(fw)
}

func (fs *FirmwareService) HandleAPIDeleteFirmware(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid firmware ID"})
	}

	fw, err := fs.database.GetFirmwareVersion(id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "firmware version not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to get firmware version"})
	}

	if err := fs.database.DeleteFirmwareVersion(id); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to delete firmware version"})
	}

	// Stored bytes are removed best-effort after the record is gone.
	_ = fs.store.DeleteFirmwareFile(c.UserContext(), fw.FilePath)

	return c.SendStatus(204)
}

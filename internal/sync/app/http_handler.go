package app

import (
	"errors"
	"fmt"
	"strconv"

	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"
	"chat_sync_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// maxAvatarSize 上傳頭像大小上限
const maxAvatarSize = 5 << 20

// ProfileHTTPHandler REST 端的 profile 操作 (websocket 不適合傳檔案)
type ProfileHTTPHandler struct {
	profiles *ProfileUseCase
}

// NewProfileHTTPHandler create ProfileHTTPHandler
func NewProfileHTTPHandler(profiles *ProfileUseCase) *ProfileHTTPHandler {
	return &ProfileHTTPHandler{profiles: profiles}
}

// UploadAvatar multipart field "avatar"
func (h *ProfileHTTPHandler) UploadAvatar(c *fiber.Ctx) error {
	externalKey, _ := c.Locals(middlewares.TokenMemberID).(string)
	profile, err := h.profiles.EnsureProfile(c.Context(), externalKey)
	if err != nil {
		return errorResponse(c, err)
	}

	file, err := c.FormFile("avatar")
	if err != nil {
		return errorResponse(c, errprocess.Wrap(errprocess.ErrInvalidArgument, "missing avatar file"))
	}
	if file.Size > maxAvatarSize {
		return errorResponse(c, errprocess.Wrap(errprocess.ErrInvalidArgument, fmt.Sprintf("avatar larger than %d bytes", maxAvatarSize)))
	}

	f, err := file.Open()
	if err != nil {
		return errorResponse(c, err)
	}
	defer f.Close()

	updated, err := h.profiles.UploadAvatar(c.Context(), profile.ID, f, file.Size, file.Header.Get(fiber.HeaderContentType))
	if err != nil {
		logger.Log.Error("upload avatar", zap.String("userID", profile.ID), zap.Error(err))
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"profile": updated})
}

// Me 回傳登入者的 profile, 第一次呼叫時建立
func (h *ProfileHTTPHandler) Me(c *fiber.Ctx) error {
	externalKey, _ := c.Locals(middlewares.TokenMemberID).(string)
	profile, err := h.profiles.EnsureProfile(c.Context(), externalKey)
	if err != nil {
		return errorResponse(c, err)
	}
	resolved, err := h.profiles.Resolve(c.Context(), profile.ID)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"profile": resolved})
}

// ConnectCheck health check
func ConnectCheck(c *fiber.Ctx) error {
	return c.SendString("sync service start!")
}

// DebugLogFlag toggle debug log flag
func DebugLogFlag(c *fiber.Ctx) error {
	statusStr := c.Query("status")
	logger.Log.Info("debug", zap.String("status", statusStr))
	status, err := strconv.ParseBool(statusStr)
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	logger.Log.SetDebugMode(status)
	return c.SendString(fmt.Sprintf("debug mode is : %t", status))
}

func errorResponse(c *fiber.Ctx, err error) error {
	return c.Status(httpStatus(err)).JSON(fiber.Map{
		"error": err.Error(),
		"code":  string(errprocess.ToCode(err)),
	})
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, errprocess.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, errprocess.ErrDuplicate), errors.Is(err, errprocess.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, errprocess.ErrInvalidArgument):
		return fiber.StatusBadRequest
	case errors.Is(err, errprocess.ErrUnauthorized):
		return fiber.StatusForbidden
	case errors.Is(err, errprocess.ErrTransient):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

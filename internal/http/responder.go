package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/example/campus-presence/internal/application"
	"github.com/example/campus-presence/internal/backend"
)

var (
	errBadRequestBody  = errors.New("無効なリクエスト形式です。")
	errUnknownEvent    = errors.New("指定されたイベントが見つかりません。")
	errUnknownLocation = errors.New("指定された場所が見つかりません。")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) writeError(c echo.Context, status int, err error) error {
	ctx := c.Request().Context()
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request failed", "status", status, "error", err)
	}
	return c.JSON(status, errorResponse{Message: message})
}

// handleIntentError maps orchestrator errors onto status codes.
func (r responder) handleIntentError(c echo.Context, err error) error {
	ctx := c.Request().Context()
	if err == nil {
		return r.writeError(c, http.StatusInternalServerError, errors.New("unknown error"))
	}
	kind := application.ErrorKind(err)
	r.loggerFor(ctx).InfoContext(ctx, "intent failed", "error", err, "error_kind", kind)

	switch {
	case errors.Is(err, application.ErrAuthRequired), errors.Is(err, backend.ErrUnauthenticated):
		return c.JSON(http.StatusUnauthorized, errorResponse{ErrorCode: "AUTH_REQUIRED", Message: "サインインが必要です。"})
	case errors.Is(err, application.ErrAuthorizationDenied), errors.Is(err, backend.ErrForbidden):
		return c.JSON(http.StatusForbidden, errorResponse{ErrorCode: "AUTH_FORBIDDEN", Message: "この操作を実行する権限がありません。"})
	case errors.Is(err, application.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Message: "指定されたリソースが見つかりません。"})
	case errors.Is(err, application.ErrInvalidTarget):
		return c.JSON(http.StatusBadRequest, errorResponse{ErrorCode: "INVALID_TARGET", Message: "指定された対象は無効です。"})
	case errors.Is(err, application.ErrChannelNotLeavable):
		return c.JSON(http.StatusConflict, errorResponse{ErrorCode: "CHANNEL_NOT_LEAVABLE", Message: "このチャンネルからは退出できません。"})
	case errors.Is(err, application.ErrStaleResponse):
		return c.JSON(http.StatusConflict, errorResponse{ErrorCode: "STALE_RESPONSE", Message: "サインイン状態が変わったため結果を破棄しました。"})
	case errors.Is(err, application.ErrClosed):
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Message: "サービスは停止しています。"})
	case kind == "invalid_credentials":
		return c.JSON(http.StatusUnauthorized, errorResponse{ErrorCode: "INVALID_CREDENTIALS", Message: "メールアドレスまたはパスワードが正しくありません。"})
	case errors.Is(err, application.ErrBackend):
		return c.JSON(http.StatusBadGateway, errorResponse{ErrorCode: "BACKEND_FAILURE", Message: "バックエンドとの通信に失敗しました。"})
	}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{
			Message: "入力内容に誤りがあります。",
			Errors:  localizeValidationErrors(vErr),
		})
	}
	return c.JSON(http.StatusInternalServerError, errorResponse{Message: "サーバー内部でエラーが発生しました。"})
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "リクエスト内容が正しくありません。"
	case http.StatusUnauthorized:
		return "サインインが必要です。"
	case http.StatusNotFound:
		return "指定されたリソースが見つかりません。"
	case http.StatusUnprocessableEntity:
		return "入力内容に誤りがあります。"
	default:
		return "サーバー内部でエラーが発生しました。"
	}
}

func localizeValidationErrors(vErr *application.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch message {
	case "title is required":
		return "タイトルは必須です。"
	case "email is required":
		return "メールアドレスは必須です。"
	case "password is required":
		return "パスワードは必須です。"
	case "nothing to update":
		return "更新する項目を指定してください。"
	case "username must not be empty":
		return "ユーザー名は空にできません。"
	default:
		return message
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}

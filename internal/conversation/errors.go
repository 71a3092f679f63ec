package conversation

import apperrors "github.com/Proton-105/payments-bot/internal/errors"

// IsAuthError reports whether err means the chat must log in again.
func IsAuthError(err error) bool {
	return apperrors.IsAuth(err)
}

func isRejected(err error) bool {
	appErr, ok := apperrors.As(err)
	return ok && appErr.Code == apperrors.CodeAPIRequest
}

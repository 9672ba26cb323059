package handler

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/bhadresh-123/phicore/pkg/errors"
)

// RespondError maps core errors onto HTTP responses. Denials and true
// not-founds produce the identical response body and status so a caller
// cannot distinguish them.
func RespondError(c *gin.Context, err error) {
	if apperrors.IsNotFound(err) || errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code == apperrors.ErrBadRequest {
		c.JSON(http.StatusBadRequest, gin.H{"error": appErr.Message})
		return
	}

	// Codec and other internal failures surface as a generic internal
	// error; raw cipher or key detail never reaches a response body.
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

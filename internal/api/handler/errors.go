package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/medgrid/scanflow/internal/domain"
)

// respondError converts a core error into the protocol's structured
// {success:false, error} envelope with an appropriate status code.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrDependencyCycle):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrClaimConflict), errors.Is(err, domain.ErrRegistryConflict):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

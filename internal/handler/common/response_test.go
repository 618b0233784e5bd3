package common

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"aramaster/internal/model/system"

	"github.com/stretchr/testify/assert"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{system.NewValidationError("folder", "folder is required"), http.StatusBadRequest},
		{fmt.Errorf("%w: 12", system.ErrExecutionNotFound), http.StatusNotFound},
		{system.ErrProjectNotFound, http.StatusNotFound},
		{system.ErrDuplicatePattern, http.StatusConflict},
		{system.ErrLastPattern, http.StatusConflict},
		{fmt.Errorf("%w: /tmp", system.ErrRawFolderOutsideBase), http.StatusBadRequest},
		{system.ErrRootCauseRequired, http.StatusBadRequest},
		{system.ErrQueueFull, http.StatusServiceUnavailable},
		{system.ErrTokenExpired, http.StatusUnauthorized},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusOf(tt.err), tt.err.Error())
	}
}

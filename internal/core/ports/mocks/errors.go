package mocks

import (
	"errors"
	"fmt"

	coreerrors "github.com/lueurxax/workflow-popularity/internal/core/errors"
)

var (
	// ErrLinkTaken is returned when a source link already belongs to another entity.
	ErrLinkTaken = errors.New("source link already linked to another entity")

	// ErrRunNotFound is returned when a run doesn't exist or is no longer running.
	ErrRunNotFound = fmt.Errorf("running run: %w", coreerrors.ErrNotFound)
)

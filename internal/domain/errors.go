package domain

import "errors"

var (
	ErrMissingConcessionaria = errors.New("concessionaria is required")
	ErrMissingUF             = errors.New("uf is required")
	ErrUnsupportedFileType   = errors.New("unsupported file type")
	ErrFileTooLarge          = errors.New("file exceeds maximum allowed size")
	ErrUnreadableImage       = errors.New("image bytes could not be decoded")
	ErrEngineUnavailable     = errors.New("inference engine is not available")
	ErrInferenceFailed       = errors.New("inference failed")
	ErrInferenceTimeout      = errors.New("inference timed out")
)

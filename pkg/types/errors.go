package types

import "fmt"

// Stage identifies the pipeline stage a failure is attributed to
type Stage string

const (
	StageDownload      Stage = "download"
	StageRender        Stage = "render"
	StageQRGeneration  Stage = "qr_generation"
	StageQRInsertion   Stage = "qr_insertion"
	StageUpload        Stage = "upload"
	StageValidation    Stage = "validation"
	StageOrchestration Stage = "orchestration"
)

// Error codes carried in item errors and batch.failed events
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeDownloadError   = "DOWNLOAD_ERROR"
	CodeRenderError     = "RENDER_ERROR"
	CodeQRError         = "QR_ERROR"
	CodeInsertError     = "INSERT_ERROR"
	CodeUploadError     = "UPLOAD_ERROR"
	CodeStoreError      = "STORE_ERROR"
)

// stageCodes maps each stage to its default error code
var stageCodes = map[Stage]string{
	StageDownload:      CodeDownloadError,
	StageRender:        CodeRenderError,
	StageQRGeneration:  CodeQRError,
	StageQRInsertion:   CodeInsertError,
	StageUpload:        CodeUploadError,
	StageValidation:    CodeValidationError,
	StageOrchestration: CodeStoreError,
}

// CodeFor returns the error code conventionally paired with a stage
func CodeFor(stage Stage) string {
	if c, ok := stageCodes[stage]; ok {
		return c
	}
	return CodeValidationError
}

// StageError is the tagged failure result of a pipeline stage. The
// first stage to reject an item produces exactly one StageError; it is
// never re-attributed by later layers.
type StageError struct {
	Stage   Stage
	Code    string
	Message string
}

// Error implements the error interface
func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

// NewStageError builds a stage error with the stage's default code
func NewStageError(stage Stage, format string, args ...any) *StageError {
	return &StageError{
		Stage:   stage,
		Code:    CodeFor(stage),
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapStage attributes an underlying error to a stage, preserving its
// message text for the item error envelope
func WrapStage(stage Stage, err error) *StageError {
	return &StageError{
		Stage:   stage,
		Code:    CodeFor(stage),
		Message: err.Error(),
	}
}

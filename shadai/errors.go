// Copyright (c) Microsoft. All rights reserved.

package shadai

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Category is the client-side classification of a backend error code.
type Category string

const (
	CategoryConnection      Category = "connection"
	CategoryAuthentication  Category = "authentication"
	CategoryResource        Category = "resource"
	CategoryValidation      Category = "validation"
	CategoryAuthorization   Category = "authorization"
	CategoryExternalService Category = "external-service"
	CategoryProcessing      Category = "processing"
	CategorySystem          Category = "system"
	CategoryProtocol        Category = "protocol"
)

// Sentinel errors for use with errors.Is.
var (
	// ErrShadai is the root of every error produced by this module.
	ErrShadai = errors.New("shadai error")

	ErrConnection      = fmt.Errorf("%w: connection", ErrShadai)
	ErrAuthentication  = fmt.Errorf("%w: authentication", ErrShadai)
	ErrResource        = fmt.Errorf("%w: resource", ErrShadai)
	ErrValidation      = fmt.Errorf("%w: validation", ErrShadai)
	ErrAuthorization   = fmt.Errorf("%w: authorization", ErrShadai)
	ErrExternalService = fmt.Errorf("%w: external service", ErrShadai)
	ErrProcessing      = fmt.Errorf("%w: processing", ErrShadai)
	ErrSystem          = fmt.Errorf("%w: system", ErrShadai)

	// ErrProtocol indicates the backend broke the envelope contract.
	ErrProtocol = fmt.Errorf("%w: protocol", ErrShadai)

	// ErrTimeout indicates no response (or no first stream fragment) arrived in time.
	ErrTimeout = fmt.Errorf("%w: timeout", ErrSystem)

	// ErrConfiguration indicates a client or server misconfiguration.
	ErrConfiguration = fmt.Errorf("%w: configuration", ErrSystem)

	// ErrPlanLimitExceeded indicates a quota or plan limit was hit.
	ErrPlanLimitExceeded = fmt.Errorf("%w: plan limit exceeded", ErrAuthorization)

	// ErrNotFound indicates the referenced resource does not exist.
	ErrNotFound = fmt.Errorf("%w: not found", ErrResource)

	// ErrAlreadyExists indicates the resource being created already exists.
	ErrAlreadyExists = fmt.Errorf("%w: already exists", ErrResource)

	// ErrTool is the base error for local tool failures.
	ErrTool = errors.New("tool error")

	// ErrInvalidToolDefinition is returned when a tool's name or schema is malformed.
	ErrInvalidToolDefinition = fmt.Errorf("%w: invalid definition", ErrTool)

	// ErrUnresolvableParameterType is returned when a parameter's Go type has no schema mapping.
	ErrUnresolvableParameterType = fmt.Errorf("%w: unresolvable parameter type", ErrTool)

	// ErrPlannerToolMismatch is recorded when the planner selects a tool that was not supplied.
	ErrPlannerToolMismatch = fmt.Errorf("%w: planner tool mismatch", ErrTool)

	// ErrToolExecution indicates a failure during local tool invocation.
	ErrToolExecution = fmt.Errorf("%w: execution", ErrTool)
)

// Error codes produced on the client side. Backend codes live in codeTable.
const (
	CodeConnection     = "CONNECTION_ERROR"
	CodeTimeout        = "TIMEOUT_ERROR"
	CodeProtocol       = "PROTOCOL_ERROR"
	CodeServer         = "SERVER_ERROR"
	CodeInvalidAPIKey  = "INVALID_API_KEY"
	CodeConfiguration  = "CONFIGURATION_ERROR"
	CodePlanLimit      = "PLAN_LIMIT_EXCEEDED"
	CodeUnknown        = "UNKNOWN_ERROR"
	CodeAuthentication = "AUTHENTICATION_ERROR"
)

// codeTable maps backend error codes to categories. It mirrors the backend's
// published code list and must be kept in sync with it.
var codeTable = map[string]Category{
	"INVALID_API_KEY":       CategoryAuthentication,
	"MISSING_ACCOUNT_SETUP": CategoryAuthentication,
	"AUTHENTICATION_ERROR":  CategoryAuthentication,

	"SESSION_NOT_FOUND":      CategoryResource,
	"FILE_NOT_FOUND":         CategoryResource,
	"ACCOUNT_NOT_FOUND":      CategoryResource,
	"SESSION_ALREADY_EXISTS": CategoryResource,

	"INVALID_FILE_TYPE":         CategoryValidation,
	"INVALID_PARAMETER":         CategoryValidation,
	"MISSING_PARAMETER":         CategoryValidation,
	"INVALID_BASE64":            CategoryValidation,
	"BATCH_SIZE_LIMIT_EXCEEDED": CategoryValidation,

	"PLAN_LIMIT_EXCEEDED": CategoryAuthorization,

	"LLM_PROVIDER_ERROR": CategoryExternalService,
	"VECTOR_STORE_ERROR": CategoryExternalService,
	"S3_STORAGE_ERROR":   CategoryExternalService,

	"FILE_PARSING_ERROR":    CategoryProcessing,
	"CHUNK_INGESTION_ERROR": CategoryProcessing,

	"CONFIGURATION_ERROR": CategorySystem,
	"DATABASE_ERROR":      CategorySystem,
	"TIMEOUT_ERROR":       CategorySystem,
	"SERVER_ERROR":        CategorySystem,

	"CONNECTION_ERROR": CategoryConnection,
	"PROTOCOL_ERROR":   CategoryProtocol,
}

// retriableCodes overrides the category default for specific codes.
var retriableCodes = map[string]bool{
	CodeTimeout: true,
}

var categorySentinels = map[Category]error{
	CategoryConnection:      ErrConnection,
	CategoryAuthentication:  ErrAuthentication,
	CategoryResource:        ErrResource,
	CategoryValidation:      ErrValidation,
	CategoryAuthorization:   ErrAuthorization,
	CategoryExternalService: ErrExternalService,
	CategoryProcessing:      ErrProcessing,
	CategorySystem:          ErrSystem,
	CategoryProtocol:        ErrProtocol,
}

var codeSentinels = map[string]error{
	CodeTimeout:       ErrTimeout,
	CodeConfiguration: ErrConfiguration,
	CodePlanLimit:     ErrPlanLimitExceeded,
}

// LookupCategory returns the category for a backend error code. Codes that are
// not in the table but follow the resource naming scheme (FOO_NOT_FOUND,
// FOO_ALREADY_EXISTS) are treated as resource errors. ok is false for unknown codes.
func LookupCategory(code string) (Category, bool) {
	if c, ok := codeTable[code]; ok {
		return c, true
	}
	if strings.HasSuffix(code, "_NOT_FOUND") || strings.HasSuffix(code, "_ALREADY_EXISTS") {
		return CategoryResource, true
	}
	return CategorySystem, false
}

// DefaultRetriable returns the retriability a code has when the backend does
// not say otherwise.
func DefaultRetriable(code string, category Category) bool {
	if r, ok := retriableCodes[code]; ok {
		return r
	}
	switch category {
	case CategoryConnection, CategoryExternalService:
		return true
	}
	return false
}

// Error is a structured error translated from a backend error envelope or
// raised by the transport. Use errors.As to extract it from a wrapped chain.
type Error struct {
	Code       string
	Category   Category
	Type       string // backend error type, passed through unchanged
	Message    string
	Context    map[string]any
	Retriable  bool
	Suggestion string
	StatusCode int // HTTP status when the error came from the transport
	Err        error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Category, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an Error for code, deriving category, retriability and
// sentinel from the code table.
func NewError(code, message string) *Error {
	cat, _ := LookupCategory(code)
	return &Error{
		Code:      code,
		Category:  cat,
		Message:   message,
		Context:   map[string]any{},
		Retriable: DefaultRetriable(code, cat),
		Err:       sentinelFor(code, cat),
	}
}

func sentinelFor(code string, cat Category) error {
	if s, ok := codeSentinels[code]; ok {
		return s
	}
	switch {
	case strings.HasSuffix(code, "_NOT_FOUND"):
		return ErrNotFound
	case strings.HasSuffix(code, "_ALREADY_EXISTS"):
		return ErrAlreadyExists
	}
	if s, ok := categorySentinels[cat]; ok {
		return s
	}
	return ErrShadai
}

// ConnectionError reports a transport-level failure such as DNS resolution or
// a refused connection.
func ConnectionError(message string, cause error) *Error {
	e := NewError(CodeConnection, message)
	if cause != nil {
		e.Err = fmt.Errorf("%w: %w", ErrConnection, cause)
	}
	return e
}

// TimeoutError reports that the configured timeout elapsed.
func TimeoutError(message string) *Error {
	return NewError(CodeTimeout, message)
}

// ProtocolError reports a response that does not honor the envelope contract.
// raw is attached to the context for diagnosis.
func ProtocolError(message, raw string) *Error {
	e := NewError(CodeProtocol, message)
	if raw != "" {
		e.Context["raw"] = raw
	}
	return e
}

// AuthenticationError reports a rejected or missing credential.
func AuthenticationError(message string) *Error {
	e := NewError(CodeInvalidAPIKey, message)
	e.StatusCode = 401
	e.Suggestion = "Check that SHADAI_API_KEY holds a valid API key."
	return e
}

// ConfigurationError reports local misconfiguration detected before any request.
func ConfigurationError(key, reason string) *Error {
	e := NewError(CodeConfiguration, fmt.Sprintf("configuration %q: %s", key, reason))
	e.Context["config_key"] = key
	e.Context["reason"] = reason
	return e
}

// IsRetriable reports whether err carries a retriable *Error.
func IsRetriable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retriable
	}
	return false
}

// ToolError provides context for local tool failures.
type ToolError struct {
	ToolName string
	Message  string
	Err      error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q: %s", e.ToolName, e.Message)
}

func (e *ToolError) Unwrap() error { return e.Err }

// FormatError renders err as a short message for end users: the code, the
// message and the suggestion, plus context details for validation and
// resource errors. Errors that are not *Error are rendered with Error().
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return "Error: " + err.Error()
	}

	var b strings.Builder
	if e.Code != "" {
		fmt.Fprintf(&b, "Error [%s]: %s", e.Code, e.Message)
	} else {
		fmt.Fprintf(&b, "Error: %s", e.Message)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "\nSuggestion: %s", e.Suggestion)
	}
	if (e.Category == CategoryValidation || e.Category == CategoryResource) && len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			// already part of the message
			if k == "config_key" || k == "reason" {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > 0 {
			b.WriteString("\nDetails:")
			for _, k := range keys {
				fmt.Fprintf(&b, "\n  %s: %v", k, e.Context[k])
			}
		}
	}
	return b.String()
}

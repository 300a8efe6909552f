package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code with HTTP status and message
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

// Error codes for different modules
const (
	// Success
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrUnauthorized    = 1003
	ErrForbidden       = 1004
	ErrConflict        = 1005
	ErrTooManyRequests = 1006
	ErrBadRequest      = 1007
	ErrServiceUnavail  = 1008

	// Auth errors (2000-2999)
	ErrAuthInvalidCredentials = 2000
	ErrAuthUserNotFound       = 2001
	ErrAuthEmailExists        = 2002
	ErrAuthInvalidToken       = 2006
	ErrAuthTokenExpired       = 2007
	ErrAuthWeakPassword       = 2008
	ErrAuthInvalidEmail       = 2009
	ErrAuthNamespaceTaken     = 2010

	// User errors (3000-3999)
	ErrUserNotFound = 3000

	// File errors (4000-4999)
	ErrFileNotFound           = 4000
	ErrFileInvalidName        = 4001
	ErrFileTooLarge           = 4002
	ErrFileConflict           = 4003
	ErrFileNotPending         = 4004
	ErrFileInvalidTier        = 4005
	ErrFileStorageUnavailable = 4006
	ErrFileMetadataUnavail    = 4007
	ErrFileInconsistent       = 4008
	ErrFileInvalidLocator     = 4009
	ErrFileInvalidCursor      = 4010
	ErrFileNotUploaded        = 4011
	ErrFileArchived           = 4012
)

// codeMap maps error codes to their details
var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	// Common errors
	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrUnauthorized:    {ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	ErrForbidden:       {ErrForbidden, http.StatusForbidden, "Forbidden"},
	ErrConflict:        {ErrConflict, http.StatusConflict, "Resource conflict"},
	ErrTooManyRequests: {ErrTooManyRequests, http.StatusTooManyRequests, "Too many requests"},
	ErrBadRequest:      {ErrBadRequest, http.StatusBadRequest, "Bad request"},
	ErrServiceUnavail:  {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},

	// Auth errors
	ErrAuthInvalidCredentials: {ErrAuthInvalidCredentials, http.StatusUnauthorized, "Invalid email or password"},
	ErrAuthUserNotFound:       {ErrAuthUserNotFound, http.StatusNotFound, "User not found"},
	ErrAuthEmailExists:        {ErrAuthEmailExists, http.StatusConflict, "Email already exists"},
	ErrAuthInvalidToken:       {ErrAuthInvalidToken, http.StatusUnauthorized, "Invalid or expired token"},
	ErrAuthTokenExpired:       {ErrAuthTokenExpired, http.StatusUnauthorized, "Token expired"},
	ErrAuthWeakPassword:       {ErrAuthWeakPassword, http.StatusBadRequest, "Password is too weak"},
	ErrAuthInvalidEmail:       {ErrAuthInvalidEmail, http.StatusBadRequest, "Invalid email format"},
	ErrAuthNamespaceTaken:     {ErrAuthNamespaceTaken, http.StatusConflict, "Storage namespace for this email is already in use"},

	// User errors
	ErrUserNotFound: {ErrUserNotFound, http.StatusNotFound, "User not found"},

	// File errors
	ErrFileNotFound:           {ErrFileNotFound, http.StatusNotFound, "File not found"},
	ErrFileInvalidName:        {ErrFileInvalidName, http.StatusBadRequest, "Invalid file name"},
	ErrFileTooLarge:           {ErrFileTooLarge, http.StatusBadRequest, "File size exceeds limit"},
	ErrFileConflict:           {ErrFileConflict, http.StatusConflict, "A file with this name already exists"},
	ErrFileNotPending:         {ErrFileNotPending, http.StatusNotFound, "No pending upload for this key"},
	ErrFileInvalidTier:        {ErrFileInvalidTier, http.StatusBadRequest, "Unsupported storage tier"},
	ErrFileStorageUnavailable: {ErrFileStorageUnavailable, http.StatusServiceUnavailable, "Object storage unavailable"},
	ErrFileMetadataUnavail:    {ErrFileMetadataUnavail, http.StatusServiceUnavailable, "Metadata store unavailable"},
	ErrFileInconsistent:       {ErrFileInconsistent, http.StatusInternalServerError, "File state may be inconsistent"},
	ErrFileInvalidLocator:     {ErrFileInvalidLocator, http.StatusBadRequest, "Invalid file reference"},
	ErrFileInvalidCursor:      {ErrFileInvalidCursor, http.StatusBadRequest, "Invalid pagination cursor"},
	ErrFileNotUploaded:        {ErrFileNotUploaded, http.StatusConflict, "Object has not been uploaded yet"},
	ErrFileArchived:           {ErrFileArchived, http.StatusConflict, "File is archived, restore it first"},
}

// GetCode returns the Code for a given error code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns HTTP status for a given error code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the message for a given error code
func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsSuccess checks if the code represents success
func IsSuccess(code int) bool {
	return code == Success
}

// IsClientError checks if the code represents a client error (4xx)
func IsClientError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 400 && status < 500
}

// IsServerError checks if the code represents a server error (5xx)
func IsServerError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 500
}

// FormatError formats an error message with code
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}

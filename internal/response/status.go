package response

// StatusCode represents HTTP status codes
type StatusCode int

const (
	StatusOK        StatusCode = 200
	StatusCreated   StatusCode = 201
	StatusNoContent StatusCode = 204

	StatusBadRequest            StatusCode = 400
	StatusNotFound              StatusCode = 404
	StatusMethodNotAllowed      StatusCode = 405
	StatusRequestTimeout        StatusCode = 408
	StatusLengthRequired        StatusCode = 411
	StatusRequestEntityTooLarge StatusCode = 413
	StatusRequestURITooLong     StatusCode = 414

	StatusInternalServerError     StatusCode = 500
	StatusNotImplemented          StatusCode = 501
	StatusServiceUnavailable      StatusCode = 503
	StatusHTTPVersionNotSupported StatusCode = 505
)

// statusText maps status codes to reason phrases
var statusText = map[StatusCode]string{
	StatusOK:        "OK",
	StatusCreated:   "Created",
	StatusNoContent: "No Content",

	StatusBadRequest:            "Bad Request",
	StatusNotFound:              "Not Found",
	StatusMethodNotAllowed:      "Method Not Allowed",
	StatusRequestTimeout:        "Request Timeout",
	StatusLengthRequired:        "Length Required",
	StatusRequestEntityTooLarge: "Content Too Large",
	StatusRequestURITooLong:     "URI Too Long",

	StatusInternalServerError:     "Internal Server Error",
	StatusNotImplemented:          "Not Implemented",
	StatusServiceUnavailable:      "Service Unavailable",
	StatusHTTPVersionNotSupported: "HTTP Version Not Supported",
}

// StatusText returns the reason phrase for code. Codes outside the table get
// a generic phrase for their class so the status line is never empty.
func StatusText(code StatusCode) string {
	if text, ok := statusText[code]; ok {
		return text
	}
	switch {
	case code.IsInformational():
		return "Informational"
	case code.IsSuccess():
		return "Success"
	case code.IsRedirect():
		return "Redirection"
	case code.IsClientError():
		return "Client Error"
	case code.IsServerError():
		return "Server Error"
	}
	return "Unknown Status"
}

// Valid reports whether code is in the 100-599 range.
func (code StatusCode) Valid() bool {
	return code >= 100 && code < 600
}

// IsInformational returns true for 1xx status codes
func (code StatusCode) IsInformational() bool {
	return code >= 100 && code < 200
}

// IsSuccess returns true for 2xx status codes
func (code StatusCode) IsSuccess() bool {
	return code >= 200 && code < 300
}

// IsRedirect returns true for 3xx status codes
func (code StatusCode) IsRedirect() bool {
	return code >= 300 && code < 400
}

// IsClientError returns true for 4xx status codes
func (code StatusCode) IsClientError() bool {
	return code >= 400 && code < 500
}

// IsServerError returns true for 5xx status codes
func (code StatusCode) IsServerError() bool {
	return code >= 500 && code < 600
}

// IsError returns true for 4xx or 5xx status codes
func (code StatusCode) IsError() bool {
	return code.IsClientError() || code.IsServerError()
}

package http

type Status string

const (
	// StatusOK is used for health-check responses.
	StatusOK Status = "OK"

	// StatusSuccess indicates a lookup completed successfully.
	StatusSuccess Status = "success"

	// StatusError indicates a lookup failed.
	StatusError Status = "error"
)

// Response represents the standard API response format.
type Response struct {
	Status Status `json:"status,omitempty"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

func NewOKResponse() Response {
	return Response{Status: StatusOK}
}

func NewDataResponse(data any) Response {
	return Response{Status: StatusSuccess, Data: data}
}

func NewErrorResponse(err string) Response {
	return Response{Status: StatusError, Error: err}
}

package types

import "encoding/json"

// Tensor is the wire form of a 2-D or 3-D numeric array.
// len(Data) must equal Height*Width*Channels*sizeof(DType).
type Tensor struct {
	// Number of rows.
	// example: 1080
	Height int `json:"height" example:"1080"`
	// Number of columns.
	// example: 1920
	Width int `json:"width" example:"1920"`
	// Number of channels; 1 means the logical shape is 2-D.
	// example: 3
	Channels int `json:"channels" example:"3"`
	// Element type tag: uint8, float32 or float64.
	// example: uint8
	DType string `json:"dtype" example:"uint8"`
	// Raw little-endian element bytes in row-major order.
	Data []byte `json:"data"`
}

// StringArg carries a single string, usually a model name.
type StringArg struct {
	Data string `json:"data"`
}

// EmptyArgs is the request of argument-less calls.
type EmptyArgs struct{}

// ImageArgs is the RunImage request.
type ImageArgs struct {
	Image *Tensor `json:"image"`
	Model string  `json:"model"`
	// JSON object with model arguments. Empty string means no arguments.
	Args string `json:"args"`
}

// BatchImageArgs is the RunBatchImage request.
type BatchImageArgs struct {
	Images []*Tensor `json:"images"`
	Model  string    `json:"model"`
	Args   string    `json:"args"`
}

// TextArgs is the RunText request.
type TextArgs struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Args  string `json:"args"`
}

// BatchTextArgs is the RunBatchText request.
type BatchTextArgs struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
	Args  string   `json:"args"`
}

// Response is returned by every RPC. Data holds a JSON value: the model result,
// a query result, or an ErrorPayload.
type Response struct {
	Data json.RawMessage `json:"data"`
}

// ErrorPayload is the in-band failure body.
type ErrorPayload struct {
	// example: Uninitialized model
	Error string `json:"error" example:"Uninitialized model"`
}

// PIDPayload is the GetPID body.
type PIDPayload struct {
	// example: 12345
	PID int `json:"pid" example:"12345"`
}

// NumWorkersPayload is the GetNumParallelWorkers body.
type NumWorkersPayload struct {
	// example: 4
	NumWorkers int `json:"num_workers" example:"4"`
}

// ReloadPayload is the ReloadModel body.
type ReloadPayload struct {
	OK bool `json:"ok"`
}

// StopPayload is the StopServer body.
type StopPayload struct {
	Stopping bool `json:"stopping"`
}

// ErrorResponse is the admin API error body.
type ErrorResponse struct {
	// example: pool not started
	Error string `json:"error" example:"pool not started"`
	// HTTP status code.
	// example: 503
	Code int `json:"code" example:"503"`
}

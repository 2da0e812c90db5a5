package http

import (
	"spatiallsm/pkg/store"
)

type Status string

const (
	// StatusOK is used for health-check responses.
	StatusOK Status = "OK"

	// StatusSuccess indicates an operation completed successfully.
	StatusSuccess Status = "success"

	// StatusError indicates an operation failed.
	StatusError Status = "error"
)

// Response represents the standard API response format.
type Response struct {
	Status    Status       `json:"status,omitempty"`
	Object    *Object      `json:"object,omitempty"`
	Objects   []Object     `json:"objects,omitempty"`
	Count     int          `json:"count,omitempty"`
	Truncated bool         `json:"truncated,omitempty"`
	Stats     *store.Stats `json:"stats,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// Object is the wire form of a stored object.
type Object struct {
	ID    uint64  `json:"id"`
	XMin  float64 `json:"x_min"`
	XMax  float64 `json:"x_max"`
	YMin  float64 `json:"y_min"`
	YMax  float64 `json:"y_max"`
	Value string  `json:"value,omitempty"`
	SeqN  uint64  `json:"seq_n"`
}

func toObject(obj store.Object) Object {
	return Object{
		ID:    obj.ID,
		XMin:  obj.Box.X.Min,
		XMax:  obj.Box.X.Max,
		YMin:  obj.Box.Y.Min,
		YMax:  obj.Box.Y.Max,
		Value: string(obj.Value),
		SeqN:  obj.SeqN,
	}
}

func NewOKResponse() Response {
	return Response{Status: StatusOK}
}

func NewSuccessResponse() Response {
	return Response{Status: StatusSuccess}
}

func NewObjectResponse(obj store.Object) Response {
	o := toObject(obj)
	return Response{Status: StatusSuccess, Object: &o}
}

func NewQueryResponse(objs []Object, truncated bool) Response {
	return Response{Status: StatusSuccess, Objects: objs, Count: len(objs), Truncated: truncated}
}

func NewStatsResponse(st store.Stats) Response {
	return Response{Status: StatusSuccess, Stats: &st}
}

func NewErrorResponse(err string) Response {
	return Response{Status: StatusError, Error: err}
}

package types

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// TensorPayload is the JSON form of one tensor on either predict surface.
type TensorPayload struct {
	// Tensor shape; required shape for the special inputs is (1).
	Shape []int64 `json:"shape,omitempty"`
	// Element type: FP32, UINT32 or UINT64.
	Datatype string `json:"datatype"`
	// Flat row-major values.
	Data []json.Number `json:"data"`
}

// NamedTensorPayload pairs a payload with its input name (columnar surface).
type NamedTensorPayload struct {
	Name string `json:"name"`
	TensorPayload
}

// ColumnarInferRequest is the /v2 predict envelope.
type ColumnarInferRequest struct {
	Inputs []NamedTensorPayload `json:"inputs"`
}

// ColumnarInferResponse mirrors ColumnarInferRequest for outputs.
type ColumnarInferResponse struct {
	ModelName    string               `json:"model_name"`
	ModelVersion string               `json:"model_version"`
	Outputs      []NamedTensorPayload `json:"outputs"`
}

// RowInferRequest is the /v1 predict envelope.
type RowInferRequest struct {
	Instances map[string]TensorPayload `json:"instances"`
}

// RowInferResponse mirrors RowInferRequest for outputs.
type RowInferResponse struct {
	Predictions map[string]TensorPayload `json:"predictions"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	Error string `json:"error"`
	// HTTP status code.
	Code int `json:"code"`
	// Stable subsystem status name, e.g. SEQUENCE_MISSING.
	Status string `json:"status,omitempty"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// ModelStatus summarizes a loaded model for /status.
type ModelStatus struct {
	Name    string `json:"name"`
	Version int64  `json:"version"`
	State   string `json:"state"`
	// Live sequence population and its configured bound.
	Sequences    int    `json:"sequences"`
	MaxSequences uint32 `json:"max_sequences"`
	// Handle pool size and number of handles currently leased.
	PoolSize int `json:"pool_size"`
	Inflight int `json:"inflight"`
	// Whether the idle-sequence reaper covers this model.
	IdleCleanup bool `json:"idle_cleanup"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Models         []ModelStatus `json:"models"`
	UptimeSeconds  int64         `json:"uptime_seconds"`
	ServerTimeUnix int64         `json:"server_time_unix"`
}

// Tensor converts the JSON payload to its wire-neutral form. The element
// values are range-checked against the declared datatype; shape is passed
// through untouched so downstream validation can distinguish a missing shape
// from a wrong one.
func (p TensorPayload) Tensor() (*Tensor, error) {
	elem := ElemType(p.Datatype)
	switch elem {
	case ElemFP32, ElemUint32, ElemUint64:
	default:
		return nil, fmt.Errorf("unsupported datatype %q", p.Datatype)
	}
	b := make([]byte, 0, elem.Size()*len(p.Data))
	for _, n := range p.Data {
		switch elem {
		case ElemFP32:
			f, err := strconv.ParseFloat(n.String(), 32)
			if err != nil {
				return nil, fmt.Errorf("value %q is not FP32: %w", n.String(), err)
			}
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(float32(f)))
			b = append(b, buf[:]...)
		case ElemUint32:
			u, err := strconv.ParseUint(n.String(), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("value %q is not UINT32: %w", n.String(), err)
			}
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], uint32(u))
			b = append(b, buf[:]...)
		case ElemUint64:
			u, err := strconv.ParseUint(n.String(), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("value %q is not UINT64: %w", n.String(), err)
			}
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], u)
			b = append(b, buf[:]...)
		}
	}
	return &Tensor{Shape: p.Shape, Elem: elem, Bytes: b}, nil
}

// PayloadFromTensor converts a tensor back to its JSON form.
func PayloadFromTensor(t *Tensor) TensorPayload {
	p := TensorPayload{Shape: t.Shape, Datatype: string(t.Elem), Data: []json.Number{}}
	switch t.Elem {
	case ElemFP32:
		for _, v := range t.FP32Values() {
			p.Data = append(p.Data, json.Number(strconv.FormatFloat(float64(v), 'g', -1, 32)))
		}
	case ElemUint32:
		for i := 0; i+4 <= len(t.Bytes); i += 4 {
			p.Data = append(p.Data, json.Number(strconv.FormatUint(uint64(binary.LittleEndian.Uint32(t.Bytes[i:])), 10)))
		}
	case ElemUint64:
		for i := 0; i+8 <= len(t.Bytes); i += 8 {
			p.Data = append(p.Data, json.Number(strconv.FormatUint(binary.LittleEndian.Uint64(t.Bytes[i:]), 10)))
		}
	}
	return p
}

// TensorMap is a decoded request; it implements TensorSource for the
// pipeline regardless of which surface the request arrived on.
type TensorMap map[string]*Tensor

func (m TensorMap) Input(name string) (*Tensor, bool) {
	t, ok := m[name]
	return t, ok
}

func (m TensorMap) InputNames() []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// TensorMap decodes the columnar envelope. Duplicate names are rejected.
func (r ColumnarInferRequest) TensorMap() (TensorMap, error) {
	m := make(TensorMap, len(r.Inputs))
	for _, in := range r.Inputs {
		if in.Name == "" {
			return nil, fmt.Errorf("input with empty name")
		}
		if _, dup := m[in.Name]; dup {
			return nil, fmt.Errorf("duplicate input %q", in.Name)
		}
		t, err := in.Tensor()
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", in.Name, err)
		}
		m[in.Name] = t
	}
	return m, nil
}

// TensorMap decodes the row envelope.
func (r RowInferRequest) TensorMap() (TensorMap, error) {
	m := make(TensorMap, len(r.Instances))
	for name, in := range r.Instances {
		if name == "" {
			return nil, fmt.Errorf("input with empty name")
		}
		t, err := in.Tensor()
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
		m[name] = t
	}
	return m, nil
}

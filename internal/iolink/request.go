package iolink

import (
	"encoding/json"
	"fmt"
)

// Command codes understood by the master's JSON interface
const (
	CodeRequest = "request"

	// Diagnostic code the master puts into a successful response envelope
	DiagOK = 200
)

// LivenessAddress returns the master's product code. Any answer means the host is up.
const LivenessAddress = "/deviceinfo/productcode/getdata"

// Request is the command body POSTed to the master
type Request struct {
	Code    string `json:"code"`
	CID     int    `json:"cid"`
	Address string `json:"adr"`
}

// Response is the envelope returned by the master.
// Data.Value is a product name or a hex process data string.
type Response struct {
	CID  int           `json:"cid"`
	Code int           `json:"code"`
	Data *ResponseData `json:"data,omitempty"`
}

type ResponseData struct {
	Value *string `json:"value,omitempty"`
}

// NewRequest erstellt einen Getdata-Request für die Adresse
func NewRequest(cid int, address string) *Request {
	return &Request{
		Code:    CodeRequest,
		CID:     cid,
		Address: address,
	}
}

// Encode serialisiert den Request
func (r *Request) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// DecodeResponse parst einen Response-Body
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("invalid response envelope: %w", err)
	}
	return &resp, nil
}

// Value extracts data.value. A missing value is reported with Present=false.
func (r *Response) Value() Value {
	if r.Data == nil || r.Data.Value == nil {
		return Value{}
	}
	return Value{Raw: *r.Data.Value, Present: true}
}

// Value is the raw data.value field of a response
type Value struct {
	Raw     string
	Present bool
}

func (v Value) String() string {
	if !v.Present {
		return "<null>"
	}
	return v.Raw
}

// ProductNameAddress returns the identity address of a port
func ProductNameAddress(port int) string {
	return fmt.Sprintf("/iolinkmaster/port[%d]/iolinkdevice/productname/getdata", port)
}

// ProcessDataAddress returns the pdin address of a port
func ProcessDataAddress(port int) string {
	return fmt.Sprintf("/iolinkmaster/port[%d]/iolinkdevice/pdin/getdata", port)
}

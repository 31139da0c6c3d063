package repository

import "encoding/json"

// mustJSON marshals v for a jsonb parameter. Every value passed through
// here is a plain Go struct/slice/map built by this package, never
// user-controlled in a way that could fail to marshal, so a marshal
// error here indicates a programming mistake rather than bad input.
func mustJSON(v interface{}) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		panic("repository: value must be json-marshalable: " + err.Error())
	}
	return raw
}

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Addr is an opaque network address. It is not validated as an IP: older log
// files store bare numbers such as 7, which decode to "7".
type Addr string

// MarshalJSON always encodes the address as a JSON string.
func (a Addr) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(a))
}

// UnmarshalJSON accepts a JSON string or a JSON number.
func (a *Addr) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Addr(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("addr: want string or number, got %s", data)
	}
	*a = Addr(n.String())
	return nil
}

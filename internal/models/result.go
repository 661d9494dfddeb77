package models

import "fmt"

// ConnectResult is the outcome of a connect attempt. Exactly one is returned per attempt.
type ConnectResult uint8

const (
	ConnectSuccess ConnectResult = iota
	ConnectInvalidSecret
	ConnectInvalidCode
	ConnectServerAtCapacity
	ConnectNoAvailableDedicatedServers
	// ConnectConfigMismatch is also returned when the resolved server's node is gone.
	ConnectConfigMismatch
)

var connectResultNames = map[ConnectResult]string{
	ConnectSuccess:                     "Success",
	ConnectInvalidSecret:               "InvalidSecret",
	ConnectInvalidCode:                 "InvalidCode",
	ConnectServerAtCapacity:            "ServerAtCapacity",
	ConnectNoAvailableDedicatedServers: "NoAvailableDedicatedServers",
	ConnectConfigMismatch:              "ConfigMismatch",
}

func (r ConnectResult) String() string {
	if name, ok := connectResultNames[r]; ok {
		return name
	}

	return fmt.Sprintf("ConnectResult(%d)", uint8(r))
}

// MarshalText encodes the result by name.
func (r ConnectResult) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a result name.
func (r *ConnectResult) UnmarshalText(text []byte) error {
	for k, v := range connectResultNames {
		if v == string(text) {
			*r = k
			return nil
		}
	}

	return fmt.Errorf("unknown connect result %q", text)
}

// AuthenticateSuccess is the only authentication result.
const AuthenticateSuccess = "Success"

package message

import "fmt"

// Status is the one-byte response status carried in the frame header.
type Status byte

const (
	StatusOK                        Status = 20
	StatusClientTimeout             Status = 30
	StatusServerTimeout             Status = 31
	StatusBadRequest                Status = 40
	StatusBadResponse               Status = 50
	StatusServiceNotFound           Status = 60
	StatusServiceError              Status = 70
	StatusServerError               Status = 80
	StatusClientError               Status = 90
	StatusServerThreadpoolExhausted Status = 100
)

var statusNames = map[Status]string{
	StatusOK:                        "ok",
	StatusClientTimeout:             "client timeout",
	StatusServerTimeout:             "server timeout",
	StatusBadRequest:                "bad request",
	StatusBadResponse:               "bad response",
	StatusServiceNotFound:           "service not found",
	StatusServiceError:              "service error",
	StatusServerError:               "server error",
	StatusClientError:               "client error",
	StatusServerThreadpoolExhausted: "server threadpool exhausted",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", byte(s))
}

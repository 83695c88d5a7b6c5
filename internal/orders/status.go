package orders

import "errors"

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var ErrInvalidStatus = errors.New("invalid order status")

// Any recognized status may follow any other; manual corrections through
// the status endpoint are a supported operational path.
var recognized = map[Status]bool{
	StatusPending:    true,
	StatusConfirmed:  true,
	StatusProcessing: true,
	StatusShipped:    true,
	StatusDelivered:  true,
	StatusCancelled:  true,
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !recognized[st] {
		return "", ErrInvalidStatus
	}
	return st, nil
}

// Active statuses still count against available stock.
var activeStatuses = []string{
	string(StatusPending), string(StatusConfirmed), string(StatusProcessing),
}

func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing:
		return true
	}
	return false
}

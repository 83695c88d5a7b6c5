package fulfillment

import (
	"encoding/json"
	"fmt"
)

// Event is the closed set of fulfillment events this system accepts.
// Unknown event tags fail at decode, not at dispatch.
type Event interface {
	EventName() string
	isEvent()
}

type ShipmentItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// ShipmentUpdated carries a carrier status change for an order. Items are
// the units physically leaving the warehouse with this shipment.
type ShipmentUpdated struct {
	OrderID        string
	TrackingNumber string
	Status         string
	Items          []ShipmentItem
}

func (*ShipmentUpdated) EventName() string { return "shipment.updated" }
func (*ShipmentUpdated) isEvent()          {}

type RestockItem struct {
	SKU           string `json:"sku"`
	QuantityAdded int    `json:"quantity_added"`
	NewTotal      *int   `json:"new_total,omitempty"` // absolute override when set
}

type InventoryRestocked struct {
	Items []RestockItem
}

func (*InventoryRestocked) EventName() string { return "inventory.restocked" }
func (*InventoryRestocked) isEvent()          {}

type UnsupportedEventError struct{ Event string }

func (e *UnsupportedEventError) Error() string {
	return fmt.Sprintf("unsupported event type: %s", e.Event)
}

type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

var shipmentStatuses = map[string]bool{
	"shipped":    true,
	"delivered":  true,
	"in_transit": true,
}

type rawEvent struct {
	Event          string          `json:"event"`
	OrderID        string          `json:"order_id"`
	TrackingNumber string          `json:"tracking_number"`
	Status         string          `json:"status"`
	Items          json.RawMessage `json:"items"`
}

// Decode parses a fulfillment event payload into one of the Event variants.
func Decode(raw []byte) (Event, error) {
	var re rawEvent
	if err := json.Unmarshal(raw, &re); err != nil {
		return nil, &ValidationError{Msg: "invalid event payload: " + err.Error()}
	}

	switch re.Event {
	case "shipment.updated":
		if re.OrderID == "" {
			return nil, &ValidationError{Msg: "order_id is required for shipment updates"}
		}
		if !shipmentStatuses[re.Status] {
			return nil, &ValidationError{Msg: "invalid shipment status: " + re.Status}
		}
		ev := &ShipmentUpdated{OrderID: re.OrderID, TrackingNumber: re.TrackingNumber, Status: re.Status}
		if len(re.Items) > 0 {
			if err := json.Unmarshal(re.Items, &ev.Items); err != nil {
				return nil, &ValidationError{Msg: "invalid shipment items: " + err.Error()}
			}
		}
		return ev, nil

	case "inventory.restocked":
		ev := &InventoryRestocked{}
		if len(re.Items) > 0 {
			if err := json.Unmarshal(re.Items, &ev.Items); err != nil {
				return nil, &ValidationError{Msg: "invalid restock items: " + err.Error()}
			}
		}
		if len(ev.Items) == 0 {
			return nil, &ValidationError{Msg: "inventory.restocked needs at least one item"}
		}
		for _, it := range ev.Items {
			if it.SKU == "" {
				return nil, &ValidationError{Msg: "restock item without sku"}
			}
		}
		return ev, nil

	case "":
		return nil, &ValidationError{Msg: "event is required"}

	default:
		return nil, &UnsupportedEventError{Event: re.Event}
	}
}

// eventName pulls the event tag out of a payload that may not decode.
func eventName(raw []byte) string {
	var re rawEvent
	_ = json.Unmarshal(raw, &re)
	return re.Event
}

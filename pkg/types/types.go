package types

// Role identifies the kind of actor behind an authenticated identity
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleWarehouse   Role = "warehouse"
	RoleTransporter Role = "transporter"
	RoleOwner       Role = "owner"
)

// ParcelStatus represents a parcel's lifecycle state
type ParcelStatus string

const (
	StatusReady     ParcelStatus = "ready"
	StatusAssigned  ParcelStatus = "assigned"
	StatusPickedUp  ParcelStatus = "picked_up"
	StatusInTransit ParcelStatus = "in_transit"
	StatusDelivered ParcelStatus = "delivered"
	StatusCancelled ParcelStatus = "cancelled"
)

// Terminal reports whether no further lifecycle transitions are possible
func (s ParcelStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Priority represents parcel handling priority
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// DeviceStatus is a tracker unit's declared status
type DeviceStatus string

const (
	DeviceAvailable DeviceStatus = "available"
	DeviceAssigned  DeviceStatus = "assigned"
	DeviceOffline   DeviceStatus = "offline"
	DeviceUnknown   DeviceStatus = "unknown"
)

// Dimensions are parcel dimensions in centimeters
type Dimensions struct {
	L float64 `json:"l"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Range is a min/max threshold pair
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Thresholds holds per-metric alert limits. They live on the parcel and
// are mirrored onto the bound device at creation time so the firmware
// can evaluate readings locally.
type Thresholds struct {
	Temperature Range   `json:"temperature"`
	Humidity    Range   `json:"humidity"`
	Vibration   float64 `json:"vibration"`
}

// DefaultThresholds returns the limits applied when a parcel form
// leaves them blank.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Temperature: Range{Min: 5, Max: 40},
		Humidity:    Range{Min: 20, Max: 80},
		Vibration:   15,
	}
}

// ParcelInfo is the mutable core of a parcel record
type ParcelInfo struct {
	ParcelID           string       `json:"parcelId"`
	DeviceID           string       `json:"deviceId"`
	ProductDescription string       `json:"productDescription"`
	Category           string       `json:"category"`
	Weight             float64      `json:"weight"`
	Dimensions         Dimensions   `json:"dimensions"`
	PickupLocation     string       `json:"pickupLocation"`
	Destination        string       `json:"destination"`
	OwnerName          string       `json:"ownerName"`
	OwnerEmail         string       `json:"ownerEmail"`
	OwnerPhone         string       `json:"ownerPhone"`
	WarehouseID        string       `json:"warehouseId"`
	TransporterID      string       `json:"transporterId"`
	OwnerID            string       `json:"ownerId"` // owner email, kept separate for visibility filtering
	Status             ParcelStatus `json:"status"`
	Priority           Priority     `json:"priority"`
	SpecialInstructions string      `json:"specialInstructions"`
	CreatedAt          int64        `json:"createdAt"`
	AssignedAt         int64        `json:"assignedAt"`
	PickedUpAt         int64        `json:"pickedUpAt"`
	DispatchedAt       int64        `json:"dispatchedAt"`
	DeliveredAt        int64        `json:"deliveredAt"`
	Thresholds         Thresholds   `json:"thresholds"`
}

// InterestedAgent records a transporter's offer to carry a ready parcel
type InterestedAgent struct {
	Timestamp  int64  `json:"timestamp"`
	Note       string `json:"note"`
	ETA        string `json:"eta"`
	AgentEmail string `json:"agentEmail"`
	AgentName  string `json:"agentName"`
}

// AlertSeverity grades a threshold breach
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is a recorded threshold breach on a device bound to a parcel
type Alert struct {
	Type      string        `json:"type"`
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
	Value     float64       `json:"value"`
	Threshold float64       `json:"threshold"`
	Timestamp int64         `json:"timestamp"`
	Resolved  bool          `json:"resolved"`
}

// Parcel is one shipment as stored under parcels/{id}
type Parcel struct {
	ID               string                     `json:"-"`
	Info             ParcelInfo                 `json:"info"`
	InterestedAgents map[string]InterestedAgent `json:"interestedAgents,omitempty"`
	Alerts           map[string]Alert           `json:"alerts,omitempty"`

	// Current is the live reading merged in by the projection. It is
	// never persisted on the parcel record itself.
	Current *Reading `json:"current,omitempty"`
}

// Reading is one sensor snapshot. Timestamp is kept as a string of unix
// milliseconds because that is what the firmware writes.
type Reading struct {
	Timestamp   string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	HeatIndex   float64 `json:"heatIndex,omitempty"`
	AccelX      float64 `json:"accelX"`
	AccelY      float64 `json:"accelY"`
	AccelZ      float64 `json:"accelZ"`
	GyroX       float64 `json:"gyroX"`
	GyroY       float64 `json:"gyroY"`
	GyroZ       float64 `json:"gyroZ"`
	Orientation string  `json:"orientation"`
}

// DeviceInfo is the declared state a device maintains about itself,
// plus the assignment fields the backend writes.
type DeviceInfo struct {
	DeviceName       string       `json:"deviceName,omitempty"`
	MACAddress       string       `json:"macAddress,omitempty"`
	LastSeen         string       `json:"lastSeen"` // unix millis, written by firmware as a string
	RegisteredAt     string       `json:"registeredAt,omitempty"`
	Status           DeviceStatus `json:"status"`
	AssignedParcelID string       `json:"assignedParcelId"`
	Thresholds       *Thresholds  `json:"thresholds,omitempty"`
}

// Device is one tracker unit as stored under SmartParcels/{id}. ID is
// the collection key, filled in on read and carried on the wire so a
// dashboard can address the device.
type Device struct {
	ID      string             `json:"id,omitempty"`
	Info    DeviceInfo         `json:"info"`
	Current *Reading           `json:"current,omitempty"`
	History map[string]Reading `json:"history,omitempty"`
	Alerts  map[string]Alert   `json:"alerts,omitempty"`

	// Derived by the liveness classifier before every emit. It rides
	// along on the wire so an assigned device that fell silent is
	// distinguishable from a healthy one.
	IsOnline bool `json:"isOnline"`
}

// UserProfile is one account's profile document
type UserProfile struct {
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	Verified  bool   `json:"verified"`
	Banned    bool   `json:"banned,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	Name      string `json:"name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	PhotoURL  string `json:"photoURL,omitempty"`
}

// NotificationType tags what produced a notification
type NotificationType string

const (
	NotifParcelCreated NotificationType = "parcel_created"
	NotifAgentInterest NotificationType = "agent_interest"
	NotifAssignment    NotificationType = "assignment"
	NotifStatusUpdate  NotificationType = "status_update"
)

// Notification is one per-identity feed entry. ID is the feed key,
// filled in on read; clients mark entries read by it.
type Notification struct {
	ID         string           `json:"id,omitempty"`
	Type       NotificationType `json:"type"`
	Message    string           `json:"message"`
	ParcelID   string           `json:"parcelId,omitempty"`
	AgentID    string           `json:"agentId,omitempty"`
	AgentEmail string           `json:"agentEmail,omitempty"`
	Timestamp  int64            `json:"timestamp"`
	Read       bool             `json:"read"`
}

// ParcelStats are status-bucketed counts over a viewer's visible set
type ParcelStats struct {
	Total     int `json:"total"`
	Ready     int `json:"ready"`
	Assigned  int `json:"assigned"`
	InTransit int `json:"inTransit"` // in_transit plus picked_up
	Delivered int `json:"delivered"`
	Cancelled int `json:"cancelled"`
}

// DeviceStats are counts over the full device collection
type DeviceStats struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Assigned  int `json:"assigned"`
	Offline   int `json:"offline"`
}

package pipeline

// ActionType tags the Action union. The same enum categorizes refined lines,
// since every category maps one-to-one onto an action variant.
type ActionType string

const (
	TypeLocationUpdate ActionType = "LOCATION_UPDATE"
	TypeSold           ActionType = "SOLD"
	TypeRepair         ActionType = "REPAIR"
	TypeReady          ActionType = "READY"
	TypeDropOff        ActionType = "DROP_OFF"
	TypeCustomerAppt   ActionType = "CUSTOMER_APPOINTMENT"
	TypeReconAppt      ActionType = "RECON_APPOINTMENT"
	TypeNextLocation   ActionType = "NEXT_LOCATION"
	TypeTask           ActionType = "TASK"
)

// AllTypes lists every action type in a stable order.
func AllTypes() []ActionType {
	return []ActionType{
		TypeLocationUpdate,
		TypeSold,
		TypeRepair,
		TypeReady,
		TypeDropOff,
		TypeCustomerAppt,
		TypeReconAppt,
		TypeNextLocation,
		TypeTask,
	}
}

// ValidType reports whether t is a member of the fixed enum.
func ValidType(t ActionType) bool {
	for _, v := range AllTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// Line is one refined utterance: speaker plus canonicalized text.
type Line struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// CategorizedLine is a refined line with its primary category assigned.
// Speaker and text are always copied verbatim from a refined line; the
// categorize stage may duplicate a line into a second category but never
// fabricates one.
type CategorizedLine struct {
	Speaker  string     `json:"speaker"`
	Text     string     `json:"text"`
	Category ActionType `json:"category"`
}

// Action is the validated, typed output of the pipeline. It is a tagged
// union: Type selects which of the variant fields are meaningful. The
// identification fields are shared by every variant and default to "".
type Action struct {
	Type ActionType `json:"type"`

	// Identification fields, shared by all variants.
	Rego        string `json:"rego"`
	Make        string `json:"make"`
	Model       string `json:"model"`
	Badge       string `json:"badge"`
	Year        string `json:"year"`
	Description string `json:"description"`

	// LOCATION_UPDATE
	Location string `json:"location,omitempty"`

	// SOLD
	SoldTo    string `json:"soldTo,omitempty"`
	SalePrice string `json:"salePrice,omitempty"`

	// REPAIR
	ChecklistItem string `json:"checklistItem,omitempty"`

	// READY
	ReadyStatus string `json:"readyStatus,omitempty"`

	// DROP_OFF
	Destination string `json:"destination,omitempty"`
	Note        string `json:"note,omitempty"`

	// CUSTOMER_APPOINTMENT / RECON_APPOINTMENT
	CustomerName    string `json:"customerName,omitempty"`
	Reconditioner   string `json:"reconditioner,omitempty"`
	AppointmentTime string `json:"appointmentTime,omitempty"`

	// NEXT_LOCATION
	NextLocation string `json:"nextLocation,omitempty"`

	// TASK
	Task string `json:"task,omitempty"`

	// Confidence is the extractor's certainty in [0,1]; downstream entity
	// binding uses it to gate silent code correction.
	Confidence float64 `json:"confidence"`
}

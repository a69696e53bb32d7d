// internal/models/models.go
package models

// State is the position of a conversation in the sales funnel. Values are
// stored in the database and must stay stable.
type State int

const (
	StateNew State = iota
	StatePicturesLoaded
	StateTuneReady
	StateWritingFeedback
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StatePicturesLoaded:
		return "pictures_loaded"
	case StateTuneReady:
		return "tune_ready"
	case StateWritingFeedback:
		return "writing_feedback"
	default:
		return "unknown"
	}
}

// Language selects which of the two supported message sets is sent.
type Language int

const (
	LanguageEnglish Language = iota
	LanguageHebrew
)

// Toggle flips between the two supported languages.
func (l Language) Toggle() Language {
	if l == LanguageEnglish {
		return LanguageHebrew
	}
	return LanguageEnglish
}

// User is the single authoritative record for one conversation, keyed by
// the sender's phone number.
type User struct {
	Phone      string   `json:"phone"`
	State      State    `json:"state"`
	Credits    string   `json:"credits"`
	TuneID     *string  `json:"tune_id"`
	ChosenPack *string  `json:"chosen_pack"`
	EntityType *string  `json:"entity_type"`
	Language   Language `json:"language"`
}

// IncomingMessage is the normalized inbound event produced by the channel
// adapter from a raw webhook payload.
type IncomingMessage struct {
	MessageID    string
	From         string
	Body         string
	MediaIDs     []string
	InvalidMedia bool
	Reply        *InteractiveReply
	ListReply    *InteractiveReply
}

// InteractiveReply carries the composite action identifier of a pressed
// button or picked list row.
type InteractiveReply struct {
	ID    string
	Title string
}

// PaymentNotification is the normalized payload of a payment-provider
// webhook call.
type PaymentNotification struct {
	PaymentID string
	Phone     string
	FullName  string
	Tier      string
}

// Pack is a purchasable catalog entry. The slug encodes category and price
// tier, e.g. "portrait-lite".
type Pack struct {
	ID       int                 `json:"id"`
	Title    string              `json:"title"`
	Slug     string              `json:"slug"`
	CoverURL string              `json:"cover_url"`
	Costs    map[string]PackCost `json:"costs"`
}

type PackCost struct {
	NumImages int `json:"num_images"`
}

// Tune is a trained generation model held by the generation service.
type Tune struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
}

// TuneResult is the generation service's answer to a tune-creation request.
// ETA is an RFC 3339 completion timestamp.
type TuneResult struct {
	ID  int    `json:"id"`
	ETA string `json:"eta"`
}

// TuneRequest describes a tune-creation submission. When TuneID is set the
// request reuses an existing model and Images/Characteristics are ignored.
type TuneRequest struct {
	Title           string
	Name            string
	Callback        string
	TuneID          string
	Images          [][]byte
	Characteristics map[string]string
	// CharacteristicKeys preserves first-seen ordering of Characteristics.
	CharacteristicKeys []string
}

// RejectReason is the single reason reported for an image that failed the
// content check. Order of the constants is the reporting priority.
type RejectReason int

const (
	RejectNoPerson RejectReason = iota
	RejectFunnyFace
	RejectBlurry
	RejectSunglasses
	RejectMultiplePeople
	RejectHat
)

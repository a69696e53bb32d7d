package models

// Reserved action codes carried in button and list-row identifiers.
// Catalog entry ids must stay outside this low range; a bare numeric action
// that is not reserved is interpreted as a catalog selection.
const (
	ActionBegin          = 1
	ActionHowItWorks     = 2
	ActionChangeLanguage = 3
	ActionReadyForUpload = 4
	ActionShowExamples   = 5
	ActionUploadMore     = 6
	ActionOverrideTune   = 7
	ActionSendTunes      = 8
	ActionSetTune        = 9
	ActionGetPaymentLink = 10
	ActionContactSupport = 11
	ActionSendPacks      = 12
	ActionShowPackImages = 13
	ActionStarRating     = 14
	ActionLitePack       = 15
	ActionStandardPack   = 16
	ActionPremiumPack    = 17
)

// ReservedActions is the fixed menu/control action-code set.
var ReservedActions = map[int]bool{
	ActionBegin:          true,
	ActionHowItWorks:     true,
	ActionChangeLanguage: true,
	ActionReadyForUpload: true,
	ActionShowExamples:   true,
	ActionUploadMore:     true,
	ActionOverrideTune:   true,
	ActionSendTunes:      true,
	ActionSetTune:        true,
	ActionGetPaymentLink: true,
	ActionContactSupport: true,
	ActionSendPacks:      true,
	ActionShowPackImages: true,
	ActionStarRating:     true,
	ActionLitePack:       true,
	ActionStandardPack:   true,
	ActionPremiumPack:    true,
}

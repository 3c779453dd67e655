package models

// Accuracy scores attached to extracted field values. A stored field is only
// replaced when the incoming accuracy is greater than or equal to the stored
// one, so values extracted from a detail page are never clobbered by a listing
// row, and manual edits are never clobbered by either.
const (
	AccuracyListing = 10
	AccuracyDetails = 20
	AccuracyManual  = 100
)
